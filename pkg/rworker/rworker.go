package rworker

import "sync"

// Pool runs jobs concurrently with at most rate of them at a time and keeps
// the first error a job returns.
type Pool struct {
	wg   sync.WaitGroup
	rate chan struct{}

	once sync.Once
	err  error
}

func New(rate int) *Pool {
	if rate < 1 {
		rate = 1
	}
	return &Pool{rate: make(chan struct{}, rate)}
}

func (p *Pool) Job(fn func() error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.rate <- struct{}{}
		defer func() { <-p.rate }()
		if err := fn(); err != nil {
			p.once.Do(func() { p.err = err })
		}
	}()
}

// Wait blocks until every job finished and returns the first error.
func (p *Pool) Wait() error {
	p.wg.Wait()
	return p.err
}
