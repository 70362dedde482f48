package rworker

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Rate(t *testing.T) {
	tests := []struct {
		name string
		rate int
		jobs int
	}{
		{name: "single", rate: 1, jobs: 5},
		{name: "several", rate: 3, jobs: 20},
		{name: "non_positive", rate: 0, jobs: 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var running, peak, done int64
			p := New(test.rate)
			for i := 0; i < test.jobs; i++ {
				p.Job(func() error {
					n := atomic.AddInt64(&running, 1)
					for {
						old := atomic.LoadInt64(&peak)
						if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					atomic.AddInt64(&running, -1)
					atomic.AddInt64(&done, 1)
					return nil
				})
			}
			if err := p.Wait(); err != nil {
				t.Errorf("Wait, got: %v, expected: nil", err)
			}
			limit := int64(test.rate)
			if limit < 1 {
				limit = 1
			}
			if peak > limit {
				t.Errorf("concurrent jobs, got: %v, expected at most: %v", peak, limit)
			}
			if done != int64(test.jobs) {
				t.Errorf("finished jobs, got: %v, expected: %v", done, test.jobs)
			}
		})
	}
}

func TestPool_FirstError(t *testing.T) {
	errTest := errors.New("test error")
	p := New(1)
	p.Job(func() error { return errTest })
	p.Job(func() error { return nil })
	if err := p.Wait(); !errors.Is(err, errTest) {
		t.Errorf("Wait, got: %v, expected: %v", err, errTest)
	}
}
