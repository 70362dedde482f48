package cluster

// progress tracks convergence. The run stops once the likelihood has
// decreased limit times in a row.
type progress struct {
	limit    int
	started  bool
	last     float64
	decrease int
	best     *Result
}

func newProgress(limit int) *progress {
	return &progress{limit: limit}
}

// assess records the likelihood of iteration and keeps a snapshot of the
// best partition. It reports whether to continue.
func (p *progress) assess(iter int, like float64, s *state) bool {
	if p.started {
		switch {
		case like > p.last:
			p.decrease = 0
		case like < p.last:
			p.decrease++
		}
	}
	p.started = true
	p.last = like

	if p.best == nil || like > p.best.Likelihood {
		p.best = &Result{
			K:          s.k,
			Assign:     append([]int(nil), s.assign...),
			Priors:     append([]float64(nil), s.priors...),
			Likelihood: like,
			Iteration:  iter,
		}
	}
	return p.decrease < p.limit
}
