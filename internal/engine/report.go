package engine

import "github.com/koltyakov/tunctl/internal/domain"

// Step is the outcome of one engine step.
type Step struct {
	Name string
	Err  error
}

// Report is the per-step outcome of one operation. Steps appear in
// execution order; a sequence that stopped early simply has fewer steps.
type Report struct {
	Tunnel domain.Tunnel
	Steps  []Step
}

// step records an outcome and returns its error for flow control.
func (r *Report) step(name string, err error) error {
	r.Steps = append(r.Steps, Step{Name: name, Err: err})
	return err
}

// Err returns the first step failure, or nil when every step succeeded.
func (r *Report) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// FailedStep returns the name of the first failed step, or "".
func (r *Report) FailedStep() string {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Name
		}
	}
	return ""
}
