package env

import "time"

// Tuning carries the per-operation timeout classes an adapter applies.
// Step and reset share a ceiling since both run backend-side
// computation; observe is a cheap read with a shorter one.
type Tuning struct {
	CreateTimeout  time.Duration
	StepTimeout    time.Duration
	ObserveTimeout time.Duration
}

func (t Tuning) withDefaults() Tuning {
	if t.CreateTimeout == 0 {
		t.CreateTimeout = 30 * time.Second
	}
	if t.StepTimeout == 0 {
		t.StepTimeout = 30 * time.Second
	}
	if t.ObserveTimeout == 0 {
		t.ObserveTimeout = 10 * time.Second
	}
	return t
}
