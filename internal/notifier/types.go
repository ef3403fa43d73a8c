package notifier

import (
	"errors"
	"time"
)

var ErrNoSender = errors.New("notifier has no sender")

// Config controls segment delivery.
type Config struct {
	// Pacing is the minimum gap between two consecutive sends. Default 1s;
	// a negative value disables pacing.
	Pacing time.Duration
	// SendTimeout bounds a single send call. Default 15s.
	SendTimeout time.Duration
}

// Report summarizes one Deliver call.
type Report struct {
	Total  int
	Sent   int
	Failed int
	// Errors holds one entry per failed segment, in delivery order.
	Errors []error
}

// Complete reports whether every segment was accepted.
func (r Report) Complete() bool { return r.Total > 0 && r.Sent == r.Total }

// Err joins the per-segment errors, or returns nil.
func (r Report) Err() error { return errors.Join(r.Errors...) }
