package detector

import (
	"errors"
	"time"

	"csrelay/internal/notifier"
)

var (
	ErrPrimaryFetch = errors.New("primary fetch failed")
	ErrEmptyPage    = errors.New("primary page has no visible text")
	ErrState        = errors.New("state store error")
)

type Outcome string

const (
	// OutcomeUnchanged: fingerprint matches the stored one; nothing sent.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeDelivered: every segment was accepted.
	OutcomeDelivered Outcome = "delivered"
	// OutcomePartial: at least one segment failed.
	OutcomePartial Outcome = "partial"
	// OutcomeAborted: the primary page could not be fetched; no state changed.
	OutcomeAborted Outcome = "aborted"
	// OutcomeFailed: state store error or a recovered panic.
	OutcomeFailed Outcome = "failed"
)

func (o Outcome) String() string { return string(o) }

// Result describes one cycle.
type Result struct {
	Cycle   string
	Outcome Outcome
	Started time.Time
	Took    time.Duration

	Fingerprint string
	// Previous is the stored fingerprint at cycle start ("" on first run).
	Previous string
	// Secondary reports whether the secondary-language text was included.
	Secondary bool
	Persisted bool
	Report    notifier.Report

	Err error
}

// Notified reports whether at least one segment reached the chat, even if
// the cycle later failed to save its fingerprint.
func (r Result) Notified() bool {
	return r.Report.Sent > 0
}

// Failure returns a Result for a cycle that ended before producing one,
// e.g. after a recovered panic.
func Failure(cycle string, started time.Time, err error) Result {
	return Result{
		Cycle:   cycle,
		Outcome: OutcomeFailed,
		Started: started,
		Took:    time.Since(started),
		Err:     err,
	}
}
