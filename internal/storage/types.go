package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file" (default): plain-text state file
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the change detector.
//
// LoadFingerprint reports ok=false when no update has been delivered yet;
// a missing state file is not an error.
type Store interface {
	LoadFingerprint(ctx context.Context) (fp string, ok bool, err error)
	SaveFingerprint(ctx context.Context, fp string) error
	AppendHistory(ctx context.Context, r Record) error
	Close() error
}

// Record describes one notification attempt.
// Keep it compact and schema-stable.
type Record struct {
	At          time.Time `json:"at"`
	Cycle       string    `json:"cycle"`
	Fingerprint string    `json:"fingerprint"`
	Outcome     string    `json:"outcome"`
	Segments    int       `json:"segments"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	Secondary   bool      `json:"secondary"`
	Persisted   bool      `json:"persisted"`
	Error       string    `json:"error,omitempty"`
}
