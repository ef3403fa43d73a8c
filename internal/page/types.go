package page

import "time"

// Snapshot is one observation of a watched page. It is compared against the
// persisted fingerprint and then discarded.
type Snapshot struct {
	URL         string
	Text        string
	Fingerprint string
	FetchedAt   time.Time
}

// Empty reports whether no visible text was extracted.
func (s Snapshot) Empty() bool { return s.Text == "" }
