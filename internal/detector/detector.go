package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"csrelay/internal/notifier"
	"csrelay/internal/page"
	"csrelay/internal/storage"
	logx "csrelay/pkg/logx"
	"csrelay/pkg/tgtext"
)

// Source fetches a page snapshot. *page.Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context, url string) (page.Snapshot, error)
}

// Deliverer sends segments in order. *notifier.Notifier implements it.
type Deliverer interface {
	Deliver(ctx context.Context, segments []string) notifier.Report
}

type Config struct {
	PrimaryURL string
	// SecondaryURL is optional; empty means primary-only messages.
	SecondaryURL string
	SegmentLimit int
	// HTML composes for Telegram HTML parse mode.
	HTML bool
	// PersistOnPartial stores the fingerprint even when some segments failed.
	PersistOnPartial bool
	Message          MessageConfig
}

type state string

const (
	stateIdle      state = "idle"
	stateFetching  state = "fetching"
	stateComparing state = "comparing"
	stateUnchanged state = "unchanged"
	stateNotifying state = "notifying"
)

type Detector struct {
	cfg   Config
	src   Source
	out   Deliverer
	store storage.Store
	log   logx.Logger

	now   func() time.Time
	newID func() string
}

func New(cfg Config, src Source, out Deliverer, store storage.Store, log logx.Logger) (*Detector, error) {
	if strings.TrimSpace(cfg.PrimaryURL) == "" {
		return nil, errors.New("detector: primary url is required")
	}
	if src == nil || out == nil || store == nil {
		return nil, errors.New("detector: source, deliverer and store are required")
	}
	if cfg.SegmentLimit <= 0 {
		cfg.SegmentLimit = tgtext.DefaultSegmentLimit
	}
	cfg.Message = cfg.Message.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{
		cfg:   cfg,
		src:   src,
		out:   out,
		store: store,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// NewCycleID returns a fresh cycle identifier.
func (d *Detector) NewCycleID() string { return d.newID() }

// Cycle runs one fetch, compare and notify pass with a fresh cycle id.
func (d *Detector) Cycle(ctx context.Context) Result {
	return d.CycleWithID(ctx, d.newID())
}

// CycleWithID is Cycle with a caller-chosen id, so a supervisor that
// recovers a panic can still report which cycle failed.
func (d *Detector) CycleWithID(ctx context.Context, id string) Result {
	res := Result{Cycle: id, Started: d.now()}
	log := d.log.With(logx.String("cycle", id))
	cur := stateIdle
	move := func(next state) {
		log.Debug("cycle state", logx.String("from", string(cur)), logx.String("to", string(next)))
		cur = next
	}
	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Took = d.now().Sub(res.Started)
		if cur != stateIdle {
			move(stateIdle)
		}
		return res
	}

	move(stateFetching)
	snap, err := d.src.Fetch(ctx, d.cfg.PrimaryURL)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrPrimaryFetch, err)
		log.Warn("primary fetch failed, cycle aborted", logx.String("url", d.cfg.PrimaryURL), logx.Err(err))
		return finish(OutcomeAborted)
	}
	if snap.Empty() {
		res.Err = fmt.Errorf("%w: %s", ErrEmptyPage, d.cfg.PrimaryURL)
		log.Warn("primary page has no text, cycle aborted", logx.String("url", d.cfg.PrimaryURL))
		return finish(OutcomeAborted)
	}
	res.Fingerprint = snap.Fingerprint

	move(stateComparing)
	prev, ok, err := d.store.LoadFingerprint(ctx)
	if err != nil {
		res.Err = fmt.Errorf("%w: load fingerprint: %w", ErrState, err)
		log.Error("state load failed", logx.Err(err))
		return finish(OutcomeFailed)
	}
	if ok {
		res.Previous = prev
	}
	if ok && prev == snap.Fingerprint {
		move(stateUnchanged)
		log.Info("no new update", logx.String("fingerprint", short(snap.Fingerprint)))
		return finish(OutcomeUnchanged)
	}

	move(stateNotifying)
	log.Info("new update detected",
		logx.String("fingerprint", short(snap.Fingerprint)),
		logx.String("previous", short(prev)),
		logx.Bool("first_run", !ok),
	)

	secondary := d.fetchSecondary(ctx, log)
	res.Secondary = secondary != ""

	c := composer{msg: d.cfg.Message, html: d.cfg.HTML}
	text := c.Compose(snap.Text, secondary, d.cfg.SecondaryURL != "")
	split := tgtext.Split
	if d.cfg.HTML {
		split = tgtext.SplitHTML
	}
	segments := split(text, d.cfg.SegmentLimit)
	res.Report = d.out.Deliver(ctx, segments)

	outcome := OutcomeDelivered
	if !res.Report.Complete() {
		outcome = OutcomePartial
		res.Err = res.Report.Err()
	}

	if outcome == OutcomeDelivered || d.cfg.PersistOnPartial {
		if err := d.store.SaveFingerprint(ctx, snap.Fingerprint); err != nil {
			res.Err = errors.Join(res.Err, fmt.Errorf("%w: save fingerprint: %w", ErrState, err))
			log.Error("state save failed", logx.Err(err))
			outcome = OutcomeFailed
		} else {
			res.Persisted = true
		}
	}

	switch outcome {
	case OutcomeDelivered:
		log.Info("update sent and fingerprint saved",
			logx.Int("segments", res.Report.Total),
			logx.Bool("secondary", res.Secondary),
		)
	case OutcomePartial:
		log.Warn("update partially delivered",
			logx.Int("segments", res.Report.Total),
			logx.Int("sent", res.Report.Sent),
			logx.Int("failed", res.Report.Failed),
			logx.Bool("persisted", res.Persisted),
		)
	}

	d.appendHistory(ctx, log, res, outcome)
	return finish(outcome)
}

// fetchSecondary returns "" when no secondary url is configured or the
// fetch fails; the caller degrades to a primary-only message.
func (d *Detector) fetchSecondary(ctx context.Context, log logx.Logger) string {
	if d.cfg.SecondaryURL == "" {
		return ""
	}
	snap, err := d.src.Fetch(ctx, d.cfg.SecondaryURL)
	if err != nil {
		log.Warn("secondary fetch failed, sending primary only", logx.String("url", d.cfg.SecondaryURL), logx.Err(err))
		return ""
	}
	if snap.Empty() {
		log.Warn("secondary page has no text, sending primary only", logx.String("url", d.cfg.SecondaryURL))
	}
	return snap.Text
}

func (d *Detector) appendHistory(ctx context.Context, log logx.Logger, res Result, outcome Outcome) {
	rec := storage.Record{
		At:          d.now(),
		Cycle:       res.Cycle,
		Fingerprint: res.Fingerprint,
		Outcome:     outcome.String(),
		Segments:    res.Report.Total,
		Sent:        res.Report.Sent,
		Failed:      res.Report.Failed,
		Secondary:   res.Secondary,
		Persisted:   res.Persisted,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := d.store.AppendHistory(ctx, rec); err != nil && !errors.Is(err, storage.ErrDisabled) {
		log.Warn("history append failed", logx.Err(err))
	}
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
