package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"csrelay/internal/detector"
	rtsup "csrelay/internal/runtime/supervisor"
	logx "csrelay/pkg/logx"
)

// Cycler runs one detector cycle. *detector.Detector implements it.
type Cycler interface {
	NewCycleID() string
	CycleWithID(ctx context.Context, id string) detector.Result
}

type Option func(*Runner)

// WithSupervisor sets the supervisor whose Protect guards each cycle.
func WithSupervisor(sup *rtsup.Supervisor) Option {
	return func(r *Runner) { r.sup = sup }
}

// WithOnResult registers a hook called after every cycle, on the cycle's goroutine.
func WithOnResult(fn func(detector.Result)) Option {
	return func(r *Runner) { r.onResult = fn }
}

// WithLocation sets the time zone for cron schedules. Default time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *Runner) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// Runner drives cycles on a schedule.
type Runner struct {
	spec     ParsedSpec
	cy       Cycler
	log      logx.Logger
	sup      *rtsup.Supervisor
	onResult func(detector.Result)
	loc      *time.Location
}

func NewRunner(schedule string, cy Cycler, log logx.Logger, opts ...Option) (*Runner, error) {
	if cy == nil {
		return nil, errors.New("scheduler: cycler is required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{spec: spec, cy: cy, log: log, loc: time.Local}
	for _, o := range opts {
		o(r)
	}
	if r.sup == nil {
		r.sup = rtsup.New(context.Background(), rtsup.WithLogger(log))
	}
	return r, nil
}

func (r *Runner) Spec() ParsedSpec { return r.spec }

// Once runs exactly one cycle. A panic inside the cycle becomes an
// Outcome failed result.
func (r *Runner) Once(ctx context.Context) detector.Result {
	id := r.cy.NewCycleID()
	started := time.Now()
	var res detector.Result
	if err := r.sup.Protect("cycle", func() { res = r.cy.CycleWithID(ctx, id) }); err != nil {
		res = detector.Failure(id, started, err)
	}
	r.report(res)
	if r.onResult != nil {
		r.onResult(res)
	}
	return res
}

// Loop runs cycles until ctx ends. The first cycle starts immediately.
func (r *Runner) Loop(ctx context.Context) error {
	r.log.Info("poll loop started", logx.String("schedule", r.spec.String()))
	defer r.log.Info("poll loop stopped")

	if r.spec.Kind == SpecCron {
		return r.loopCron(ctx)
	}
	return r.loopInterval(ctx)
}

func (r *Runner) loopInterval(ctx context.Context) error {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		r.Once(ctx)
		// Fixed delay measured from the end of the cycle.
		t.Reset(r.spec.Every)
	}
}

func (r *Runner) loopCron(ctx context.Context) error {
	r.Once(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	cl := cronLogger{log: r.log}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(r.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(r.spec.Cron, func() { r.Once(ctx) }); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	// Wait for a running cycle to observe cancellation.
	<-c.Stop().Done()
	return ctx.Err()
}

func (r *Runner) report(res detector.Result) {
	fields := []logx.Field{
		logx.String("cycle", res.Cycle),
		logx.String("outcome", res.Outcome.String()),
		logx.Duration("took", res.Took),
	}
	switch res.Outcome {
	case detector.OutcomeFailed:
		r.log.Error("cycle failed", append(fields, logx.Err(res.Err))...)
	case detector.OutcomeAborted, detector.OutcomePartial:
		r.log.Warn("cycle finished with errors", append(fields, logx.Err(res.Err))...)
	default:
		r.log.Debug("cycle finished", fields...)
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
