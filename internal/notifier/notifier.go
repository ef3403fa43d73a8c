package notifier

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"csrelay/internal/transport"
	logx "csrelay/pkg/logx"
	"csrelay/pkg/tgtext"
)

// Notifier is not safe for concurrent Deliver calls; a cycle owns it.
type Notifier struct {
	sender transport.Sender
	target transport.ChatTarget
	opts   transport.SendOptions
	cfg    Config
	log    logx.Logger

	limiter *rate.Limiter
}

func New(cfg Config, sender transport.Sender, target transport.ChatTarget, opts transport.SendOptions, log logx.Logger) *Notifier {
	if cfg.Pacing == 0 {
		cfg.Pacing = time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// burst 1: the first send goes out immediately, later ones wait Pacing.
	lim := rate.NewLimiter(rate.Every(cfg.Pacing), 1)
	if cfg.Pacing < 0 {
		lim = rate.NewLimiter(rate.Inf, 1)
	}
	return &Notifier{
		sender: sender,
		target: target,
		opts:   opts,
		cfg:    cfg,
		log:    log,

		limiter: lim,
	}
}

// Deliver sends segments in order. It never stops on a send failure.
// If ctx ends, the remaining segments are counted as failed.
func (n *Notifier) Deliver(ctx context.Context, segments []string) Report {
	rep := Report{Total: len(segments)}
	if len(segments) == 0 {
		return rep
	}
	if n.sender == nil {
		rep.Failed = rep.Total
		rep.Errors = append(rep.Errors, ErrNoSender)
		return rep
	}

	for i, seg := range segments {
		if err := n.limiter.Wait(ctx); err != nil {
			left := rep.Total - i
			rep.Failed += left
			rep.Errors = append(rep.Errors, fmt.Errorf("delivery interrupted before part %d/%d: %w", i+1, rep.Total, err))
			n.log.Warn("delivery interrupted",
				logx.Int("part", i+1),
				logx.Int("total", rep.Total),
				logx.Int("skipped", left),
				logx.Err(err),
			)
			return rep
		}

		text := tgtext.PartPrefix(i+1, rep.Total) + seg
		opts := n.opts
		callCtx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
		ref, err := n.sender.SendText(callCtx, n.target, text, &opts)
		cancel()
		if err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Errorf("part %d/%d: %w", i+1, rep.Total, err))
			n.log.Error("segment delivery failed",
				logx.Int("part", i+1),
				logx.Int("total", rep.Total),
				logx.Int("len", len([]rune(text))),
				logx.Err(err),
			)
			continue
		}
		rep.Sent++
		n.log.Debug("segment delivered",
			logx.Int("part", i+1),
			logx.Int("total", rep.Total),
			logx.Int("message_id", ref.MessageID),
		)
	}
	return rep
}
