package config

import (
	"reflect"
	"sort"
	"strings"

	logx "csrelay/pkg/logx"
)

// LiveSections can be applied without a restart.
var LiveSections = map[string]bool{"logging": true}

// SummarizeChange returns the sorted list of changed top-level sections and
// safe structured fields for logging. Secrets are reported only as
// "changed" flags.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := ot.Token != nt.Token
	ot.Token, nt.Token = "", ""
	if tokenChanged || ot != nt {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.Int64("telegram.chat_id", nt.ChatID),
			logx.Int("telegram.thread_id", nt.ThreadID),
		)
	}

	if !reflect.DeepEqual(oldCfg.Source, newCfg.Source) {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.primary_url", newCfg.Source.PrimaryURL),
			logx.String("source.secondary_url", newCfg.Source.Secondary()),
			logx.String("source.timeout", strings.TrimSpace(newCfg.Source.Timeout)),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.schedule", newCfg.Poll.Schedule),
			logx.Bool("poll.run_once", newCfg.Poll.RunOnce),
		)
	}

	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Int("delivery.segment_limit", newCfg.Delivery.SegmentLimit),
			logx.String("delivery.pacing", newCfg.Delivery.Pacing),
			logx.String("delivery.parse_mode", newCfg.ParseMode()),
			logx.Bool("delivery.persist_on_partial", newCfg.Delivery.PersistOnPartial),
		)
	}

	if oldCfg.Message != newCfg.Message {
		changed = append(changed, "message")
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	od, nd := oldCfg.Debug, newCfg.Debug
	debugTokenChanged := od.Token != nd.Token
	od.Token, nd.Token = "", ""
	if debugTokenChanged || od != nd {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", nd.Addr),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed down to the sections that are not
// applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
