package app

import (
	"strings"

	"csrelay/internal/config"
	"csrelay/internal/detector"
	"csrelay/internal/notifier"
	"csrelay/internal/observability/debug"
	"csrelay/internal/page"
	"csrelay/internal/storage"
	"csrelay/internal/transport"
	"csrelay/internal/transport/telegram"
	logx "csrelay/pkg/logx"
)

// components holds the per-component settings derived from one Config.
type components struct {
	telegram telegram.Config
	fetcher  page.FetcherConfig
	notifier notifier.Config
	target   transport.ChatTarget
	send     transport.SendOptions
	detector detector.Config
	storage  storage.Config
	logging  logx.Config
	debug    debug.Config
}

func mapConfig(cfg *config.Config) (components, error) {
	d, err := cfg.Durations()
	if err != nil {
		return components{}, err
	}
	parseMode := cfg.ParseMode()

	c := components{
		telegram: telegram.Config{
			Token:       cfg.Telegram.Token,
			APIURL:      cfg.Telegram.APIURL,
			SendTimeout: d.SendTimeout,
		},
		fetcher: page.FetcherConfig{
			Timeout:        d.FetchTimeout,
			UserAgent:      cfg.Source.UserAgent,
			AcceptLanguage: cfg.Source.AcceptLanguage,
			MaxBytes:       cfg.Source.MaxBytes,
		},
		notifier: notifier.Config{
			Pacing:      d.Pacing,
			SendTimeout: d.SendTimeout,
		},
		target: transport.ChatTarget{
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		},
		send: transport.SendOptions{
			ParseMode:      parseMode,
			DisablePreview: cfg.Delivery.PreviewDisabled(),
		},
		detector: detector.Config{
			PrimaryURL:       cfg.Source.PrimaryURL,
			SecondaryURL:     cfg.Source.Secondary(),
			SegmentLimit:     cfg.Delivery.SegmentLimit,
			HTML:             parseMode == "HTML",
			PersistOnPartial: cfg.Delivery.PersistOnPartial,
			Message: detector.MessageConfig{
				HeadlineIcon:   cfg.Message.HeadlineIcon,
				Headline:       cfg.Message.Headline,
				PrimaryIcon:    cfg.Message.PrimaryIcon,
				PrimaryLabel:   cfg.Message.PrimaryLabel,
				SecondaryIcon:  cfg.Message.SecondaryIcon,
				SecondaryLabel: cfg.Message.SecondaryLabel,
				FallbackNote:   cfg.Message.FallbackNote,
			},
		},
		storage: storage.Config{
			Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
			Path:        strings.TrimSpace(cfg.Storage.Path),
			BusyTimeout: d.BusyTimeout,
		},
		logging: mapLogging(cfg),
		debug: debug.Config{
			Enabled:       cfg.Debug.Enabled,
			Addr:          cfg.Debug.Addr,
			Token:         cfg.Debug.Token,
			AllowInsecure: cfg.Debug.AllowInsecure,
			PprofPrefix:   cfg.Debug.PprofPrefix,
			ReadTimeout:   d.DebugRead,
			WriteTimeout:  d.DebugWrite,
			IdleTimeout:   d.DebugIdle,
		},
	}
	return c, nil
}

// mapLogging is also used on config reload, the only live-applied section.
func mapLogging(cfg *config.Config) logx.Config {
	chatID := cfg.Logging.Telegram.ChatID
	if chatID == 0 {
		chatID = cfg.Telegram.ChatID
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}
