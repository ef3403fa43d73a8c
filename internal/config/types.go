package config

// Config is the full process configuration. It is built once at startup
// (defaults, then the optional file, then the environment) and passed by
// value into each component.
//
// All durations are Go duration strings (e.g. "500ms", "20s", "5m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Source   SourceConfig   `json:"source"`
	Poll     PollConfig     `json:"poll"`
	Delivery DeliveryConfig `json:"delivery"`
	Message  MessageConfig  `json:"message"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Debug    DebugConfig    `json:"debug"`
}

type TelegramConfig struct {
	Token    string `json:"token"` // BOT_TOKEN; never logged
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// APIURL overrides https://api.telegram.org (self-hosted Bot API server).
	APIURL      string `json:"api_url,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"` // default "15s"
}

type SourceConfig struct {
	PrimaryURL string `json:"primary_url"`
	// SecondaryURL is a pointer so an explicit "" (primary-only messages)
	// differs from an omitted key (default Ukrainian page).
	SecondaryURL   *string `json:"secondary_url,omitempty"`
	Timeout        string  `json:"timeout,omitempty"` // default "20s"
	UserAgent      string  `json:"user_agent,omitempty"`
	AcceptLanguage string  `json:"accept_language,omitempty"`
	MaxBytes       int64   `json:"max_bytes,omitempty"`
}

// Secondary returns the effective secondary URL ("" disables it).
func (s SourceConfig) Secondary() string {
	if s.SecondaryURL == nil {
		return DefaultSecondaryURL
	}
	return *s.SecondaryURL
}

type PollConfig struct {
	// Schedule: "30s", "00:05", "*/5 * * * *", "@every 1m".
	Schedule string `json:"schedule"`
	RunOnce  bool   `json:"run_once,omitempty"`
	// Timezone applies to cron schedules. Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

type DeliveryConfig struct {
	SegmentLimit int    `json:"segment_limit,omitempty"` // default 3800 runes
	Pacing       string `json:"pacing,omitempty"`        // default "1s"; "0" or "off" disables
	// ParseMode: "HTML" (default), "Markdown", "MarkdownV2" or "none".
	ParseMode      string `json:"parse_mode,omitempty"`
	DisablePreview *bool  `json:"disable_preview,omitempty"` // default true
	// PersistOnPartial stores the fingerprint even if some segments failed.
	PersistOnPartial bool `json:"persist_on_partial,omitempty"`
}

// PreviewDisabled returns the effective link-preview flag.
func (d DeliveryConfig) PreviewDisabled() bool {
	return d.DisablePreview == nil || *d.DisablePreview
}

// MessageConfig overrides the fixed parts of an announcement.
// Empty fields keep the built-in text.
type MessageConfig struct {
	HeadlineIcon   string `json:"headline_icon,omitempty"`
	Headline       string `json:"headline,omitempty"`
	PrimaryIcon    string `json:"primary_icon,omitempty"`
	PrimaryLabel   string `json:"primary_label,omitempty"`
	SecondaryIcon  string `json:"secondary_icon,omitempty"`
	SecondaryLabel string `json:"secondary_label,omitempty"`
	FallbackNote   string `json:"fallback_note,omitempty"`
}

// StorageConfig selects where the last fingerprint lives.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./csrelay.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) | "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards WARN+ records to a chat. ChatID defaults to
// telegram.chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DebugConfig controls the optional health/metrics/pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`

	// WriteTimeout defaults to 0 so /debug/pprof/profile (30s+) works.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
