package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"csrelay/internal/task/scheduler"
)

var ErrMissingCredential = errors.New("missing required credential")

// Durations holds the parsed duration fields with defaults applied.
type Durations struct {
	FetchTimeout time.Duration
	SendTimeout  time.Duration
	Pacing       time.Duration
	BusyTimeout  time.Duration

	DebugRead  time.Duration
	DebugWrite time.Duration
	DebugIdle  time.Duration
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Durations parses every duration field. Errors name the field path.
func (c *Config) Durations() (Durations, error) {
	var (
		d    Durations
		errs []error
	)
	parse := func(dst *time.Duration, path, raw string, def time.Duration) {
		v, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}
	parse(&d.FetchTimeout, "source.timeout", c.Source.Timeout, 20*time.Second)
	parse(&d.SendTimeout, "telegram.send_timeout", c.Telegram.SendTimeout, 15*time.Second)
	if p, err := parsePacing(c.Delivery.Pacing); err != nil {
		errs = append(errs, err)
	} else {
		d.Pacing = p
	}
	parse(&d.BusyTimeout, "storage.busy_timeout", c.Storage.BusyTimeout, time.Second)
	parse(&d.DebugRead, "debug.read_timeout", c.Debug.ReadTimeout, 10*time.Second)
	parse(&d.DebugWrite, "debug.write_timeout", c.Debug.WriteTimeout, 0)
	parse(&d.DebugIdle, "debug.idle_timeout", c.Debug.IdleTimeout, time.Minute)
	return d, errors.Join(errs...)
}

// parsePacing maps delivery.pacing to the notifier's convention: empty is
// the 1s default, "0" or "off" disables pacing (negative).
func parsePacing(raw string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return time.Second, nil
	case "0", "off", "none":
		return -1, nil
	}
	d, err := ParseDurationField("delivery.pacing", s)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return -1, nil
	}
	return d, nil
}

// ParseMode returns the Telegram parse mode; "" means plain text.
func (c *Config) ParseMode() string {
	switch strings.ToLower(strings.TrimSpace(c.Delivery.ParseMode)) {
	case "", "none", "plain":
		return ""
	case "markdown":
		return "Markdown"
	case "markdownv2":
		return "MarkdownV2"
	default:
		return "HTML"
	}
}

// Location resolves poll.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Poll.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("poll.timezone: %w", err)
	}
	return loc, nil
}

// Validate reports every problem at once.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("%w: BOT_TOKEN (telegram.token)", ErrMissingCredential))
	}
	if c.Telegram.ChatID == 0 {
		errs = append(errs, fmt.Errorf("%w: CHAT_ID (telegram.chat_id)", ErrMissingCredential))
	}
	if c.Telegram.ThreadID < 0 {
		add("telegram.thread_id: must be >= 0")
	}
	if v := strings.TrimSpace(c.Telegram.APIURL); v != "" {
		if err := checkHTTPURL(v); err != nil {
			add("telegram.api_url: %v", err)
		}
	}

	if err := checkHTTPURL(c.Source.PrimaryURL); err != nil {
		add("source.primary_url: %v", err)
	}
	if v := c.Source.Secondary(); v != "" {
		if err := checkHTTPURL(v); err != nil {
			add("source.secondary_url: %v", err)
		}
	}
	if c.Source.MaxBytes < 0 {
		add("source.max_bytes: must be >= 0")
	}

	if _, err := scheduler.ParseSchedule(c.Poll.Schedule); err != nil {
		add("poll.schedule: %v", err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.Delivery.SegmentLimit < 0 || c.Delivery.SegmentLimit > 4096 {
		add("delivery.segment_limit: must be between 1 and 4096 (0 = default)")
	}
	switch strings.ToLower(strings.TrimSpace(c.Delivery.ParseMode)) {
	case "", "none", "plain", "html", "markdown", "markdownv2":
	default:
		add("delivery.parse_mode: unknown mode %q", c.Delivery.ParseMode)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if c.Logging.Telegram.RatePerSec < 0 {
		add("logging.telegram.rate_per_sec: must be >= 0")
	}

	if _, err := c.Durations(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}
