package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{"BOT_TOKEN": "123:abc", "CHAT_ID": "-1001234567890"}
}

func newTestManager(t *testing.T, path string, optional bool, env map[string]string) *Manager {
	t.Helper()
	m := NewManager(path, optional)
	m.SetLookup(envMap(env))
	return m
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaultsFromEnvOnly(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "csrelay.yaml")
	cfg, err := newTestManager(t, path, true, baseEnv()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChatID != -1001234567890 {
		t.Fatalf("credentials not applied: %+v", cfg.Telegram)
	}
	if cfg.Source.PrimaryURL != DefaultPrimaryURL || cfg.Source.Secondary() != DefaultSecondaryURL {
		t.Fatalf("unexpected sources: %+v", cfg.Source)
	}
	if cfg.Poll.Schedule != "30s" || cfg.Poll.RunOnce {
		t.Fatalf("unexpected poll: %+v", cfg.Poll)
	}
	if cfg.ParseMode() != "HTML" || !cfg.Delivery.PreviewDisabled() || cfg.Delivery.SegmentLimit != 3800 {
		t.Fatalf("unexpected delivery: %+v", cfg.Delivery)
	}
	if cfg.Storage.Path != DefaultStatePath {
		t.Fatalf("storage path = %q", cfg.Storage.Path)
	}
	d, err := cfg.Durations()
	if err != nil {
		t.Fatalf("Durations: %v", err)
	}
	if d.FetchTimeout != 20*time.Second || d.SendTimeout != 15*time.Second || d.Pacing != time.Second {
		t.Fatalf("unexpected durations: %+v", d)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Parallel()
	_, err := newTestManager(t, "", true, map[string]string{}).Load()
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	for _, want := range []string{"BOT_TOKEN", "CHAT_ID"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadRejectsBadChatID(t *testing.T) {
	t.Parallel()
	env := baseEnv()
	env["CHAT_ID"] = "@channel"
	if _, err := newTestManager(t, "", true, env).Load(); err == nil || !strings.Contains(err.Error(), "CHAT_ID") {
		t.Fatalf("err = %v", err)
	}
}

func TestEnvOverlay(t *testing.T) {
	t.Parallel()
	env := baseEnv()
	env["RUN_ONCE"] = "1"
	env["CHAT_THREAD_ID"] = "42"
	env["POLL_SCHEDULE"] = "*/5 * * * *"
	env["STATE_FILE"] = "/var/lib/csrelay/state.txt"
	env["LOG_LEVEL"] = "debug"
	env["PRIMARY_URL"] = "https://example.test/en"
	env["SECONDARY_URL"] = ""
	cfg, err := newTestManager(t, "", true, env).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Poll.RunOnce || cfg.Telegram.ThreadID != 42 || cfg.Poll.Schedule != "*/5 * * * *" {
		t.Fatalf("env not applied: %+v %+v", cfg.Poll, cfg.Telegram)
	}
	if cfg.Storage.Path != "/var/lib/csrelay/state.txt" || cfg.Logging.Level != "debug" {
		t.Fatalf("env not applied: %+v %+v", cfg.Storage, cfg.Logging)
	}
	if cfg.Source.PrimaryURL != "https://example.test/en" || cfg.Source.Secondary() != "" {
		t.Fatalf("sources: %+v", cfg.Source)
	}

	env["RUN_ONCE"] = "true"
	cfg, _ = newTestManager(t, "", true, env).Load()
	if !cfg.Poll.RunOnce {
		t.Fatal("RUN_ONCE=true not honoured")
	}
	env["RUN_ONCE"] = "0"
	cfg, _ = newTestManager(t, "", true, env).Load()
	if cfg.Poll.RunOnce {
		t.Fatal("RUN_ONCE=0 enabled run once")
	}
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "csrelay.yml")
	writeFile(t, path, `
telegram:
  chat_id: 777
  thread_id: 5
source:
  secondary_url: ""
  timeout: 5s
poll:
  schedule: "00:05"
delivery:
  pacing: 250ms
  parse_mode: none
  persist_on_partial: true
storage:
  driver: sqlite
  path: ./state.db
`)
	env := map[string]string{"BOT_TOKEN": "t"}
	cfg, err := newTestManager(t, path, false, env).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChatID != 777 || cfg.Telegram.ThreadID != 5 {
		t.Fatalf("telegram: %+v", cfg.Telegram)
	}
	if cfg.Source.Secondary() != "" || cfg.Source.PrimaryURL != DefaultPrimaryURL {
		t.Fatalf("source: %+v", cfg.Source)
	}
	if cfg.ParseMode() != "" || !cfg.Delivery.PersistOnPartial || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("delivery/storage: %+v %+v", cfg.Delivery, cfg.Storage)
	}
	d, _ := cfg.Durations()
	if d.FetchTimeout != 5*time.Second || d.Pacing != 250*time.Millisecond {
		t.Fatalf("durations: %+v", d)
	}
}

func TestLoadJSONStrict(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.json")
	writeFile(t, unknown, `{"telegram":{"chat_id":1,"polling":true}}`)
	if _, err := newTestManager(t, unknown, false, baseEnv()).Load(); err == nil || !strings.Contains(err.Error(), "polling") {
		t.Fatalf("unknown field accepted: %v", err)
	}

	trailing := filepath.Join(dir, "trailing.json")
	writeFile(t, trailing, `{"poll":{"schedule":"1m"}} {}`)
	if _, err := newTestManager(t, trailing, false, baseEnv()).Load(); err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("trailing data accepted: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := newTestManager(t, path, true, baseEnv()).Load(); err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if _, err := newTestManager(t, path, false, baseEnv()).Load(); err == nil {
		t.Fatal("explicit missing file accepted")
	}
}

func TestValidateReportsFieldPaths(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.Telegram.Token = "t"
	cfg.Telegram.ChatID = 1
	cfg.Source.PrimaryURL = "ftp://example.test"
	cfg.Poll.Schedule = "whenever"
	cfg.Delivery.Pacing = "fast"
	cfg.Delivery.ParseMode = "bbcode"
	cfg.Storage.Driver = "redis"
	cfg.Delivery.SegmentLimit = 5000

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"source.primary_url", "poll.schedule", "delivery.pacing", "delivery.parse_mode",
		"storage.driver", "delivery.segment_limit",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	a := Defaults()
	a.Telegram.Token = "old-secret"
	b := a
	b.Telegram.Token = "new-secret"
	b.Logging.Level = "debug"
	b.Poll.Schedule = "1m"

	changed, attrs := SummarizeChange(&a, &b)
	if strings.Join(changed, ",") != "logging,poll,telegram" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(changed); strings.Join(got, ",") != "poll,telegram" {
		t.Fatalf("RestartRequired = %v", got)
	}

	same, _ := SummarizeChange(&a, &a)
	if len(same) != 0 {
		t.Fatalf("identical configs reported changes: %v", same)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "csrelay.yaml")
	writeFile(t, path, "logging:\n  level: info\n  console: true\n")

	m := newTestManager(t, path, false, baseEnv())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	// An invalid file is rejected and not published.
	writeFile(t, path, "poll:\n  schedule: whenever\n")
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg.Poll)
	case <-time.After(700 * time.Millisecond):
	}

	writeFile(t, path, "logging:\n  level: debug\n  console: true\n")
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published after change")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("Get does not return the committed config")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestPacingCanBeDisabled(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: time.Second},
		{raw: "250ms", want: 250 * time.Millisecond},
		{raw: "0", want: -1},
		{raw: "0s", want: -1},
		{raw: "off", want: -1},
		{raw: " OFF ", want: -1},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			cfg := Defaults()
			cfg.Delivery.Pacing = tt.raw
			d, err := cfg.Durations()
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "delivery.pacing") {
					t.Fatalf("expected delivery.pacing error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Durations: %v", err)
			}
			if d.Pacing != tt.want {
				t.Fatalf("Pacing = %s, want %s", d.Pacing, tt.want)
			}
		})
	}
}
