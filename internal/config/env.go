package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env files into the process environment. Variables
// already set win over file values.
//
// Priority:
//  1. ENV_FILE (if set, only this file is loaded)
//  2. .env.local
//  3. .env
func LoadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// applyEnv overlays environment variables on cfg.
//
//	BOT_TOKEN       telegram.token
//	CHAT_ID         telegram.chat_id
//	CHAT_THREAD_ID  telegram.thread_id
//	RUN_ONCE        poll.run_once ("1" or "true")
//	POLL_SCHEDULE   poll.schedule
//	STATE_FILE      storage.path
//	LOG_LEVEL       logging.level
//	PRIMARY_URL     source.primary_url
//	SECONDARY_URL   source.secondary_url ("" disables)
func applyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("BOT_TOKEN"); ok && v != "" {
		cfg.Telegram.Token = v
	}
	if v, ok := get("CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAT_ID: invalid integer %q", v)
		}
		cfg.Telegram.ChatID = id
	}
	if v, ok := get("CHAT_THREAD_ID"); ok && v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHAT_THREAD_ID: invalid integer %q", v)
		}
		cfg.Telegram.ThreadID = id
	}
	if v, ok := get("RUN_ONCE"); ok {
		cfg.Poll.RunOnce = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := get("POLL_SCHEDULE"); ok && v != "" {
		cfg.Poll.Schedule = v
	}
	if v, ok := get("STATE_FILE"); ok && v != "" {
		cfg.Storage.Path = v
	}
	if v, ok := get("LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := get("PRIMARY_URL"); ok && v != "" {
		cfg.Source.PrimaryURL = v
	}
	if v, ok := get("SECONDARY_URL"); ok {
		cfg.Source.SecondaryURL = &v
	}
	return nil
}
