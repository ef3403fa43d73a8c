package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "csrelay/pkg/logx"
)

const defaultStatePath = "last_update_hash.txt"

// fileStore keeps the fingerprint in a plain text file so it can be
// committed by CI jobs or inspected by hand.
//
// Files:
//   - <path>                 (hex fingerprint, nothing else)
//   - <path>.history.jsonl   (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu          sync.Mutex
	path        string
	historyPath string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultStatePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{
		log:         log,
		path:        path,
		historyPath: path + ".history.jsonl",
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadFingerprint(ctx context.Context) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read state %s: %w", s.path, err)
	}
	fp := strings.TrimSpace(string(b))
	if fp == "" {
		return "", false, nil
	}
	return fp, true, nil
}

// SaveFingerprint replaces the state file atomically (temp file + rename),
// so a crash mid-write leaves the previous fingerprint intact.
func (s *fileStore) SaveFingerprint(ctx context.Context, fp string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(fp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		s.log.Debug("state chmod failed", logx.Err(err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (s *fileStore) AppendHistory(ctx context.Context, r Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(r)
}
