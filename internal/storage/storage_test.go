package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "csrelay/pkg/logx"
)

func TestFileStoreMissingStateIsAbsent(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "state", "last.txt")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	fp, ok, err := st.LoadFingerprint(context.Background())
	if err != nil || ok || fp != "" {
		t.Fatalf("LoadFingerprint = (%q, %v, %v), want absent", fp, ok, err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "last_update_hash.txt")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	if err := st.SaveFingerprint(ctx, "abc123"); err != nil {
		t.Fatalf("SaveFingerprint: %v", err)
	}
	if err := st.SaveFingerprint(ctx, "def456"); err != nil {
		t.Fatalf("SaveFingerprint: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if string(b) != "def456" {
		t.Fatalf("state file = %q, want bare fingerprint", b)
	}
	fp, ok, err := st.LoadFingerprint(ctx)
	if err != nil || !ok || fp != "def456" {
		t.Fatalf("LoadFingerprint = (%q, %v, %v)", fp, ok, err)
	}

	matches, _ := filepath.Glob(path + ".*.tmp")
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestFileStoreTrimsAndTreatsBlankAsAbsent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.txt")
	st, _ := Open(Config{Path: path}, logx.Nop())

	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := st.LoadFingerprint(context.Background()); ok || err != nil {
		t.Fatalf("blank state should be absent (ok=%v err=%v)", ok, err)
	}

	if err := os.WriteFile(path, []byte("cafe\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fp, ok, _ := st.LoadFingerprint(context.Background())
	if !ok || fp != "cafe" {
		t.Fatalf("LoadFingerprint = (%q, %v)", fp, ok)
	}
}

func TestFileStoreHistory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.txt")
	st, _ := Open(Config{Path: path}, logx.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := Record{At: time.Now(), Cycle: "c", Fingerprint: "fp", Outcome: "delivered", Segments: 2, Sent: 2}
		if err := st.AppendHistory(ctx, r); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	f, err := os.Open(path + ".history.jsonl")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad history line %q: %v", sc.Text(), err)
		}
		if r.Outcome != "delivered" || r.Sent != 2 {
			t.Fatalf("unexpected record: %+v", r)
		}
		n++
	}
	if n != 3 {
		t.Fatalf("history lines = %d, want 3", n)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "relay.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: 500 * time.Millisecond}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if _, ok, err := st.LoadFingerprint(ctx); ok || err != nil {
		t.Fatalf("fresh db should have no fingerprint (ok=%v err=%v)", ok, err)
	}
	if err := st.SaveFingerprint(ctx, "one"); err != nil {
		t.Fatalf("SaveFingerprint: %v", err)
	}
	if err := st.SaveFingerprint(ctx, "two"); err != nil {
		t.Fatalf("SaveFingerprint: %v", err)
	}
	fp, ok, err := st.LoadFingerprint(ctx)
	if err != nil || !ok || fp != "two" {
		t.Fatalf("LoadFingerprint = (%q, %v, %v)", fp, ok, err)
	}
	if err := st.AppendHistory(ctx, Record{Cycle: "c1", Fingerprint: "two", Outcome: "partial", Segments: 3, Sent: 2, Failed: 1, Error: "boom"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	ss := st.(*sqliteStore)
	var n int
	if err := ss.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history WHERE outcome = 'partial'`).Scan(&n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 1 {
		t.Fatalf("history rows = %d, want 1", n)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
