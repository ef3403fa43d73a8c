package debug

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"csrelay/internal/detector"
	"csrelay/internal/notifier"
	logx "csrelay/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReflectsLastCycle(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	h := New(Config{}, m, logx.Nop()).Handler()

	rec := get(t, h, "/healthz", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"starting"`) {
		t.Fatalf("before first cycle: %d %s", rec.Code, rec.Body.String())
	}

	m.Observe(detector.Result{Cycle: "a", Outcome: detector.OutcomeDelivered, Started: time.Now(), Report: notifier.Report{Total: 2, Sent: 2}})
	rec = get(t, h, "/healthz", nil)
	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || body.LastOutcome != "delivered" || body.Cycles != 1 {
		t.Fatalf("after delivered: %d %+v", rec.Code, body)
	}

	m.Observe(detector.Result{Cycle: "b", Outcome: detector.OutcomeFailed, Started: time.Now(), Err: errors.New("panic in cycle")})
	rec = get(t, h, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "panic in cycle") {
		t.Fatalf("after failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	m.Observe(detector.Result{Outcome: detector.OutcomePartial, Took: time.Second, Report: notifier.Report{Total: 3, Sent: 2, Failed: 1}})
	h := New(Config{}, m, logx.Nop()).Handler()

	rec := get(t, h, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{
		`csrelay_cycles_total{outcome="partial"} 1`,
		"csrelay_segments_sent_total 2",
		"csrelay_segments_failed_total 1",
		"csrelay_cycle_duration_seconds_count 1",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	h := New(Config{Token: "s3cret"}, nil, logx.Nop()).Handler()

	if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := get(t, h, "/healthz?token=wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", rec.Code)
	}
	if rec := get(t, h, "/healthz?token=s3cret", nil); rec.Code != http.StatusOK {
		t.Fatalf("query token: %d", rec.Code)
	}
	if rec := get(t, h, "/metrics", map[string]string{"Authorization": "Bearer s3cret"}); rec.Code != http.StatusOK {
		t.Fatalf("bearer token: %d", rec.Code)
	}
}

func TestPprofPrefix(t *testing.T) {
	t.Parallel()
	h := New(Config{PprofPrefix: "internal/pprof"}, nil, logx.Nop()).Handler()

	if rec := get(t, h, "/internal/pprof/", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "goroutine") {
		t.Fatalf("index: %d", rec.Code)
	}
	if rec := get(t, h, "/internal/pprof", nil); rec.Code != http.StatusPermanentRedirect {
		t.Fatalf("redirect: %d", rec.Code)
	}
}

func TestRunRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "0.0.0.0:0"}, nil, logx.Nop())
	if err := s.Run(context.Background()); !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("Run = %v, want ErrInsecureBind", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(Config{}, nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.5:6060":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
