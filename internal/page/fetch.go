package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	logx "csrelay/pkg/logx"
)

// DefaultUserAgent identifies as a desktop browser; the update pages serve
// reduced markup to unknown clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

var (
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrBodyTooLarge is returned instead of fingerprinting a truncated page.
	ErrBodyTooLarge = errors.New("response body exceeds max_bytes")
)

// FetcherConfig configures a Fetcher. Zero values take defaults.
type FetcherConfig struct {
	Timeout   time.Duration // default 20s
	UserAgent string
	// AcceptLanguage is sent as-is when set. The page language itself is
	// chosen by the URL query.
	AcceptLanguage string
	MaxBytes       int64 // default 5 MiB
}

// Fetcher downloads a page and turns it into a Snapshot.
type Fetcher struct {
	client *http.Client
	cfg    FetcherConfig
	log    logx.Logger
	now    func() time.Time
}

func NewFetcher(cfg FetcherConfig, log logx.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 << 20
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Fetch retrieves url and extracts its visible text.
// Transport failures, non-2xx responses (ErrHTTPStatus) and bodies over
// MaxBytes (ErrBodyTooLarge) are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Snapshot{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if f.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	}

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Snapshot{}, fmt.Errorf("%w: %d from %s", ErrHTTPStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read body %s: %w", url, err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return Snapshot{}, fmt.Errorf("%w: %s larger than %d bytes", ErrBodyTooLarge, url, f.cfg.MaxBytes)
	}

	text := ExtractText(decodeBody(body, resp.Header.Get("Content-Type")))
	snap := Snapshot{
		URL:         url,
		Text:        text,
		Fingerprint: Fingerprint(text),
		FetchedAt:   f.now(),
	}
	f.log.Debug("page fetched",
		logx.String("url", url),
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(body)),
		logx.Int("text_len", len(text)),
		logx.Duration("took", snap.FetchedAt.Sub(start)),
	)
	return snap, nil
}

// decodeBody converts body to UTF-8 using the Content-Type charset or a
// <meta> declaration. Unknown encodings fall back to the raw bytes.
func decodeBody(body []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return bytes.NewReader(body)
	}
	return r
}
