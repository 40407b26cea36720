package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/internal/types"
	"golang.org/x/time/rate"
)

type FetcherConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxBytes       int64
	RateLimit      float64 // requests per second
	TempDir        string
	UserAgent      string
}

// Fetcher retrieves remote PDFs onto local disk.
type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
}

var errReadTimeout = errors.New("read timed out")

func NewWithConfig(config FetcherConfig) *Fetcher {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 20 * 1024 * 1024
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "glov/1.0"
	}

	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = config.ConnectTimeout
	transport.ResponseHeaderTimeout = config.ReadTimeout

	return &Fetcher{
		config:  config,
		client:  &http.Client{Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Fetcher {
	return NewWithConfig(FetcherConfig{})
}

// ValidateURL accepts absolute http(s) URLs whose path ends in ".pdf",
// compared case-insensitively.
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, types.NewError(types.KindInvalidInput, types.StageValidate, "invalid URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, types.Errorf(types.KindInvalidInput, types.StageValidate, "URL scheme must be http or https")
	}
	if u.Host == "" {
		return nil, types.Errorf(types.KindInvalidInput, types.StageValidate, "URL must be absolute")
	}
	if !strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return nil, types.Errorf(types.KindInvalidInput, types.StageValidate, "The URL must point to a PDF file.")
	}
	return u, nil
}

func (f *Fetcher) Validate(rawURL string) error {
	_, err := ValidateURL(rawURL)
	return err
}

// CheckSize rejects documents whose advertised Content-Length exceeds the
// configured limit. A missing header is logged and tolerated.
func (f *Fetcher) CheckSize(ctx context.Context, rawURL string) error {
	log := logger.FromContext(ctx)

	if err := f.limiter.Wait(ctx); err != nil {
		return types.NewError(types.KindUpstreamUnavailable, types.StageSize, "Error checking the PDF size", err)
	}

	req, err := f.newRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return types.NewError(types.KindInvalidInput, types.StageSize, "invalid URL", err)
	}

	// a stalled or refused HEAD is an upstream failure; only the download
	// itself reports timeouts
	resp, err := f.client.Do(req)
	if err != nil {
		return types.NewError(types.KindUpstreamUnavailable, types.StageSize, "Error checking the PDF size", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented:
		log.Warn("HEAD not supported, skipping size check", "url", rawURL, "status", resp.StatusCode)
		return nil
	case resp.StatusCode >= 400:
		return types.Errorf(types.KindUpstreamUnavailable, types.StageSize, "upstream returned %s", resp.Status)
	}

	header := resp.Header.Get("Content-Length")
	if header == "" {
		log.Warn("Content-Length header missing, skipping size check", "url", rawURL)
		return nil
	}
	size, err := strconv.ParseInt(header, 10, 64)
	if err != nil || size < 0 {
		log.Warn("Content-Length header unparseable, skipping size check", "url", rawURL, "value", header)
		return nil
	}
	if size > f.config.MaxBytes {
		return types.Errorf(types.KindTooLarge, types.StageSize,
			"PDF is %d bytes, exceeding the limit of %d bytes", size, f.config.MaxBytes)
	}

	log.Debug("size check passed", "url", rawURL, "bytes", size)
	return nil
}

// Download streams the document into a new temporary file. The caller owns
// the returned file and must Release it. On error no file is left behind.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (*models.TempFile, error) {
	log := logger.FromContext(ctx)

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, classify(ctx, err, types.StageDownload)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := f.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, types.NewError(types.KindInvalidInput, types.StageDownload, "invalid URL", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err, types.StageDownload)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := fmt.Sprintf("upstream returned %s", resp.Status)
		if title := describeErrorPage(resp); title != "" {
			detail = fmt.Sprintf("%s (%s)", detail, title)
		}
		return nil, types.Errorf(types.KindUpstreamUnavailable, types.StageDownload, "%s", detail)
	}

	tmp, err := os.CreateTemp(f.config.TempDir, "glov-*.pdf")
	if err != nil {
		return nil, types.NewError(types.KindUpstreamUnavailable, types.StageDownload, "cannot create temporary file", err)
	}
	path := tmp.Name()
	cleanup := func() {
		tmp.Close()
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn("failed to remove partial download", "path", path, "error", rmErr)
		}
	}

	watchdog := time.AfterFunc(f.config.ReadTimeout, func() { cancel(errReadTimeout) })
	defer watchdog.Stop()

	body := &idleReader{r: resp.Body, timer: watchdog, timeout: f.config.ReadTimeout}
	n, err := io.Copy(tmp, io.LimitReader(body, f.config.MaxBytes+1))
	if err != nil {
		cleanup()
		return nil, classify(ctx, err, types.StageDownload)
	}
	if n > f.config.MaxBytes {
		cleanup()
		return nil, types.Errorf(types.KindTooLarge, types.StageDownload,
			"PDF exceeds the limit of %d bytes", f.config.MaxBytes)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, types.NewError(types.KindUpstreamUnavailable, types.StageDownload, "cannot write temporary file", err)
	}

	log.Debug("downloaded PDF", "url", rawURL, "bytes", n, "path", path)
	return models.NewTempFile(path, n, rawURL), nil
}

func (f *Fetcher) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")
	return req, nil
}

// idleReader pushes the watchdog deadline forward on every successful read,
// so the read timeout bounds the gap between bytes rather than the whole
// transfer.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func classify(ctx context.Context, err error, stage string) *types.Error {
	if errors.Is(context.Cause(ctx), errReadTimeout) {
		return types.NewError(types.KindTimeout, stage, "Request timed out", errReadTimeout)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.KindTimeout, stage, "Request timed out", err)
	}
	return types.NewError(types.KindUpstreamUnavailable, stage, "Error fetching the PDF", err)
}
