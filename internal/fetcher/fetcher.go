// Package fetcher performs stateless single-page HTTP fetches with a
// one-shot certificate-relaxed retry.
package fetcher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrTransport is returned when both fetch attempts fail.
var ErrTransport = eris.New("fetcher: both attempts failed")

// Options configures the fetcher. CloudBypass routes requests through a
// transport that negotiates Cloudflare's browser checks, for targets behind
// such protection.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	CloudBypass bool
}

// Result holds one fetched response. It is immutable once returned.
type Result struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher issues GET requests. A request that fails for any reason (network
// error, TLS failure, non-2xx status) is retried exactly once with
// certificate validation disabled; no further retries, no backoff.
type Fetcher struct {
	strict   *http.Client
	insecure *http.Client
	opts     Options
}

// New creates a Fetcher with the given options.
func New(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "webharvest/1.0"
	}
	var transport http.RoundTripper = &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	var insecureTransport http.RoundTripper = &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
	}
	if opts.CloudBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
		insecureTransport = cloudflarebp.AddCloudFlareByPass(insecureTransport)
	}
	return &Fetcher{
		strict:   &http.Client{Timeout: opts.Timeout, Transport: transport},
		insecure: &http.Client{Timeout: opts.Timeout, Transport: insecureTransport},
		opts:     opts,
	}
}

// Fetch GETs the address with the given headers. On any failure of the first
// attempt it retries once with certificate validation disabled and returns
// that attempt's outcome as-is.
func (f *Fetcher) Fetch(ctx context.Context, address string, headers map[string]string) (*Result, error) {
	res, err := f.fetchOnce(ctx, f.strict, address, headers)
	if err == nil {
		return res, nil
	}

	zap.L().Warn("fetch failed, retrying without certificate validation",
		zap.String("url", address),
		zap.Error(err),
	)

	res, retryErr := f.fetchOnce(ctx, f.insecure, address, headers)
	if retryErr != nil {
		return nil, eris.Wrapf(ErrTransport, "GET %s: %v", address, retryErr)
	}
	return res, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, client *http.Client, address string, headers map[string]string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("fetcher: status %d from %s", resp.StatusCode, address)
	}

	return &Result{
		URL:        address,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// JSON decodes the body when the response declared exactly application/json.
// The boolean reports whether JSON content was present; other content types
// return (nil, false, nil) and are never parsed on a best-effort basis.
func (r *Result) JSON() (any, bool, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, true, eris.Wrap(err, "fetcher: decode json body")
	}
	return v, true, nil
}

// DownloadToFile writes the raw response bytes to path, overwriting any
// existing file.
func (r *Result) DownloadToFile(path string) error {
	if err := os.WriteFile(path, r.Body, 0o644); err != nil {
		return eris.Wrapf(err, "fetcher: save %s", path)
	}
	zap.L().Info("file saved",
		zap.String("url", r.URL),
		zap.String("path", path),
		zap.Int("bytes", len(r.Body)),
	)
	return nil
}
