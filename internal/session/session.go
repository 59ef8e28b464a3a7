// Package session manages login-scoped HTTP sessions for authenticated
// downloads.
package session

import (
	"context"
	"net/http/cookiejar"
	"os"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrAuthentication is returned when the login request is rejected.
var ErrAuthentication = eris.New("session: login failed")

// Options configures a session. LoginURL is posted the Payload form on
// acquisition; Headers ride on the login request and every download.
type Options struct {
	LoginURL    string
	Headers     map[string]string
	Payload     map[string]string
	CloudBypass bool
	Timeout     time.Duration
}

// Session is a live authenticated session. It owns one cookie-carrying
// client from login until Release.
type Session struct {
	client *resty.Client
	opts   Options
	closed bool
}

// New logs in and returns a live session. The caller must Release it;
// prefer With, which guarantees release on every exit path.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "session: create cookie jar")
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(opts.Timeout)
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}
	if opts.CloudBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	res, err := client.R().
		SetContext(ctx).
		SetFormData(opts.Payload).
		Post(opts.LoginURL)
	if err != nil {
		return nil, eris.Wrapf(ErrAuthentication, "POST %s: %v", opts.LoginURL, err)
	}
	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		zap.L().Error("login rejected",
			zap.String("url", opts.LoginURL),
			zap.Int("status", res.StatusCode()),
		)
		return nil, eris.Wrapf(ErrAuthentication, "POST %s: status %d", opts.LoginURL, res.StatusCode())
	}

	return &Session{client: client, opts: opts}, nil
}

// With acquires a session, runs fn, and releases the session no matter how
// fn exits. The login error, fn's error, or nil is returned.
func With(ctx context.Context, opts Options, fn func(*Session) error) error {
	s, err := New(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Release()
	return fn(s)
}

// DownloadFile GETs address with the session's cookies and writes the body
// to savePath. Failures are logged and returned but leave the session
// usable; no file is written on failure.
func (s *Session) DownloadFile(ctx context.Context, address, savePath string) error {
	res, err := s.client.R().
		SetContext(ctx).
		Get(address)
	if err != nil {
		zap.L().Error("download failed",
			zap.String("url", address),
			zap.Error(err),
		)
		return eris.Wrapf(err, "session: GET %s", address)
	}
	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		zap.L().Error("download failed",
			zap.String("url", address),
			zap.Int("status", res.StatusCode()),
		)
		return eris.Errorf("session: GET %s: status %d", address, res.StatusCode())
	}

	if err := os.WriteFile(savePath, res.Body(), 0o644); err != nil {
		zap.L().Error("save failed",
			zap.String("url", address),
			zap.String("path", savePath),
			zap.Error(err),
		)
		return eris.Wrapf(err, "session: save %s", savePath)
	}

	zap.L().Info("file saved",
		zap.String("url", address),
		zap.String("path", savePath),
		zap.Int("bytes", len(res.Body())),
	)
	return nil
}

// DownloadAll downloads each address to the path mapped from it, skipping
// failed items. It reports the processed and failed counts when done.
func (s *Session) DownloadAll(ctx context.Context, files map[string]string) {
	var failed int
	for address, savePath := range files {
		if err := s.DownloadFile(ctx, address, savePath); err != nil {
			failed++
		}
	}
	zap.L().Info("batch download finished",
		zap.Int("processed", len(files)-failed),
		zap.Int("failed", failed),
	)
}

// Release closes the session's connections. Safe to call more than once.
func (s *Session) Release() {
	if s.closed {
		return
	}
	s.closed = true
	s.client.GetClient().CloseIdleConnections()
}

// Closed reports whether the session has been released.
func (s *Session) Closed() bool {
	return s.closed
}
