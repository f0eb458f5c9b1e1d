// Package transport implements the authenticated HTTP collaborator shared by
// every concurrent job pipeline. It attaches credentials, normalizes wire
// failures into apierr kinds, and retries transient errors with exponential
// backoff so the orchestration core above it only sees terminal outcomes.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"genlab/apierr"
)

const (
	defaultTimeout    = 45 * time.Second
	defaultMaxRetries = 3
	sessionCookieName = "session"
)

// TokenSource supplies a fresh bearer token when the cached one has been
// invalidated by an authentication failure.
type TokenSource func(ctx context.Context) (string, error)

// Options configures a Transport.
type Options struct {
	BaseURL       string
	Token         string
	TokenSource   TokenSource
	SessionCookie string
	HTTPClient    *http.Client
	Timeout       time.Duration
	MaxRetries    uint64
	Logger        *zerolog.Logger
}

// Transport performs authenticated JSON and binary calls against the
// generation service. It is safe for use by concurrent pipelines: the only
// mutable state is the cached bearer token, cleared with a compare-and-swap
// when any call observes an authentication failure.
type Transport struct {
	baseURL     string
	token       atomic.Pointer[string]
	tokenSource TokenSource
	cookie      string
	client      *http.Client
	maxRetries  uint64
	// retryInterval overrides the initial backoff interval; zero keeps the
	// library default.
	retryInterval time.Duration
	logger        zerolog.Logger
}

// New constructs a Transport with sane defaults.
func New(opts Options) (*Transport, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("transport: base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	t := &Transport{
		baseURL:     base,
		tokenSource: opts.TokenSource,
		cookie:      strings.TrimSpace(opts.SessionCookie),
		client:      client,
		maxRetries:  maxRetries,
		logger:      logger,
	}
	if tok := strings.TrimSpace(opts.Token); tok != "" {
		t.token.Store(&tok)
	}
	return t, nil
}

// PostJSON sends body as JSON and decodes the response into out (skipped
// when out is nil).
func (t *Transport) PostJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return apierr.New(apierr.KindRequest, "encode request body").WithCause(err)
	}
	raw, _, err := t.roundTrip(ctx, http.MethodPost, path, encoded)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// GetJSON performs a GET and decodes the response into out.
func (t *Transport) GetJSON(ctx context.Context, path string, out any) error {
	raw, _, err := t.roundTrip(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// GetBinary performs a GET and returns the raw body along with the declared
// content type.
func (t *Transport) GetBinary(ctx context.Context, path string) ([]byte, string, error) {
	return t.roundTrip(ctx, http.MethodGet, path, nil)
}

func decodeInto(raw []byte, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.New(apierr.KindUnexpectedResponse, "decode response: "+string(raw)).WithCause(err)
	}
	return nil
}

// roundTrip issues one logical call, retrying transient failures. What
// survives the retry budget is terminal for the call.
func (t *Transport) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, string, error) {
	var (
		payload     []byte
		contentType string
	)
	operation := func() error {
		raw, ctype, err := t.attempt(ctx, method, path, body)
		if err != nil {
			return err
		}
		payload, contentType = raw, ctype
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	if t.retryInterval > 0 {
		bo.InitialInterval = t.retryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, t.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, "", err
	}
	return payload, contentType, nil
}

func (t *Transport) attempt(ctx context.Context, method, path string, body []byte) ([]byte, string, error) {
	token, err := t.bearer(ctx)
	if err != nil {
		return nil, "", backoff.Permanent(err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, "", backoff.Permanent(apierr.New(apierr.KindRequest, "build request").WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if t.cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: t.cookie})
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, "", backoff.Permanent(apierr.Newf(apierr.KindTimeout, "%s %s timed out", method, path).WithCause(err))
		}
		t.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("transport: request failed, will retry")
		return nil, "", apierr.Newf(apierr.KindRequest, "%s %s", method, path).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apierr.New(apierr.KindRequest, "read response body").WithCause(err)
	}

	switch {
	case resp.StatusCode < 300:
		return raw, resp.Header.Get("Content-Type"), nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		t.invalidate(token)
		msg := serviceMessage(raw)
		if msg == "" {
			msg = "authentication failed"
		}
		return nil, "", backoff.Permanent(apierr.New(apierr.KindAuth, msg).WithStatus(resp.StatusCode))
	case resp.StatusCode >= 500:
		t.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("transport: server error, will retry")
		return nil, "", apierr.New(apierr.KindAPI, statusMessage(raw, resp.StatusCode)).WithStatus(resp.StatusCode)
	default:
		return nil, "", backoff.Permanent(apierr.New(apierr.KindAPI, statusMessage(raw, resp.StatusCode)).WithStatus(resp.StatusCode))
	}
}

// bearer returns the cached token, consulting the token source when the
// cache is empty.
func (t *Transport) bearer(ctx context.Context) (string, error) {
	if p := t.token.Load(); p != nil {
		return *p, nil
	}
	if t.tokenSource == nil {
		return "", nil
	}
	tok, err := t.tokenSource(ctx)
	if err != nil {
		return "", apierr.New(apierr.KindAuth, "acquire bearer token").WithCause(err)
	}
	tok = strings.TrimSpace(tok)
	if tok != "" {
		t.token.Store(&tok)
	}
	return tok, nil
}

// invalidate clears the cached token only if it still matches the one that
// failed, so a concurrently refreshed token is never discarded.
func (t *Transport) invalidate(failed string) {
	p := t.token.Load()
	if p != nil && *p == failed {
		t.token.CompareAndSwap(p, nil)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// serviceMessage digs a human-readable message out of an error payload,
// tolerating the two shapes the service has used historically.
func serviceMessage(raw []byte) string {
	var detail struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &detail); err != nil {
		return ""
	}
	if detail.Message != "" {
		return detail.Message
	}
	return detail.Error
}

func statusMessage(raw []byte, status int) string {
	if msg := serviceMessage(raw); msg != "" {
		return msg
	}
	return fmt.Sprintf("unexpected status %d", status)
}
