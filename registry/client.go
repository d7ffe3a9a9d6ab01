// Package registry implements the authenticated, rate-limited client for
// the RENTRI vidimazione-formulari service. Every operation acquires a
// rate-limiter slot before dispatch and is wrapped in a uniform
// retry/backoff policy; state-changing calls carry the AGID detached
// signature headers.
package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ecotrace-srl/rentri-client/auth"
	"github.com/ecotrace-srl/rentri-client/credential"
	"github.com/ecotrace-srl/rentri-client/interfaces"
	"github.com/ecotrace-srl/rentri-client/ratelimit"
)

const (
	// DefaultBaseURL is the production registry endpoint.
	DefaultBaseURL = "https://api.rentri.gov.it"

	// DefaultAudience is the token audience the production registry expects.
	DefaultAudience = "rentrigov.api"

	servicePath = "/vidimazione-formulari/v1.0"
	contentType = "application/json; charset=utf-8"

	defaultMaxRetries     = 4
	defaultTransportRetry = 1 * time.Second
	defaultHTTPTimeout    = 30 * time.Second
	defaultStatusTimeout  = 5 * time.Second
)

// ClientConfig configures a Client. Zero values fall back to production
// defaults.
type ClientConfig struct {
	// BaseURL is the registry root, without a trailing slash.
	BaseURL string

	// Audience is the aud claim of every issued token.
	Audience string

	// HTTPClient overrides the transport; defaults to a 30s-timeout client.
	HTTPClient *http.Client

	// Log receives request-level diagnostics; defaults to slog.Default().
	Log *slog.Logger

	// RateWindow and RateMax tune the sliding-window limiter; zero values
	// use the registry limits (90 requests per 5s).
	RateWindow time.Duration
	RateMax    int

	// MaxRetries bounds retry attempts for 429 and 5xx responses.
	MaxRetries int

	// TransportRetryDelay is the fixed delay before the single retry on a
	// network-level failure.
	TransportRetryDelay time.Duration

	// StatusTimeout bounds each unauthenticated status probe.
	StatusTimeout time.Duration
}

// Client is the authenticated RENTRI vidimazione client. It composes a
// TokenSigner and a sliding-window Limiter; the limiter is the only state
// shared across concurrent calls. One Client serves one credential.
type Client struct {
	baseURL  string
	audience string
	http     *http.Client
	log      *slog.Logger

	cred    *credential.Credential
	signer  *auth.TokenSigner
	limiter *ratelimit.Limiter

	maxRetries     int
	transportRetry time.Duration
	statusTimeout  time.Duration
}

var _ interfaces.RegistryAPI = (*Client)(nil)

// NewClient validates the credential and builds a client. It fails before
// any network activity if the credential is expired, unusable, or lacks a
// fiscal code.
func NewClient(cfg ClientConfig, cred *credential.Credential) (*Client, error) {
	if cred == nil {
		return nil, credential.ErrCredentialInvalid
	}
	if cred.FiscalCode == "" {
		return nil, credential.ErrFiscalCodeMissing
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.TransportRetryDelay <= 0 {
		cfg.TransportRetryDelay = defaultTransportRetry
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}

	signer, err := auth.NewTokenSigner(cred, cfg.Audience)
	if err != nil {
		return nil, fmt.Errorf("credential rejected: %w", err)
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		audience:       cfg.Audience,
		http:           cfg.HTTPClient,
		log:            cfg.Log,
		cred:           cred,
		signer:         signer,
		limiter:        ratelimit.New(cfg.RateWindow, cfg.RateMax),
		maxRetries:     cfg.MaxRetries,
		transportRetry: cfg.TransportRetryDelay,
		statusTimeout:  cfg.StatusTimeout,
	}, nil
}

// FiscalCode returns the fiscal code the client authenticates as.
func (c *Client) FiscalCode() string {
	return c.cred.FiscalCode
}

// ListBlocks returns all vidimazione blocks for the credential's fiscal
// code, in registry order.
func (c *Client) ListBlocks(ctx context.Context) ([]interfaces.Block, error) {
	body, err := c.call(ctx, callOpts{
		method: http.MethodGet,
		path:   servicePath,
		query:  url.Values{"identificativo": {c.cred.FiscalCode}},
	})
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}

	var blocks []interfaces.Block
	if err := json.Unmarshal(body, &blocks); err != nil {
		return nil, fmt.Errorf("list blocks: parse response: %w", err)
	}
	return blocks, nil
}

// ListDocuments returns one page of documents for a block. Pages are
// 1-based; the server page size is fixed at interfaces.PageSize. The
// second return reports whether further pages may exist.
func (c *Client) ListDocuments(ctx context.Context, blockCode string, page int) ([]interfaces.Document, bool, error) {
	if page < 1 {
		page = 1
	}
	body, err := c.call(ctx, callOpts{
		method: http.MethodGet,
		path:   servicePath + "/" + url.PathEscape(blockCode),
		headers: map[string]string{
			"Paging-Page":     strconv.Itoa(page),
			"Paging-PageSize": strconv.Itoa(interfaces.PageSize),
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("list documents %s page %d: %w", blockCode, page, err)
	}

	docs, err := parseDocumentPage(body)
	if err != nil {
		return nil, false, fmt.Errorf("list documents %s page %d: %w", blockCode, page, err)
	}

	for i := range docs {
		if docs[i].BlockCode == "" {
			docs[i].BlockCode = blockCode
		}
	}
	return docs, len(docs) == interfaces.PageSize, nil
}

// ListAllDocuments walks every page of a block and returns the complete
// document set.
func (c *Client) ListAllDocuments(ctx context.Context, blockCode string) ([]interfaces.Document, error) {
	var all []interfaces.Document
	for page := 1; ; page++ {
		docs, more, err := c.ListDocuments(ctx, blockCode, page)
		if err != nil {
			return nil, err
		}
		all = append(all, docs...)
		if !more {
			return all, nil
		}
	}
}

// SubmitCertification issues one certification (vidimazione) request
// against a block. Each certification is an independent signed call.
func (c *Client) SubmitCertification(ctx context.Context, blockCode string) error {
	_, err := c.call(ctx, callOpts{
		method: http.MethodPost,
		path:   servicePath + "/" + url.PathEscape(blockCode),
		signed: true,
	})
	if err != nil {
		return fmt.Errorf("submit certification %s: %w", blockCode, err)
	}
	return nil
}

type artifactEnvelope struct {
	Content string `json:"content"`
}

// FetchArtifact retrieves the rendered document for a block sequence
// number. The registry answers with a JSON envelope carrying a
// base64-encoded payload; a missing payload surfaces as
// interfaces.ErrArtifactUnavailable.
func (c *Client) FetchArtifact(ctx context.Context, blockCode string, sequence int) ([]byte, error) {
	body, err := c.call(ctx, callOpts{
		method:  http.MethodGet,
		path:    fmt.Sprintf("%s/%s/%d/pdf", servicePath, url.PathEscape(blockCode), sequence),
		headers: map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s/%d: %w", blockCode, sequence, err)
	}

	var envelope artifactEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("fetch artifact %s/%d: parse envelope: %w", blockCode, sequence, err)
	}
	if envelope.Content == "" {
		return nil, fmt.Errorf("fetch artifact %s/%d: %w", blockCode, sequence, interfaces.ErrArtifactUnavailable)
	}

	payload, err := base64.StdEncoding.DecodeString(envelope.Content)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s/%d: decode payload: %w", blockCode, sequence, err)
	}
	return payload, nil
}

// CancelDocument requests cancellation (annullamento) of a certified
// document. The registry answers 409 when the document is already
// cancelled; that outcome surfaces as interfaces.ErrAlreadyCancelled so
// callers can treat it as a no-op.
func (c *Client) CancelDocument(ctx context.Context, blockCode string, sequence int) error {
	_, err := c.call(ctx, callOpts{
		method: http.MethodPut,
		path:   fmt.Sprintf("%s/%s/%d/annulla", servicePath, url.PathEscape(blockCode), sequence),
		signed: true,
	})
	if err != nil {
		var rejected *RequestRejectedError
		if errors.As(err, &rejected) && rejected.StatusCode == http.StatusConflict {
			return interfaces.ErrAlreadyCancelled
		}
		return fmt.Errorf("cancel document %s/%d: %w", blockCode, sequence, err)
	}
	return nil
}

// VerifyDocument looks up a document by its global number.
func (c *Client) VerifyDocument(ctx context.Context, number string) (*interfaces.Document, error) {
	body, err := c.call(ctx, callOpts{
		method: http.MethodGet,
		path:   servicePath + "/verifica/" + url.PathEscape(number),
	})
	if err != nil {
		return nil, fmt.Errorf("verify document %s: %w", number, err)
	}

	var doc interfaces.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("verify document %s: parse response: %w", number, err)
	}
	return &doc, nil
}

// parseDocumentPage accepts both a bare JSON array and the wrapped
// {"data": […]} / {"items": […]} shapes the registry has been observed
// to produce.
func parseDocumentPage(body []byte) ([]interfaces.Document, error) {
	var docs []interfaces.Document
	if err := json.Unmarshal(body, &docs); err == nil {
		return docs, nil
	}

	var wrapped struct {
		Data  []interfaces.Document `json:"data"`
		Items []interfaces.Document `json:"items"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return wrapped.Items, nil
}

type callOpts struct {
	method  string
	path    string
	query   url.Values
	headers map[string]string
	signed  bool
	body    []byte
}

// call performs one rate-limited, retried request and returns the
// response body. The retry policy is uniform across operations:
//
//   - 429: honor Retry-After when present, else exponential backoff
//     seeded at the rate-window length; bounded attempts, then ErrThrottled.
//   - network failure: one retry after a short fixed delay, then
//     TransportError.
//   - other 4xx: RequestRejectedError, no retry.
//   - 5xx: backoff-retried, then ServerError.
//
// Tokens are re-issued on every attempt so retries never carry a stale
// signature.
func (c *Client) call(ctx context.Context, opts callOpts) ([]byte, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.limiter.Window()
	expo.MaxElapsedTime = 0

	retries := 0
	transportRetried := false

	for {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		req, err := c.newRequest(ctx, opts)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if transportRetried {
				return nil, &TransportError{Err: err}
			}
			transportRetried = true
			c.log.Debug("transport failure, retrying once", "method", opts.method, "path", opts.path, "err", err)
			if err := sleep(ctx, c.transportRetry); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if transportRetried {
				return nil, &TransportError{Err: readErr}
			}
			transportRetried = true
			if err := sleep(ctx, c.transportRetry); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			retries++
			if retries > c.maxRetries {
				return nil, ErrThrottled
			}
			wait := retryAfter(resp)
			if wait <= 0 {
				wait = expo.NextBackOff()
			}
			c.log.Debug("throttled by registry", "wait", wait, "attempt", retries)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode >= 500:
			retries++
			if retries > c.maxRetries {
				return nil, &ServerError{StatusCode: resp.StatusCode, Body: string(body)}
			}
			wait := expo.NextBackOff()
			c.log.Debug("server error, backing off", "status", resp.StatusCode, "wait", wait, "attempt", retries)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode >= 400:
			return nil, &RequestRejectedError{StatusCode: resp.StatusCode, Body: string(body)}

		default:
			return body, nil
		}
	}
}

func (c *Client) newRequest(ctx context.Context, opts callOpts) (*http.Request, error) {
	u := c.baseURL + opts.path
	if len(opts.query) > 0 {
		u += "?" + opts.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, u, bytes.NewReader(opts.body))
	if err != nil {
		return nil, err
	}

	token, err := c.signer.AuthToken()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	if opts.signed {
		sig, digest, err := c.signer.SignatureToken(opts.body, contentType)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Agid-JWT-Signature", sig)
		req.Header.Set("Digest", digest)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/problem+json, application/json")
	}

	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// retryAfter reads the server's wait hint, if any.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
