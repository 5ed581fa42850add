// Package upstream performs authenticated calls against the wearable
// provider's data API with response caching, rate limiting, bounded
// retries, and token-refresh-on-401 semantics.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsync/vitalsync/internal/db/models"
	"github.com/vitalsync/vitalsync/internal/providers/catalog"
	"github.com/vitalsync/vitalsync/internal/util"
)

const (
	defaultBaseDelay  = time.Second
	defaultRetryAfter = 60 * time.Second
	maxPages          = 10
)

// TokenSource supplies and refreshes access tokens per account.
// *oauth.Manager satisfies it.
type TokenSource interface {
	GetValidToken(ctx context.Context, accountID string) (string, error)
	ForceRefresh(ctx context.Context, accountID string) (*models.Credential, error)
}

// CallLimiter reserves one provider call or denies it.
// *ratelimit.Limiter satisfies it.
type CallLimiter interface {
	Acquire(ctx context.Context) error
}

// Client is the authenticated provider API client.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	limiter    CallLimiter
	cache      *responseCache
	baseURL    string
	maxRetries int
	baseDelay  time.Duration
	retryAfter time.Duration
	log        zerolog.Logger
}

// NewClient builds a client from the provider catalog.
func NewClient(cat *catalog.Catalog, tokens TokenSource, limiter CallLimiter, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cat.RequestTimeout},
		tokens:     tokens,
		limiter:    limiter,
		cache:      newResponseCache(cat.CacheTTL),
		baseURL:    cat.APIBaseURL,
		maxRetries: cat.MaxRetries,
		baseDelay:  defaultBaseDelay,
		retryAfter: defaultRetryAfter,
		log:        log.With().Str("component", "upstream").Logger(),
	}
}

// Request performs one authenticated call. Identical calls inside the
// cache TTL are served without network I/O or quota use.
func (c *Client) Request(ctx context.Context, method, path, accountID string, params url.Values) ([]byte, error) {
	key := cacheKey(method, path, accountID, params)
	if body, ok := c.cache.get(key); ok {
		c.log.Debug().Str("path", path).Str("account_id", accountID).Msg("response cache hit")
		return body, nil
	}

	token, err := c.tokens.GetValidToken(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	body, err := c.doWithRetries(ctx, method, path, accountID, params, token)
	if err != nil {
		return nil, err
	}

	c.cache.put(key, body)
	return body, nil
}

func (c *Client) doWithRetries(ctx context.Context, method, path, accountID string, params url.Values, token string) ([]byte, error) {
	refreshed := false
	var lastStatus int

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.do(ctx, method, path, params, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network or timeout error: transient, back off and retry.
			if attempt == c.maxRetries {
				return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
			}
			c.log.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("request failed, backing off")
			if serr := sleepCtx(ctx, c.backoff(attempt)); serr != nil {
				return nil, serr
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%w: read response: %v", ErrNetwork, readErr)
		}
		lastStatus = resp.StatusCode

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if !json.Valid(body) {
				return nil, fmt.Errorf("%w: invalid json from provider", ErrNetwork)
			}
			return body, nil

		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				c.log.Warn().Str("account_id", accountID).Msg("401 persisted after refresh")
				return nil, ErrAuthenticationFailed
			}
			cred, rerr := c.tokens.ForceRefresh(ctx, accountID)
			if rerr != nil {
				return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, rerr)
			}
			token = cred.AccessToken
			refreshed = true
			// The refreshed attempt does not consume the retry budget.
			attempt--

		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt == c.maxRetries {
				return nil, fmt.Errorf("%w: provider kept answering 429", ErrRateLimited)
			}
			delay := ParseRetryDelay(resp, body)
			if delay <= 0 {
				delay = c.retryAfter
			}
			c.log.Warn().Dur("retry_after", delay).Int("attempt", attempt).Msg("throttled by provider")
			if serr := sleepCtx(ctx, delay); serr != nil {
				return nil, serr
			}

		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// Non-transient; keep the body for diagnostics only.
			c.log.Warn().
				Int("status", resp.StatusCode).
				Str("path", path).
				Str("body", util.TruncateBytes(body)).
				Msg("provider rejected request")
			return nil, &ClientError{Status: resp.StatusCode, Body: string(body)}

		default: // 5xx
			if attempt == c.maxRetries {
				return nil, &ServerError{Status: resp.StatusCode, Attempts: attempt + 1}
			}
			c.log.Warn().
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Str("body", util.TruncateBytes(body)).
				Msg("provider error, backing off")
			if serr := sleepCtx(ctx, c.backoff(attempt)); serr != nil {
				return nil, serr
			}
		}
	}

	return nil, &ServerError{Status: lastStatus, Attempts: c.maxRetries + 1}
}

// page is the provider's cursor-paginated envelope.
type page struct {
	Records   []json.RawMessage `json:"records"`
	NextToken string            `json:"next_token"`
}

// FetchAll follows next_token cursor pagination, concatenating records
// across a bounded number of pages.
func (c *Client) FetchAll(ctx context.Context, path, accountID string, params url.Values) ([]json.RawMessage, error) {
	merged := url.Values{}
	for k, vs := range params {
		merged[k] = vs
	}

	var records []json.RawMessage
	for i := 0; i < maxPages; i++ {
		body, err := c.Request(ctx, http.MethodGet, path, accountID, merged)
		if err != nil {
			return nil, err
		}
		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("parse provider page: %w", err)
		}
		records = append(records, p.Records...)
		if p.NextToken == "" {
			return records, nil
		}
		merged.Set("next_token", p.NextToken)
	}
	c.log.Warn().Str("path", path).Int("pages", maxPages).Msg("pagination stopped at page cap")
	return records, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, token string) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.baseDelay << uint(attempt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
