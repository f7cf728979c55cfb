package search

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"slrforge/internal/config"
	"slrforge/internal/fault"
	"slrforge/internal/logging"
)

const (
	userAgent        = "slrforge/0.1 (systematic review search)"
	maxResponseBytes = 10 << 20
)

// httpClient is the shared transport every provider builds on: a token
// bucket wait, a per-provider circuit breaker, and a bounded retry loop.
// Retries apply only to transient failures (network errors, 5xx, 429 with a
// Retry-After hint); everything else fails terminally on the first attempt.
type httpClient struct {
	provider  string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	attempts  int
	baseDelay time.Duration
	jitter    float64
}

func newHTTPClient(provider string, cfg *config.Config) *httpClient {
	rc := cfg.RateFor(provider)
	return &httpClient{
		provider:  provider,
		client:    &http.Client{Timeout: cfg.PerCallTimeout()},
		limiter:   LimiterFor(provider, rc.Capacity, rc.RefillPerSecond),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        provider,
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < 5 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.SearchWarn("Provider %s circuit breaker: %v -> %v", name, from, to)
			},
		}),
		attempts:  cfg.Executor.Retry.Attempts,
		baseDelay: cfg.RetryBase(),
		jitter:    cfg.Executor.Retry.JitterRatio,
	}
}

// get fetches url with the provider's rate limit and retry budget applied.
func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, contextFault(c.provider, err)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, contextFault(c.provider, err)
		}

		body, err := c.doOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		fe, _ := fault.As(err)
		if !retriableFault(fe) || attempt == c.attempts {
			break
		}

		delay := c.retryDelay(attempt, fe)
		logging.SearchDebug("%s attempt %d/%d failed, retrying in %s: %v", c.provider, attempt, c.attempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, contextFault(c.provider, ctx.Err())
		}
	}
	return nil, lastErr
}

// doOnce performs a single HTTP round trip behind the circuit breaker and
// classifies the outcome into the fault taxonomy.
func (c *httpClient) doOnce(ctx context.Context, url string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fault.ProviderErr(c.provider, false, err, "building request")
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json, application/atom+xml")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, contextFault(c.provider, ctxErr)
			}
			return nil, fault.ProviderErr(c.provider, true, err, "request failed")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fault.ProviderErr(c.provider, true, err, "reading response")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fault.RateLimited(c.provider, parseRetryAfter(resp.Header.Get("Retry-After")))
		case resp.StatusCode >= 500:
			return nil, fault.ProviderErr(c.provider, true, nil, "server error %d", resp.StatusCode)
		default:
			return nil, fault.ProviderErr(c.provider, false, nil, "unexpected status %d", resp.StatusCode)
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fault.ProviderErr(c.provider, false, err, "circuit breaker open")
		}
		return nil, err
	}
	return result.([]byte), nil
}

// retriableFault applies the transient-category policy: provider errors
// marked retriable, and rate limits that carry a Retry-After hint.
func retriableFault(fe *fault.Error) bool {
	if fe == nil {
		return false
	}
	switch fe.Kind {
	case fault.KindRateLimited:
		return fe.RetryAfter > 0
	case fault.KindProvider:
		return fe.Retriable
	}
	return false
}

// retryDelay computes the exponential backoff for the next attempt, with
// jitter to avoid synchronized retries. A Retry-After hint wins outright.
func (c *httpClient) retryDelay(attempt int, fe *fault.Error) time.Duration {
	if fe != nil && fe.RetryAfter > 0 {
		return fe.RetryAfter
	}
	base := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	jittered := base + c.jitter*base*(rand.Float64()*2-1)
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func contextFault(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Timeout(err, "%s call deadline exceeded", provider)
	}
	return fault.Timeout(err, "%s call canceled", provider)
}
