// Package oracle wraps the external blockchain data provider. It exposes the
// three queries the ledger needs (chain tip, transaction confirmations,
// address balance) and nothing else; retry and caching policy live in the
// callers.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boostfeed/stakeledger/pkg/utils"
)

// HTTPClient is a wrapper around an http.Client that implements a circuit-breaker and token-bucket.
type HTTPClient struct {
	endpoints []string
	network   string
	client    *http.Client

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Network         string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}
	if o.Network == "" {
		o.Network = "mainnet"
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	c := &HTTPClient{
		endpoints:        utils.Dedup(o.Endpoints),
		network:          o.Network,
		client:           client,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

// NewFromEnv builds a client from ORACLE_ENDPOINTS / ORACLE_NETWORK /
// ORACLE_TIMEOUT, the deployment's usual configuration path.
func NewFromEnv() *HTTPClient {
	return NewHTTPWithOpts(Opts{
		Endpoints: utils.Dedup(splitCSV(utils.Env("ORACLE_ENDPOINTS", "http://localhost:8332"))),
		Network:   utils.Env("ORACLE_NETWORK", "mainnet"),
		Timeout:   utils.EnvDuration("ORACLE_TIMEOUT", 10*time.Second),
		RPS:       utils.EnvInt("ORACLE_RPS", 20),
		Burst:     utils.EnvInt("ORACLE_BURST", 40),
	})
}

// Network reports which chain network this client is configured against.
func (c *HTTPClient) Network() string {
	return c.network
}

// refill refills the token-bucket with new tokens if necessary.
func (c *HTTPClient) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

// acquire acquires a token from the token-bucket, blocking if necessary.
func (c *HTTPClient) acquire() {
	for {
		c.refill()
		if atomic.LoadInt64(&c.tokens) > 0 {
			atomic.AddInt64(&c.tokens, -1)
			return
		}
		time.Sleep(c.refillEvery / 2)
	}
}

// isOpen returns true if the endpoint is in the OPEN state.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens the circuit-breaker if the failure count exceeds the threshold.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

// getJSON sends a GET to a configured endpoint and decodes the JSON response
// into out. It rotates across endpoints when the primary attempt fails due to
// circuit-breaker or server-side errors. All failure modes collapse into
// ErrUnavailable so callers can degrade uniformly.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no endpoints configured: %w", ErrUnavailable)
	}

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		ep := c.endpoints[i%len(c.endpoints)]
		// Skip endpoints whose breaker is OPEN.
		if c.isOpen(ep) {
			continue
		}

		c.acquire()

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, ep+path, nil)
		if reqErr != nil {
			// Request creation failed: not an endpoint failure, just return.
			return reqErr
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		// From here on, always drain+close the body before continuing/returning.
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server %d", resp.StatusCode)
			c.noteFailure(ep)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = &statusError{code: resp.StatusCode}
			_ = utils.DrainAndClose(resp.Body)
			continue
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				_ = utils.DrainAndClose(resp.Body)
				lastErr = err
				continue
			}
		}

		if cerr := utils.DrainAndClose(resp.Body); cerr != nil {
			return cerr
		}
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all endpoint breakers open")
	}
	return fmt.Errorf("%w: %w", lastErr, ErrUnavailable)
}

// statusError carries a non-2xx response code so callers can tell a missing
// resource apart from provider unavailability.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d", e.code)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
