package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPProvider implements RPCProvider for JSON-RPC over HTTP.
type HTTPProvider struct {
	name       string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	client     *gethrpc.Client

	Monitor *Monitor
}

// NewHTTPProvider creates a new HTTP-based RPC provider. No connection is
// made until the first call; an error means the endpoint URL is unusable.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) (*HTTPProvider, error) {
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(&http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}),
	}

	client, err := gethrpc.DialOptions(
		context.Background(),
		endpoint,
		gethrpc.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	return &HTTPProvider{
		name:       name,
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: httpClient,
		client:     client,
		Monitor:    NewMonitor(),
	}, nil
}

// Call makes a single JSON-RPC call bounded by the provider timeout. A throttle
// backoff only marks the node unavailable; calls still go out so a recovered
// node reads online on the next poll.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if params == nil {
		params = []any{}
	}

	start := time.Now()
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, p.fail(method, err)
	}

	p.Monitor.RecordSuccess(time.Since(start))
	return result, nil
}

// fail records err and annotates it. Throttling starts a backoff.
func (p *HTTPProvider) fail(method string, err error) error {
	p.Monitor.RecordFailure()

	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusForbidden:
			p.Monitor.RecordThrottle(httpErr.StatusCode)
			return fmt.Errorf("%s: throttled (%d): %w", method, httpErr.StatusCode, err)
		}
	}
	if IsThrottleMessage(err.Error()) {
		p.Monitor.RecordThrottle(http.StatusTooManyRequests)
		return fmt.Errorf("%s: throttled: %w", method, err)
	}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: rpc error %d: %w", method, rpcErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// Name returns the provider's name.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Endpoint returns the URL this provider talks to.
func (p *HTTPProvider) Endpoint() string {
	return p.endpoint
}

// Health derives the transport health from the monitor.
func (p *HTTPProvider) Health() HealthStatus {
	stats := p.Monitor.Stats()
	return HealthStatus{
		Available:     available(stats),
		Latency:       stats.AverageLatency,
		ErrorRate:     stats.ErrorRate(),
		LastSuccessAt: stats.LastSuccessAt,
		LastFailureAt: stats.LastFailureAt,
		Stats:         stats,
	}
}

// IsAvailable reports whether the node is worth calling.
func (p *HTTPProvider) IsAvailable() bool {
	return available(p.Monitor.Stats())
}

// available is false while throttled, after a failure streak, or when
// more than half of all calls failed.
func available(s MonitorStats) bool {
	if s.Status == StatusThrottled || s.Status == StatusUnreachable {
		return false
	}
	return s.ErrorRate() <= 0.5
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.client.Close()
	p.httpClient.CloseIdleConnections()
	return nil
}
