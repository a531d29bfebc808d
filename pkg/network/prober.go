package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jzx17/resilience/pkg/types"
)

// Prober measures the round trip to a known resource
type Prober interface {
	Probe(ctx context.Context) (time.Duration, error)
}

// ProbeFunc adapts a function to Prober
type ProbeFunc func(ctx context.Context) (time.Duration, error)

// Probe calls f(ctx)
func (f ProbeFunc) Probe(ctx context.Context) (time.Duration, error) {
	return f(ctx)
}

// LinkChecker reports link-level connectivity, the cheap check done before probing
type LinkChecker interface {
	Online() bool
}

// LinkFunc adapts a function to LinkChecker
type LinkFunc func() bool

// Online calls f()
func (f LinkFunc) Online() bool {
	return f()
}

// HTTPProber sends HEAD requests to a small static resource and times the answer
type HTTPProber struct {
	url    string
	client *http.Client
	clock  types.Clock
}

// HTTPProberOption configures an HTTPProber
type HTTPProberOption func(*HTTPProber)

// WithHTTPClient sets the client used for probes
func WithHTTPClient(client *http.Client) HTTPProberOption {
	return func(p *HTTPProber) {
		p.client = client
	}
}

// WithProbeClock sets the clock used to time probes
func WithProbeClock(clock types.Clock) HTTPProberOption {
	return func(p *HTTPProber) {
		p.clock = clock
	}
}

// NewHTTPProber creates a prober for url, typically a same-origin favicon
func NewHTTPProber(url string, opts ...HTTPProberOption) *HTTPProber {
	p := &HTTPProber{url: url, client: http.DefaultClient}
	for _, opt := range opts {
		opt(p)
	}
	p.clock = types.OrReal(p.clock)
	return p
}

// Probe issues one uncached HEAD request. Any 5xx answer counts as a failure.
func (p *HTTPProber) Probe(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("building probe request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := p.clock.Now()
	resp, err := p.client.Do(req)
	rtt := p.clock.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return rtt, fmt.Errorf("%w: %s", types.ErrProbeTimeout, p.url)
		}
		return rtt, fmt.Errorf("probe %s: %w", p.url, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return rtt, fmt.Errorf("probe %s: status %d", p.url, resp.StatusCode)
	}
	return rtt, nil
}

// InterfaceLinkChecker reports online when any non-loopback interface is up
type InterfaceLinkChecker struct{}

// Online implements LinkChecker
func (InterfaceLinkChecker) Online() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		// Unknown link state; let the probe decide
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}
