package oracle

import (
	"context"
	"sync"
	"time"
)

// Endpoint represents an RPC endpoint with health tracking.
type Endpoint struct {
	URL         string
	Healthy     bool
	LastError   error
	LastSuccess time.Time
	Latency     time.Duration
}

// Pool selects RPC endpoints and tracks their health.
type Pool interface {
	// GetEndpoint returns an endpoint for the next request.
	GetEndpoint(ctx context.Context) (*Endpoint, error)

	// MarkUnhealthy marks an endpoint as unhealthy after a failed request.
	MarkUnhealthy(url string, err error)

	// MarkHealthy marks an endpoint as healthy after a successful request.
	MarkHealthy(url string, latency time.Duration)

	// GetHealthyCount returns the number of currently healthy endpoints.
	GetHealthyCount() int
}

// SimplePool rotates over its endpoints, preferring healthy ones.
type SimplePool struct {
	endpoints []*Endpoint
	mu        sync.Mutex
	idx       int
}

// NewSimplePool creates a new SimplePool with the given endpoints.
func NewSimplePool(urls []string) *SimplePool {
	endpoints := make([]*Endpoint, len(urls))
	for i, url := range urls {
		endpoints[i] = &Endpoint{URL: url, Healthy: true}
	}
	return &SimplePool{endpoints: endpoints}
}

// GetEndpoint returns the next healthy endpoint in round-robin order. When
// every endpoint is unhealthy it returns the next one anyway so that a
// recovered endpoint is noticed.
func (p *SimplePool) GetEndpoint(ctx context.Context) (*Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	if n == 0 {
		return nil, ErrNoEndpoints
	}
	for i := 0; i < n; i++ {
		idx := (p.idx + i) % n
		if ep := p.endpoints[idx]; ep.Healthy {
			p.idx = (idx + 1) % n
			return ep, nil
		}
	}
	ep := p.endpoints[p.idx]
	p.idx = (p.idx + 1) % n
	return ep, nil
}

// MarkUnhealthy marks an endpoint as unhealthy.
func (p *SimplePool) MarkUnhealthy(url string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ep := p.find(url); ep != nil {
		ep.Healthy = false
		ep.LastError = err
	}
}

// MarkHealthy marks an endpoint as healthy.
func (p *SimplePool) MarkHealthy(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ep := p.find(url); ep != nil {
		ep.Healthy = true
		ep.LastSuccess = time.Now()
		ep.Latency = latency
		ep.LastError = nil
	}
}

// GetHealthyCount returns the number of healthy endpoints.
func (p *SimplePool) GetHealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, ep := range p.endpoints {
		if ep.Healthy {
			count++
		}
	}
	return count
}

func (p *SimplePool) find(url string) *Endpoint {
	for _, ep := range p.endpoints {
		if ep.URL == url {
			return ep
		}
	}
	return nil
}
