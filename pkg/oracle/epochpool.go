package oracle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
)

// ErrNoHealthyEndpoints is returned when every endpoint is lagging or failing.
var ErrNoHealthyEndpoints = errors.New("no healthy endpoints available")

// Default epoch pool settings.
const (
	DefaultHealthCheckPeriod = 30 * time.Second
	// maxFailures is the number of consecutive failures that mark an
	// endpoint unhealthy.
	maxFailures = 3
)

// endpointState is the health state of one endpoint.
type endpointState struct {
	url       string
	probe     *client
	healthy   atomic.Bool
	lastEpoch atomic.Uint64
	lastCheck atomic.Int64 // Unix nano timestamp
	failCount atomic.Int32

	mu      sync.Mutex
	lastErr error
	latency time.Duration
}

// EpochPool is a Pool that periodically asks every endpoint for its epoch
// and excludes endpoints that lag the highest reported epoch by more than
// the threshold. A lagging endpoint would otherwise report an epoch that
// precedes the pool's last update.
type EpochPool struct {
	endpoints []*endpointState
	threshold uint64
	period    time.Duration

	nextIndex atomic.Uint64
	refEpoch  atomic.Uint64

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool

	onHealthChange func(url string, healthy bool, epoch uint64)
	log            log15.Logger
}

// NewEpochPool creates a pool over urls. Endpoints start healthy; call Start
// or CheckNow to begin checking them.
func NewEpochPool(urls []string, threshold uint64, period, timeout time.Duration) *EpochPool {
	if period <= 0 {
		period = DefaultHealthCheckPeriod
	}
	p := &EpochPool{
		threshold: threshold,
		period:    period,
		log:       log15.New("module", "epochpool"),
	}
	for _, url := range urls {
		ep := &endpointState{url: url, probe: newClient(NewSimplePool([]string{url}), timeout)}
		ep.healthy.Store(true)
		p.endpoints = append(p.endpoints, ep)
	}
	return p
}

// SetOnHealthChange sets a callback invoked when an endpoint's health changes.
// Must be called before Start.
func (p *EpochPool) SetOnHealthChange(fn func(url string, healthy bool, epoch uint64)) {
	p.onHealthChange = fn
}

// GetEndpoint implements Pool. Healthy endpoints are used round-robin.
func (p *EpochPool) GetEndpoint(ctx context.Context) (*Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	var healthy []*endpointState
	for _, ep := range p.endpoints {
		if ep.healthy.Load() {
			healthy = append(healthy, ep)
		}
	}
	if len(healthy) == 0 {
		return nil, ErrNoHealthyEndpoints
	}
	ep := healthy[p.nextIndex.Add(1)%uint64(len(healthy))]
	return ep.snapshot(), nil
}

// MarkUnhealthy implements Pool. An endpoint is excluded after three
// consecutive failures.
func (p *EpochPool) MarkUnhealthy(url string, err error) {
	if ep := p.find(url); ep != nil {
		ep.mu.Lock()
		ep.lastErr = err
		ep.mu.Unlock()
		p.recordFailure(ep)
	}
}

// MarkHealthy implements Pool. Success resets the failure count but does not
// readmit an endpoint excluded for lagging; only a health check does that.
func (p *EpochPool) MarkHealthy(url string, latency time.Duration) {
	if ep := p.find(url); ep != nil {
		ep.failCount.Store(0)
		ep.mu.Lock()
		ep.lastErr = nil
		ep.latency = latency
		ep.mu.Unlock()
	}
}

// GetHealthyCount implements Pool.
func (p *EpochPool) GetHealthyCount() int {
	count := 0
	for _, ep := range p.endpoints {
		if ep.healthy.Load() {
			count++
		}
	}
	return count
}

// ReferenceEpoch returns the highest epoch seen by the last health check.
func (p *EpochPool) ReferenceEpoch() uint64 {
	return p.refEpoch.Load()
}

// Start runs an initial health check and then checks every period until
// ctx is cancelled or Stop is called.
func (p *EpochPool) Start(ctx context.Context) {
	if p.started.Swap(true) {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.CheckNow(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.CheckNow(ctx)
			}
		}
	}()
}

// Stop stops the health check loop.
func (p *EpochPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// CheckNow queries every endpoint concurrently and updates health against
// the highest epoch reported.
func (p *EpochPool) CheckNow(ctx context.Context) {
	epochs := make([]uint64, len(p.endpoints))
	errs := make([]error, len(p.endpoints))

	var wg sync.WaitGroup
	for i, ep := range p.endpoints {
		wg.Add(1)
		go func(i int, ep *endpointState) {
			defer wg.Done()
			var info EpochInfo
			errs[i] = ep.probe.call(ctx, "getEpochInfo", nil, &info)
			epochs[i] = info.Epoch
		}(i, ep)
	}
	wg.Wait()

	var ref uint64
	for i := range p.endpoints {
		if errs[i] == nil && epochs[i] > ref {
			ref = epochs[i]
		}
	}
	p.refEpoch.Store(ref)

	now := time.Now().UnixNano()
	for i, ep := range p.endpoints {
		ep.lastCheck.Store(now)
		if errs[i] != nil {
			ep.mu.Lock()
			ep.lastErr = errs[i]
			ep.mu.Unlock()
			p.recordFailure(ep)
			continue
		}
		ep.failCount.Store(0)
		ep.lastEpoch.Store(epochs[i])
		p.setHealthy(ep, ref-epochs[i] <= p.threshold)
	}
}

func (p *EpochPool) recordFailure(ep *endpointState) {
	if ep.failCount.Add(1) >= maxFailures {
		p.setHealthy(ep, false)
	}
}

func (p *EpochPool) setHealthy(ep *endpointState, healthy bool) {
	if was := ep.healthy.Swap(healthy); was != healthy {
		p.log.Info("Endpoint health changed", "url", ep.url, "healthy", healthy, "epoch", ep.lastEpoch.Load())
		if p.onHealthChange != nil {
			p.onHealthChange(ep.url, healthy, ep.lastEpoch.Load())
		}
	}
}

func (p *EpochPool) find(url string) *endpointState {
	for _, ep := range p.endpoints {
		if ep.url == url {
			return ep
		}
	}
	return nil
}

// EndpointInfo contains status information about an endpoint.
type EndpointInfo struct {
	URL       string
	Healthy   bool
	Epoch     uint64
	LastCheck time.Time
	FailCount int
}

// EndpointStatus returns the status of every endpoint.
func (p *EpochPool) EndpointStatus() []EndpointInfo {
	infos := make([]EndpointInfo, len(p.endpoints))
	for i, ep := range p.endpoints {
		infos[i] = EndpointInfo{
			URL:       ep.url,
			Healthy:   ep.healthy.Load(),
			Epoch:     ep.lastEpoch.Load(),
			LastCheck: time.Unix(0, ep.lastCheck.Load()),
			FailCount: int(ep.failCount.Load()),
		}
	}
	return infos
}

func (ep *endpointState) snapshot() *Endpoint {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return &Endpoint{
		URL:       ep.url,
		Healthy:   ep.healthy.Load(),
		LastError: ep.lastErr,
		Latency:   ep.latency,
	}
}
