package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newEpochServer(t *testing.T, c *cluster) *httptest.Server {
	t.Helper()
	server := mockRPCServer(t, c.handle)
	t.Cleanup(server.Close)
	return server
}

func TestEpochPoolExcludesLaggingEndpoint(t *testing.T) {
	ahead := &cluster{epoch: 12}
	behind := &cluster{epoch: 10}
	s1 := newEpochServer(t, ahead)
	s2 := newEpochServer(t, behind)

	pool := NewEpochPool([]string{s1.URL, s2.URL}, 1, time.Hour, 5*time.Second)
	var mu sync.Mutex
	changes := map[string]bool{}
	pool.SetOnHealthChange(func(url string, healthy bool, epoch uint64) {
		mu.Lock()
		changes[url] = healthy
		mu.Unlock()
	})

	ctx := context.Background()
	pool.CheckNow(ctx)

	if got := pool.ReferenceEpoch(); got != 12 {
		t.Errorf("Expected reference epoch 12, got %d", got)
	}
	if got := pool.GetHealthyCount(); got != 1 {
		t.Fatalf("Expected 1 healthy endpoint, got %d", got)
	}
	for i := 0; i < 4; i++ {
		ep, err := pool.GetEndpoint(ctx)
		if err != nil {
			t.Fatalf("GetEndpoint failed: %v", err)
		}
		if ep.URL != s1.URL {
			t.Errorf("Expected %s, got %s", s1.URL, ep.URL)
		}
	}
	mu.Lock()
	if healthy, ok := changes[s2.URL]; !ok || healthy {
		t.Errorf("Expected unhealthy callback for lagging endpoint, got %v (seen %v)", healthy, ok)
	}
	mu.Unlock()

	// Catching up readmits the endpoint.
	behind.mu.Lock()
	behind.epoch = 12
	behind.mu.Unlock()
	pool.CheckNow(ctx)
	if got := pool.GetHealthyCount(); got != 2 {
		t.Errorf("Expected 2 healthy endpoints, got %d", got)
	}
}

func TestEpochPoolWithinThreshold(t *testing.T) {
	s1 := newEpochServer(t, &cluster{epoch: 12})
	s2 := newEpochServer(t, &cluster{epoch: 11})

	pool := NewEpochPool([]string{s1.URL, s2.URL}, 1, time.Hour, 5*time.Second)
	pool.CheckNow(context.Background())

	if got := pool.GetHealthyCount(); got != 2 {
		t.Errorf("Expected 2 healthy endpoints, got %d", got)
	}
	status := pool.EndpointStatus()
	if len(status) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(status))
	}
	if status[1].Epoch != 11 || status[1].LastCheck.IsZero() {
		t.Errorf("Unexpected status: %+v", status[1])
	}
}

func TestEpochPoolConsecutiveFailures(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	pool := NewEpochPool([]string{down.URL}, 0, time.Hour, time.Second)
	ctx := context.Background()

	for i := 1; i < maxFailures; i++ {
		pool.CheckNow(ctx)
		if pool.GetHealthyCount() != 1 {
			t.Fatalf("Endpoint excluded after %d failures", i)
		}
	}
	pool.CheckNow(ctx)
	if pool.GetHealthyCount() != 0 {
		t.Fatal("Expected endpoint to be excluded")
	}
	if _, err := pool.GetEndpoint(ctx); !errors.Is(err, ErrNoHealthyEndpoints) {
		t.Errorf("Expected ErrNoHealthyEndpoints, got %v", err)
	}
	if got := pool.EndpointStatus()[0].FailCount; got != maxFailures {
		t.Errorf("Expected fail count %d, got %d", maxFailures, got)
	}
}

func TestEpochPoolMarkHealthyKeepsLagExclusion(t *testing.T) {
	s1 := newEpochServer(t, &cluster{epoch: 20})
	s2 := newEpochServer(t, &cluster{epoch: 15})

	pool := NewEpochPool([]string{s1.URL, s2.URL}, 2, time.Hour, 5*time.Second)
	pool.CheckNow(context.Background())
	pool.MarkHealthy(s2.URL, time.Millisecond)

	if got := pool.GetHealthyCount(); got != 1 {
		t.Errorf("Expected 1 healthy endpoint, got %d", got)
	}
}

func TestEpochPoolStartStop(t *testing.T) {
	s := newEpochServer(t, &cluster{epoch: 7})

	pool := NewEpochPool([]string{s.URL}, 0, 10*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	if got := pool.ReferenceEpoch(); got != 7 {
		t.Errorf("Expected reference epoch 7 after Start, got %d", got)
	}
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRPCWithHealthChecks(t *testing.T) {
	c := &cluster{epoch: 9}
	s := newEpochServer(t, c)

	cfg := DefaultRPCConfig()
	cfg.Endpoints = []string{s.URL}
	cfg.Timeout = 5 * time.Second
	cfg.HealthCheckPeriod = time.Hour
	o, err := NewRPC(cfg)
	if err != nil {
		t.Fatalf("NewRPC failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Close()

	epoch, err := o.CurrentEpoch(ctx)
	if err != nil {
		t.Fatalf("CurrentEpoch failed: %v", err)
	}
	if epoch != 9 {
		t.Errorf("Expected epoch 9, got %d", epoch)
	}
	if eps := o.Endpoints(); len(eps) != 1 || !eps[0].Healthy {
		t.Errorf("Unexpected endpoint status: %+v", eps)
	}
}
