package synchronizer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgegate/routesyncd/internal/metrics"
	"github.com/edgegate/routesyncd/internal/models"
)

type recordingConfigurator struct {
	mu      sync.Mutex
	applies [][]models.ServiceRoute
	err     error
}

func (c *recordingConfigurator) Apply(_ context.Context, routes []models.ServiceRoute) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.applies = append(c.applies, routes)
	return nil
}

func (c *recordingConfigurator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.applies)
}

func (c *recordingConfigurator) last() []models.ServiceRoute {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.applies) == 0 {
		return nil
	}
	return c.applies[len(c.applies)-1]
}

func startSynchronizer(t *testing.T, proxy ProxyConfigurator, eviction bool) (
	chan models.RouteUpdate, chan models.Address, chan struct{},
) {
	t.Helper()
	updates := make(chan models.RouteUpdate, 16)
	deletes := make(chan models.Address, 16)
	connected := make(chan struct{}, 1)
	s := New(
		proxy, updates, deletes, connected,
		20*time.Millisecond, 40*time.Millisecond,
		eviction,
		metrics.Noop{}, zerolog.Nop(),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = s.Run(ctx)
	}()
	return updates, deletes, connected
}

func update(addr models.Address, host string) models.RouteUpdate {
	return models.RouteUpdate{
		Address: addr,
		Routes:  []models.RawRoute{{Host: host, Port: 80, Kind: "http"}},
		Policy:  "p",
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBurstCoalescedIntoOneApply(t *testing.T) {
	proxy := &recordingConfigurator{}
	updates, _, _ := startSynchronizer(t, proxy, false)

	for _, host := range []string{"h1", "h2", "h3", "h4", "h5"} {
		updates <- update("//d/a", host)
	}
	waitFor(t, "first apply", func() bool { return proxy.count() >= 1 })

	// A full quiescent window later there must still be exactly one apply,
	// holding the last update of the burst.
	time.Sleep(100 * time.Millisecond)
	if got := proxy.count(); got != 1 {
		t.Fatalf("apply count = %d, want 1", got)
	}
	routes := proxy.last()
	if len(routes) != 1 || len(routes[0].Targets) != 1 || routes[0].Targets[0] != "http://h5:80" {
		t.Fatalf("last apply = %+v, want the final update of the burst", routes)
	}
}

func TestSeparateQuiescentWindowsApplySeparately(t *testing.T) {
	proxy := &recordingConfigurator{}
	updates, _, _ := startSynchronizer(t, proxy, false)

	updates <- update("//d/a", "h1")
	waitFor(t, "first apply", func() bool { return proxy.count() == 1 })

	updates <- update("//d/a", "h2")
	waitFor(t, "second apply", func() bool { return proxy.count() == 2 })
}

func TestDeleteIgnoredWithoutEviction(t *testing.T) {
	proxy := &recordingConfigurator{}
	updates, deletes, _ := startSynchronizer(t, proxy, false)

	updates <- update("//d/a", "h1")
	waitFor(t, "first apply", func() bool { return proxy.count() == 1 })

	deletes <- "//d/a"
	time.Sleep(100 * time.Millisecond)
	if proxy.count() != 1 {
		t.Fatal("delete must not trigger a flush when eviction is disabled")
	}
}

func TestDeleteEvictsWhenEnabled(t *testing.T) {
	proxy := &recordingConfigurator{}
	updates, deletes, _ := startSynchronizer(t, proxy, true)

	updates <- update("//d/a", "h1")
	waitFor(t, "first apply", func() bool { return proxy.count() == 1 })

	deletes <- "//d/a"
	waitFor(t, "eviction flush", func() bool { return proxy.count() == 2 })
	if routes := proxy.last(); len(routes) != 0 {
		t.Fatalf("table after eviction = %+v, want empty", routes)
	}
}
