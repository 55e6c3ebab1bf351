package registrar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgegate/routesyncd/internal/metrics"
	"github.com/edgegate/routesyncd/internal/models"
)

type scriptedProbe struct {
	results []bool
	pos     int
}

func (p *scriptedProbe) Check(context.Context) bool {
	if p.pos >= len(p.results) {
		return p.results[len(p.results)-1]
	}
	res := p.results[p.pos]
	p.pos++
	return res
}

type fakeTether struct {
	released int
}

func (t *fakeTether) Release(context.Context) error {
	t.released++
	return nil
}

type fakeRegistry struct {
	acquired int
	tethers  []*fakeTether
	err      error
}

func (r *fakeRegistry) Acquire(context.Context, models.Address) (Tether, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.acquired++
	tether := &fakeTether{}
	r.tethers = append(r.tethers, tether)
	return tether, nil
}

func newTestRegistrar(probe Probe, registry Registry) *Registrar {
	return New(probe, registry, "/svc", time.Second, metrics.Noop{}, zerolog.Nop())
}

func TestRepeatedLiveChecksAcquireOnce(t *testing.T) {
	registry := &fakeRegistry{}
	r := newTestRegistrar(&scriptedProbe{results: []bool{true}}, registry)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r.check(ctx)
	}
	if registry.acquired != 1 {
		t.Fatalf("acquired = %d, want 1", registry.acquired)
	}
	if r.status != models.LivenessLive {
		t.Fatalf("status = %s, want live", r.status)
	}
}

func TestRepeatedDeadChecksReleaseOnce(t *testing.T) {
	registry := &fakeRegistry{}
	r := newTestRegistrar(&scriptedProbe{results: []bool{true, false}}, registry)

	ctx := context.Background()
	r.check(ctx) // live, acquires
	for i := 0; i < 5; i++ {
		r.check(ctx) // dead from here on
	}
	if registry.acquired != 1 {
		t.Fatalf("acquired = %d, want 1", registry.acquired)
	}
	if got := registry.tethers[0].released; got != 1 {
		t.Fatalf("released = %d, want 1", got)
	}
	if r.status != models.LivenessDead {
		t.Fatalf("status = %s, want dead", r.status)
	}
}

func TestFlappingReacquires(t *testing.T) {
	registry := &fakeRegistry{}
	r := newTestRegistrar(&scriptedProbe{results: []bool{true, false, true}}, registry)

	ctx := context.Background()
	r.check(ctx)
	r.check(ctx)
	r.check(ctx)
	if registry.acquired != 2 {
		t.Fatalf("acquired = %d, want 2 after live-dead-live", registry.acquired)
	}
	if registry.tethers[0].released != 1 {
		t.Fatal("first tether not released on the dead transition")
	}
	if registry.tethers[1].released != 0 {
		t.Fatal("second tether must still be held")
	}
}

func TestStartedDeadMakesNoDirectoryCalls(t *testing.T) {
	registry := &fakeRegistry{}
	r := newTestRegistrar(&scriptedProbe{results: []bool{false}}, registry)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		r.check(ctx)
	}
	if registry.acquired != 0 {
		t.Fatalf("acquired = %d, want 0", registry.acquired)
	}
	if r.justStarted {
		t.Fatal("justStarted must clear after the first dead observation")
	}
}

func TestAcquireFailureRetriedNextPoll(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("directory unavailable")}
	r := newTestRegistrar(&scriptedProbe{results: []bool{true}}, registry)

	ctx := context.Background()
	r.check(ctx)
	if r.status != models.LivenessUnknown {
		t.Fatalf("status = %s, want unknown while registration keeps failing", r.status)
	}

	registry.err = nil
	r.check(ctx)
	if registry.acquired != 1 || r.status != models.LivenessLive {
		t.Fatalf("acquired = %d, status = %s; want 1, live", registry.acquired, r.status)
	}
}
