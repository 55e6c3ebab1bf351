// Package synchronizer owns the route table and drives the proxy
// configuration from directory updates: updates mark the table dirty, a
// single debounce timer coalesces bursts, and the proxy is reconfigured at
// most once per quiescent window.
package synchronizer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgegate/routesyncd/internal/debounce"
	"github.com/edgegate/routesyncd/internal/metrics"
	"github.com/edgegate/routesyncd/internal/models"
)

// ProxyConfigurator renders a snapshot and reloads the proxy when the
// rendered output changed.
type ProxyConfigurator interface {
	Apply(ctx context.Context, routes []models.ServiceRoute) error
}

// retryFlushDelay paces re-attempts after a failed configuration apply.
const retryFlushDelay = 30 * time.Second

type Synchronizer struct {
	table    *RouteTable
	debounce *debounce.State
	proxy    ProxyConfigurator

	updates   <-chan models.RouteUpdate
	deletes   <-chan models.Address
	connected <-chan struct{}

	evictionEnabled bool

	timer *time.Timer
	mts   metrics.Metrics
	log   zerolog.Logger
}

func New(
	proxy ProxyConfigurator,
	updates <-chan models.RouteUpdate,
	deletes <-chan models.Address,
	connected <-chan struct{},
	fastInterval time.Duration,
	normalInterval time.Duration,
	evictionEnabled bool,
	mts metrics.Metrics,
	logger zerolog.Logger,
) *Synchronizer {
	return &Synchronizer{
		table:           NewRouteTable(),
		debounce:        debounce.New(fastInterval, normalInterval),
		proxy:           proxy,
		updates:         updates,
		deletes:         deletes,
		connected:       connected,
		evictionEnabled: evictionEnabled,
		mts:             mts,
		log:             logger.With().Str("component", "synchronizer").Logger(),
	}
}

func (s *Synchronizer) Run(ctx context.Context) error {
	s.handleInit()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-s.updates:
			if !ok {
				return nil
			}
			s.handleMessage(update)
		case addr, ok := <-s.deletes:
			if !ok {
				return nil
			}
			s.handleDelete(addr)
		case _, ok := <-s.connected:
			if !ok {
				return nil
			}
			s.handlePeerConnected()
		case <-s.timer.C:
			s.handleTimer(ctx)
		}
	}
}

func (s *Synchronizer) handleInit() {
	// Single pending timer for the whole loop; armed only via Reset.
	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		<-s.timer.C
	}
	s.log.Info().Msgf("synchronizer started, debounce interval %s", s.debounce.Interval())
}

func (s *Synchronizer) handleMessage(update models.RouteUpdate) {
	s.table.Apply(update)
	s.mts.Increment("routes.updates")
	s.log.Debug().Msgf("applied route update: %v", update)
	s.rearm(s.debounce.MarkDirty(time.Now()))
}

func (s *Synchronizer) handleDelete(addr models.Address) {
	if !s.evictionEnabled {
		s.log.Debug().Msgf("address %s disappeared from the directory, keeping its routes", addr)
		return
	}
	if !s.table.Evict(addr) {
		return
	}
	s.mts.Increment("routes.evictions")
	s.log.Info().Msgf("evicted routes for %s", addr)
	s.rearm(s.debounce.MarkDirty(time.Now()))
}

func (s *Synchronizer) handlePeerConnected() {
	s.debounce.PeerConnected()
	s.log.Info().Msgf("peer connected, debounce interval now %s", s.debounce.Interval())
}

func (s *Synchronizer) handleTimer(ctx context.Context) {
	act, rearm := s.debounce.OnTimerFire(time.Now())
	if rearm > 0 {
		s.rearm(rearm)
		return
	}
	if !act {
		return
	}
	s.flush(ctx)
}

func (s *Synchronizer) flush(ctx context.Context) {
	routes := s.table.Snapshot()
	s.mts.Gauge("routes.table_size", len(routes))
	if err := s.proxy.Apply(ctx, routes); err != nil {
		s.log.Error().Err(err).Msg("failed to apply proxy configuration, will retry")
		s.debounce.MarkDirty(time.Now())
		s.rearm(retryFlushDelay)
		return
	}
	s.mts.Increment("routes.flushes")
}

func (s *Synchronizer) rearm(delay time.Duration) {
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(delay)
}
