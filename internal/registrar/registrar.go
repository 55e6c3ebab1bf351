// Package registrar gates the service's directory registration on a live
// health signal: a fixed-period probe drives an unknown/live/dead state
// machine that acquires a tether while live and releases it when dead.
package registrar

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgegate/routesyncd/internal/metrics"
	"github.com/edgegate/routesyncd/internal/models"
)

// Probe reports whether the local service is healthy. Implementations must
// bound their own timeout; any transport error is an unhealthy result.
type Probe interface {
	Check(ctx context.Context) bool
}

type Tether interface {
	Release(ctx context.Context) error
}

type Registry interface {
	Acquire(ctx context.Context, addr models.Address) (Tether, error)
}

type Registrar struct {
	probe    Probe
	registry Registry
	address  models.Address
	interval time.Duration

	status      models.LivenessStatus
	tether      Tether
	justStarted bool

	mts metrics.Metrics
	log zerolog.Logger
}

func New(
	probe Probe,
	registry Registry,
	address models.Address,
	interval time.Duration,
	mts metrics.Metrics,
	logger zerolog.Logger,
) *Registrar {
	return &Registrar{
		probe:       probe,
		registry:    registry,
		address:     address,
		interval:    interval,
		status:      models.LivenessUnknown,
		justStarted: true,
		mts:         mts,
		log:         logger.With().Str("component", "registrar").Logger(),
	}
}

// Run polls the probe once per period. Checks are serialized: the next
// period is armed only after the current check completes, so a slow probe
// throttles polling instead of overlapping it.
func (r *Registrar) Run(ctx context.Context) error {
	r.log.Info().Msgf("registrar started for %s, probe interval %s", r.address, r.interval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return ctx.Err()
		case <-timer.C:
			r.check(ctx)
			timer.Reset(r.interval)
		}
	}
}

func (r *Registrar) check(ctx context.Context) {
	if r.probe.Check(ctx) {
		r.toLive(ctx)
	} else {
		r.toDead(ctx)
	}
}

func (r *Registrar) toLive(ctx context.Context) {
	if r.status == models.LivenessLive {
		return
	}
	if r.tether == nil {
		tether, err := r.registry.Acquire(ctx, r.address)
		if err != nil {
			// Stay in the current state so the next poll retries.
			r.log.Error().Err(err).Msgf("service is up but registration failed for %s", r.address)
			return
		}
		r.tether = tether
	}
	r.status = models.LivenessLive
	r.justStarted = false
	r.mts.Increment("liveness.up")
	r.log.Info().Msgf("service %s is live, registered in the directory", r.address)
}

func (r *Registrar) toDead(ctx context.Context) {
	if r.status == models.LivenessDead {
		return
	}
	if r.tether != nil {
		if err := r.tether.Release(ctx); err != nil {
			r.log.Error().Err(err).Msgf("failed to release tether for %s", r.address)
		}
		r.tether = nil
	}
	wasUnknown := r.status == models.LivenessUnknown
	r.status = models.LivenessDead
	r.mts.Increment("liveness.down")
	if wasUnknown {
		if r.justStarted {
			r.justStarted = false
			r.log.Warn().Msgf("service %s started dead, holding registration", r.address)
		}
		return
	}
	r.log.Warn().Msgf("service %s went dead, deregistered from the directory", r.address)
}

// shutdown releases a held tether so the directory entry disappears with us.
func (r *Registrar) shutdown() {
	if r.tether == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tether.Release(ctx); err != nil {
		r.log.Error().Err(err).Msgf("failed to release tether for %s on shutdown", r.address)
	}
	r.tether = nil
}
