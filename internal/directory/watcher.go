package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/time/rate"

	"github.com/edgegate/routesyncd/internal/models"
)

// routeDoc is the wire form of one address's announcement.
type routeDoc struct {
	Routes []models.RawRoute `json:"routes"`
	Policy string            `json:"policy"`
}

// RouteWatcher turns an etcd watch over the routes folder into three streams:
// route updates, delete notifications, and a one-shot "directory connection
// established" signal taken from the watch's created notify.
type RouteWatcher struct {
	watcher      clientv3.Watcher
	prefix       string
	updates      chan models.RouteUpdate
	deletes      chan models.Address
	connected    chan struct{}
	restarts     *rate.Limiter
	lastRevision int64
	log          zerolog.Logger
}

func NewRouteWatcher(watcher clientv3.Watcher, logger zerolog.Logger) *RouteWatcher {
	return &RouteWatcher{
		watcher:   watcher,
		prefix:    routesFolder + "/",
		updates:   make(chan models.RouteUpdate, 256),
		deletes:   make(chan models.Address, 64),
		connected: make(chan struct{}, 1),
		restarts:  rate.NewLimiter(rate.Every(2*time.Second), 1),
		log:       logger.With().Str("component", "route-watcher").Logger(),
	}
}

func (w *RouteWatcher) Updates() <-chan models.RouteUpdate {
	return w.updates
}

func (w *RouteWatcher) Deletes() <-chan models.Address {
	return w.deletes
}

func (w *RouteWatcher) Connected() <-chan struct{} {
	return w.connected
}

func (w *RouteWatcher) Run(ctx context.Context) error {
	ctx = clientv3.WithRequireLeader(ctx)
	watch := func(rev int64) clientv3.WatchChan {
		opts := []clientv3.OpOption{
			clientv3.WithPrefix(),
			clientv3.WithCreatedNotify(),
		}
		if rev > 0 {
			opts = append(opts, clientv3.WithRev(rev))
		}
		return w.watcher.Watch(ctx, w.prefix, opts...)
	}
	watchChan := watch(0)
	for {
		select {
		case resp, ok := <-watchChan:
			if !ok {
				w.log.Info().Msg("watch channel closed")
				return nil
			}
			if resp.Canceled {
				w.log.Error().Err(resp.Err()).Msg("watch canceled, restarting")
				if err := w.restarts.Wait(ctx); err != nil {
					return err
				}
				watchChan = watch(w.lastRevision)
				continue
			}
			if err := resp.Err(); err != nil {
				w.log.Error().Err(err).Msg("got unexpected watch error")
				continue
			}
			w.lastRevision = resp.Header.Revision
			if resp.Created {
				w.log.Info().Msg("directory connection established")
				select {
				case w.connected <- struct{}{}:
				default:
				}
				continue
			}
			if resp.IsProgressNotify() {
				continue
			}
			for _, event := range resp.Events {
				w.handleEvent(ctx, event)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *RouteWatcher) handleEvent(ctx context.Context, event *clientv3.Event) {
	addr, err := addressFromRouteKey(string(event.Kv.Key))
	if err != nil {
		w.log.Error().Err(err).Msg("skip event with malformed key")
		return
	}
	switch event.Type {
	case clientv3.EventTypeDelete:
		select {
		case w.deletes <- addr:
		case <-ctx.Done():
		}
	case clientv3.EventTypePut:
		var doc routeDoc
		if err := json.Unmarshal(event.Kv.Value, &doc); err != nil {
			w.log.Error().Err(err).Msgf("skip malformed route document for %s", addr)
			return
		}
		select {
		case w.updates <- models.RouteUpdate{
			Address: addr,
			Routes:  doc.Routes,
			Policy:  doc.Policy,
		}:
		case <-ctx.Done():
		}
	}
}
