package main

import (
	"context"
	"errors"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/edgegate/routesyncd/internal/directory"
	"github.com/edgegate/routesyncd/internal/haproxy"
	"github.com/edgegate/routesyncd/internal/metrics"
	"github.com/edgegate/routesyncd/internal/models"
	"github.com/edgegate/routesyncd/internal/probe"
	"github.com/edgegate/routesyncd/internal/registrar"
	"github.com/edgegate/routesyncd/internal/synchronizer"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

type Config struct {
	LoggerLevel string `envconfig:"LOGGER_LEVEL,optional"`
	InstanceID  string `envconfig:"INSTANCE_ID"`

	EtcdEndpoints     []string `envconfig:"ETCD_ENDPOINTS"`
	SessionTTLSeconds int      `envconfig:"SESSION_TTL_SECONDS,default=10"`

	HaproxyBin        string `envconfig:"HAPROXY_BIN"`
	HaproxyConfigPath string `envconfig:"HAPROXY_CONFIG_PATH"`
	HaproxyPidFile    string `envconfig:"HAPROXY_PID_FILE"`

	ProbeURL        string        `envconfig:"PROBE_URL"`
	ServiceURL      string        `envconfig:"SERVICE_URL"`
	ProbeInterval   time.Duration `envconfig:"PROBE_INTERVAL,default=2s"`
	ProbeTimeout    time.Duration `envconfig:"PROBE_TIMEOUT,default=1s"`
	ProbeOkStatuses []int         `envconfig:"PROBE_OK_STATUSES,optional"`

	DebounceFastInterval   time.Duration `envconfig:"DEBOUNCE_FAST_INTERVAL,default=2s"`
	DebounceNormalInterval time.Duration `envconfig:"DEBOUNCE_NORMAL_INTERVAL,default=10s"`

	RouteEvictionEnabled bool `envconfig:"ROUTE_EVICTION_ENABLED,optional"`

	StatsdAddr string `envconfig:"STATSD_ADDR,optional"`
}

// directoryRegistry adapts the concrete directory client to the registrar's
// registry capability.
type directoryRegistry struct {
	client *directory.Client
}

func (r directoryRegistry) Acquire(ctx context.Context, addr models.Address) (registrar.Tether, error) {
	return r.client.Acquire(ctx, addr)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	appCfg := Config{}
	if err := envconfig.Init(&appCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	serviceURL, err := url.Parse(appCfg.ServiceURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SERVICE_URL")
	}
	if serviceURL.Path == "" {
		log.Fatal().Msgf("SERVICE_URL %q carries no path component to register", appCfg.ServiceURL)
	}
	address := models.Address(serviceURL.Path)

	var mts metrics.Metrics = metrics.Noop{}
	if appCfg.StatsdAddr != "" {
		mts = metrics.NewStatsd(appCfg.InstanceID, appCfg.StatsdAddr)
	}

	dir, err := directory.NewClient(
		appCfg.EtcdEndpoints,
		appCfg.InstanceID,
		appCfg.SessionTTLSeconds,
		log.Logger,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to the directory")
	}
	defer dir.Close()

	watcher := dir.NewRouteWatcher()
	reloader := haproxy.NewReloader(
		appCfg.HaproxyBin,
		appCfg.HaproxyConfigPath,
		appCfg.HaproxyPidFile,
		mts,
		log.Logger,
	)
	syncer := synchronizer.New(
		reloader,
		watcher.Updates(),
		watcher.Deletes(),
		watcher.Connected(),
		appCfg.DebounceFastInterval,
		appCfg.DebounceNormalInterval,
		appCfg.RouteEvictionEnabled,
		mts,
		log.Logger,
	)
	httpProbe := probe.NewHTTP(probe.HTTPSettings{
		URL:              appCfg.ProbeURL,
		Timeout:          appCfg.ProbeTimeout,
		AcceptedStatuses: appCfg.ProbeOkStatuses,
	}, log.Logger)
	reg := registrar.New(
		httpProbe,
		directoryRegistry{client: dir},
		address,
		appCfg.ProbeInterval,
		mts,
		log.Logger,
	)

	log.Info().Msgf("starting route-sync daemon, instance %s, service %s", appCfg.InstanceID, address)

	run := func(name string, fn func(context.Context) error) {
		go func() {
			err := fn(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msgf("%s stopped", name)
				cancel()
			}
		}()
	}
	run("route watcher", watcher.Run)
	run("synchronizer", syncer.Run)
	run("registrar", reg.Run)

	<-ctx.Done()
	log.Info().Msg("shutting down")
}
