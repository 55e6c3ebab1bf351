// Package haproxy renders the proxy configuration and performs
// change-suppressed graceful reloads of the external proxy process.
package haproxy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog"

	"github.com/edgegate/routesyncd/internal/metrics"
	"github.com/edgegate/routesyncd/internal/models"
)

// Runner launches a command without waiting for it to exit.
type Runner interface {
	Start(name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Fire and forget: the proxy outlives us and is never supervised here.
	return cmd.Process.Release()
}

type Reloader struct {
	proxyBin   string
	configPath string
	pidFile    string

	lastRendered string

	runner Runner
	now    func() time.Time
	mts    metrics.Metrics
	log    zerolog.Logger
}

func NewReloader(proxyBin, configPath, pidFile string, mts metrics.Metrics, logger zerolog.Logger) *Reloader {
	return &Reloader{
		proxyBin:   proxyBin,
		configPath: configPath,
		pidFile:    pidFile,
		runner:     execRunner{},
		now:        time.Now,
		mts:        mts,
		log:        logger.With().Str("component", "reloader").Logger(),
	}
}

// Apply renders the snapshot and reloads the proxy if the output changed.
func (r *Reloader) Apply(ctx context.Context, routes []models.ServiceRoute) error {
	return r.ReloadIfChanged(ctx, Render(routes))
}

// ReloadIfChanged writes body to the config path and spawns a graceful
// reload, unless body matches the last written output. The written file is
// prefixed with a "last updated" comment; comparison is on the body alone so
// identical renders stay suppressed. A failed write leaves lastRendered
// untouched, so the same body is retried on the next attempt rather than
// being permanently suppressed.
func (r *Reloader) ReloadIfChanged(ctx context.Context, body string) error {
	if body == r.lastRendered {
		r.mts.Increment("reload.suppressed")
		r.log.Info().Msg("rendered config unchanged, reload suppressed")
		return nil
	}
	reloadID, _ := uuid.GenerateUUID()

	text := fmt.Sprintf("# last updated %s\n%s", r.now().Format(time.RFC3339), body)
	if err := writeFileAtomic(r.configPath, text); err != nil {
		return fmt.Errorf("failed to write proxy config: %w", err)
	}
	r.lastRendered = body

	args := []string{"-f", r.configPath, "-p", r.pidFile}
	if oldPid := r.readPreviousPid(); oldPid != "" {
		args = append(args, "-sf", oldPid)
	}
	if err := r.runner.Start(r.proxyBin, args...); err != nil {
		// Config is already on disk, the next successful reload picks it up.
		r.mts.Increment("reload.spawn_errors")
		r.log.Error().Err(err).Msgf("failed to spawn proxy reload %s", reloadID)
		return nil
	}
	r.mts.Increment("reload.performed")
	r.log.Info().Msgf("proxy reload %s spawned: %s %s", reloadID, r.proxyBin, strings.Join(args, " "))
	return nil
}

// readPreviousPid returns the previous proxy pid, or "" when the pid file is
// missing or unreadable (treated as no previous instance).
func (r *Reloader) readPreviousPid() string {
	raw, err := os.ReadFile(r.pidFile)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Debug().Err(err).Msg("pid file unreadable, assuming no previous instance")
		}
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// writeFileAtomic writes via a temp file in the target directory and renames
// it into place, so a concurrent reader never observes a half-written file.
func writeFileAtomic(path string, text string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
