// Package daemon implements the enforcement watcher loop.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	PollInterval      time.Duration // fallback foreground poll (bounds missed events)
	PauseTickInterval time.Duration // pause-countdown recomputation granularity
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval:      15 * time.Minute,
		PauseTickInterval: time.Second,
	}
}

// Watcher runs both enforcement drivers against the shared decision
// surface: the event-driven driver consumes the foreground-change
// stream, and the poll-driven fallback queries the foreground directly
// so a missed event can never leave a blocked app reachable for longer
// than one poll interval. It also drives the pause-countdown expiry,
// which doubles as the resync point for focus transitions committed by
// the CLI process, and accrues foreground usage from observed
// transitions.
//
// Run is a single goroutine; the facade and the focus manager do their
// own locking, so the two drivers can never race on a transition.
type Watcher struct {
	config  WatcherConfig
	facade  domain.PolicyFacade
	monitor domain.ForegroundMonitor
	overlay domain.OverlayPresenter
	logger  *zap.Logger

	// Last observed foreground app, for usage accrual.
	lastApp domain.AppID
	lastAt  time.Time
}

// NewWatcher creates the enforcement watcher.
func NewWatcher(
	config WatcherConfig,
	facade domain.PolicyFacade,
	monitor domain.ForegroundMonitor,
	overlay domain.OverlayPresenter,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		config:  config,
		facade:  facade,
		monitor: monitor,
		overlay: overlay,
		logger:  logger,
	}
}

// Run starts the watcher loop. This blocks until context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("enforcement watcher started",
		zap.Duration("poll_interval", w.config.PollInterval))

	// Recover a pause that may have expired while the process was down.
	w.tickPause(time.Now())

	pollTicker := time.NewTicker(w.config.PollInterval)
	pauseTicker := time.NewTicker(w.config.PauseTickInterval)
	defer func() {
		pollTicker.Stop()
		pauseTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("enforcement watcher stopping")
			return ctx.Err()

		case ev, ok := <-w.monitor.Events():
			if !ok {
				return nil
			}
			w.handleEvent(ev)

		case <-pollTicker.C:
			w.poll(time.Now())

		case <-pauseTicker.C:
			w.tickPause(time.Now())
		}
	}
}

// handleEvent is the event-driven driver: credit the outgoing app's
// foreground time, then check the incoming app.
func (w *Watcher) handleEvent(ev domain.ForegroundEvent) {
	w.accrueUsage(ev.At)
	w.lastApp = ev.AppID
	w.lastAt = ev.At
	w.check(ev.AppID, ev.At)
}

// poll is the time-driven fallback driver: query the foreground app
// directly and perform the same check.
func (w *Watcher) poll(now time.Time) {
	id, err := w.monitor.Foreground()
	if err != nil {
		w.logger.Debug("foreground query failed", zap.Error(err))
		return
	}

	if id == w.lastApp {
		// Same app still up: advance the accrual watermark so a long
		// stretch without events still counts toward the daily limit.
		w.accrueUsage(now)
	} else {
		w.accrueUsage(now)
		w.lastApp = id
	}
	w.lastAt = now

	w.check(id, now)
}

// accrueUsage credits elapsed foreground time to the last observed app.
func (w *Watcher) accrueUsage(now time.Time) {
	if w.lastApp == "" || w.lastAt.IsZero() {
		return
	}
	delta := now.Sub(w.lastAt)
	if delta <= 0 {
		return
	}
	if err := w.facade.RecordUsage(w.lastApp, delta, now); err != nil {
		w.logger.Warn("failed to record usage",
			zap.String("app", string(w.lastApp)),
			zap.Error(err))
	}
}

// check runs the shared decision surface and presents or dismisses the
// overlay. A decision error fails open: blocking on unreadable state
// could lock the user out on a storage fault.
func (w *Watcher) check(id domain.AppID, now time.Time) {
	verdict, err := w.facade.CheckForeground(id, now)
	if err != nil {
		w.logger.Error("decision failed, allowing",
			zap.String("app", string(id)),
			zap.Error(err))
		return
	}

	if verdict.Decision.Allowed {
		if err := w.overlay.Dismiss(); err != nil {
			w.logger.Warn("failed to dismiss overlay", zap.Error(err))
		}
		return
	}

	w.logger.Info("blocking foreground app",
		zap.String("app", string(id)),
		zap.String("reason", string(verdict.Decision.Reason)),
		zap.String("source", string(verdict.Source)))

	if err := w.overlay.Present(id, verdict.Decision); err != nil {
		w.logger.Error("failed to present overlay",
			zap.String("app", string(id)),
			zap.Error(err))
	}
}

// tickPause recomputes the persisted pause deadline and applies expiry.
func (w *Watcher) tickPause(now time.Time) {
	resumed, err := w.facade.TickPause(now)
	if err != nil {
		w.logger.Warn("pause tick failed", zap.Error(err))
		return
	}
	if resumed {
		w.logger.Info("pause budget expired, session auto-resumed")
	}
}
