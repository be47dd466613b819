package infra

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

// LogOverlay implements domain.OverlayPresenter by logging what the
// rendering surface would show. Rendering itself is a collaborator
// outside this engine; this adapter keeps the driver path exercised and
// enforces the no-stacking contract.
type LogOverlay struct {
	mu      sync.Mutex
	visible bool
	current domain.AppID
	logger  *zap.Logger
}

// NewLogOverlay creates the logging overlay adapter.
func NewLogOverlay(logger *zap.Logger) *LogOverlay {
	return &LogOverlay{logger: logger}
}

// Present shows the block overlay. Presenting again for the same
// still-blocked app is a no-op, never a second overlay.
func (o *LogOverlay) Present(id domain.AppID, d domain.Decision) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.visible && o.current == id {
		return nil
	}
	o.visible = true
	o.current = id
	o.logger.Info("block overlay presented",
		zap.String("app", string(id)),
		zap.String("reason", string(d.Reason)))
	return nil
}

// Dismiss hides the overlay if shown.
func (o *LogOverlay) Dismiss() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.visible {
		return nil
	}
	o.visible = false
	o.current = ""
	o.logger.Info("block overlay dismissed")
	return nil
}

// Visible reports whether the overlay is currently shown (for status).
func (o *LogOverlay) Visible() (bool, domain.AppID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible, o.current
}

var _ domain.OverlayPresenter = (*LogOverlay)(nil)
