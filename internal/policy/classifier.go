package policy

import (
	"strings"

	"go.uber.org/zap"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

// categoryPatterns maps app-identifier substrings to a category. Checked
// in the order below; first hit wins. The table is a heuristic first
// guess only - the user can override any assignment, and an override is
// never overwritten on a later scan.
var categoryPatterns = []struct {
	kind     domain.CategoryKind
	patterns []string
}{
	{domain.CategoryEssential, []string{
		"dialer", "phone", "contacts", "messag", "sms",
		"clock", "alarm", "camera", "maps",
	}},
	{domain.CategoryDistracting, []string{
		"instagram", "tiktok", "youtube", "facebook", "twitter",
		"snapchat", "reddit", "netflix", "twitch", "discord",
		"game", "play.games",
	}},
	{domain.CategoryProductive, []string{
		"mail", "calendar", "docs", "drive", "notion",
		"slack", "office", "keep", "tasks", "notes",
	}},
	{domain.CategorySystem, []string{
		"com.android.", "android.", "settings", "systemui",
		"launcher", "packageinstaller",
	}},
}

// HeuristicKind assigns a category from app-identifier patterns alone.
func HeuristicKind(id domain.AppID) domain.CategoryKind {
	lower := strings.ToLower(string(id))
	for _, group := range categoryPatterns {
		for _, p := range group.patterns {
			if strings.Contains(lower, p) {
				return group.kind
			}
		}
	}
	return domain.CategoryOther
}

// Classifier runs the one-time heuristic pass over installed apps.
type Classifier struct {
	categories domain.CategoryStore
	logger     *zap.Logger
}

// NewClassifier creates a classifier over the given category store.
func NewClassifier(categories domain.CategoryStore, logger *zap.Logger) *Classifier {
	return &Classifier{categories: categories, logger: logger}
}

// ClassifyAll assigns a category to every app that has none yet. Apps
// with a manual override are left untouched. Returns how many records
// were written.
func (c *Classifier) ClassifyAll(ids []domain.AppID) (int, error) {
	assigned := 0
	for _, id := range ids {
		existing, err := c.categories.Category(id)
		if err != nil {
			return assigned, err
		}
		if existing != nil && existing.ManualOverride {
			continue
		}

		kind := HeuristicKind(id)
		if existing != nil && existing.Kind == kind {
			continue
		}

		cat := domain.Category{AppID: id, Kind: kind}
		if existing != nil {
			cat.Whitelisted = existing.Whitelisted
		}
		if err := c.categories.Assign(cat); err != nil {
			return assigned, err
		}
		assigned++

		c.logger.Debug("classified app",
			zap.String("app", string(id)),
			zap.String("category", string(kind)))
	}
	return assigned, nil
}
