// Package usecase contains application business logic.
package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenlauncher/gatekeeper/internal/domain"
	"github.com/zenlauncher/gatekeeper/internal/focus"
	"github.com/zenlauncher/gatekeeper/internal/policy"
)

// Facade is the single decision surface shared by both enforcement
// drivers, so they can never disagree. A focus session, when one is
// running, bypasses the policy evaluator entirely; otherwise the
// evaluator combines rules, category, usage and mode.
type Facade struct {
	focus      *focus.Manager
	rules      domain.RuleStore
	categories domain.CategoryStore
	usage      domain.UsageStore
	settings   domain.SettingsStore
	audit      domain.AuditLog
	selfID     domain.AppID
	essential  map[domain.AppID]bool
	logger     *zap.Logger
}

// NewFacade wires the decision surface. essential is the small set of
// system identifiers (home surface, dialer, settings) that stay
// reachable during a focus session to prevent total device lockout.
func NewFacade(
	fm *focus.Manager,
	rules domain.RuleStore,
	categories domain.CategoryStore,
	usage domain.UsageStore,
	settings domain.SettingsStore,
	audit domain.AuditLog,
	selfID domain.AppID,
	essential []domain.AppID,
	logger *zap.Logger,
) *Facade {
	ess := make(map[domain.AppID]bool, len(essential))
	for _, id := range essential {
		ess[id] = true
	}
	return &Facade{
		focus:      fm,
		rules:      rules,
		categories: categories,
		usage:      usage,
		settings:   settings,
		audit:      audit,
		selfID:     selfID,
		essential:  ess,
		logger:     logger,
	}
}

// Focus exposes the session state machine for the settings surface.
func (f *Facade) Focus() *focus.Manager { return f.focus }

// CheckForeground decides whether the newly foregrounded app may stay.
// The enforcement app itself is always allowed to avoid deadlock.
func (f *Facade) CheckForeground(id domain.AppID, now time.Time) (domain.Verdict, error) {
	if id == f.selfID {
		return domain.Verdict{AppID: id, Decision: domain.Allow(), Source: domain.SourceFocus}, nil
	}

	if dec, governed := f.focus.CheckAccess(id, f.essential); governed {
		v := domain.Verdict{AppID: id, Decision: dec, Source: domain.SourceFocus}
		f.record(v, now)
		return v, nil
	}

	in, err := f.evaluatorInput(id, now)
	if err != nil {
		return domain.Verdict{}, err
	}

	v := domain.Verdict{AppID: id, Decision: policy.Evaluate(in), Source: domain.SourcePolicy}
	f.record(v, now)
	return v, nil
}

// evaluatorInput snapshots the state one evaluation depends on.
func (f *Facade) evaluatorInput(id domain.AppID, now time.Time) (policy.Input, error) {
	cat, err := f.categories.Category(id)
	if err != nil {
		return policy.Input{}, fmt.Errorf("read category for %s: %w", id, err)
	}
	if cat == nil {
		// Not yet classified: evaluated like a category with no rules,
		// so a freshly installed app is never locked out before the
		// classifier runs.
		f.logger.Debug("unclassified app, fail-open", zap.String("app", string(id)))
	}

	appRules, err := f.rules.RulesForApp(id)
	if err != nil {
		return policy.Input{}, fmt.Errorf("read app rules for %s: %w", id, err)
	}
	var catRules []domain.Rule
	if cat != nil {
		catRules, err = f.rules.RulesForCategory(cat.Kind)
		if err != nil {
			return policy.Input{}, fmt.Errorf("read category rules for %s: %w", cat.Kind, err)
		}
	}

	todayUsage, err := f.usage.UsageFor(id, domain.DayKey(now))
	if err != nil {
		return policy.Input{}, fmt.Errorf("read usage for %s: %w", id, err)
	}

	mode, err := f.settings.Mode()
	if err != nil {
		return policy.Input{}, fmt.Errorf("read app mode: %w", err)
	}

	return policy.Input{
		AppID:      id,
		Category:   cat,
		Rules:      policy.ResolveRules(appRules, catRules),
		TodayUsage: todayUsage,
		Mode:       mode,
		Now:        now,
	}, nil
}

// RecordUsage credits foreground time to today's bucket for the app.
func (f *Facade) RecordUsage(id domain.AppID, delta time.Duration, now time.Time) error {
	if delta <= 0 {
		return nil
	}
	return f.usage.AddUsage(id, domain.DayKey(now), delta)
}

// TickPause applies the focus pause-countdown expiry.
func (f *Facade) TickPause(now time.Time) (bool, error) {
	return f.focus.TickPause(now)
}

// record appends the decision to the audit log. Audit is observability,
// not enforcement: a failed append is logged and the decision stands.
func (f *Facade) record(v domain.Verdict, now time.Time) {
	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		AppID:     v.AppID,
		Allowed:   v.Decision.Allowed,
		Reason:    v.Decision.Reason,
		Source:    v.Source,
	}
	if err := f.audit.Append(entry); err != nil {
		f.logger.Warn("failed to append audit entry",
			zap.String("app", string(v.AppID)),
			zap.Error(err))
	}
}

var _ domain.PolicyFacade = (*Facade)(nil)
