// Package policy implements the pure access-control evaluator and the
// category heuristics feeding it.
package policy

import (
	"time"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

// Input is a snapshot of everything a single evaluation depends on.
// The evaluator never reads state beyond it, so identical inputs always
// yield the same decision.
type Input struct {
	AppID      domain.AppID
	Category   *domain.Category // nil when the app is not yet classified
	Rules      []domain.Rule    // already resolved, app-over-category
	TodayUsage time.Duration
	Mode       domain.AppMode
	Now        time.Time
}

// Evaluate combines category, applicable rules, today's usage and the
// global mode into an allow/block decision. First match wins:
//
//  1. Emergency mode always allows (the escape hatch is never rule-blockable).
//  2. StrictBlock rule, or mode escalation of the category, blocks strict.
//  3. A ScheduledBlock window containing now blocks.
//  4. A met-or-exceeded DailyLimit blocks.
//  5. Otherwise allowed.
//
// Unclassified apps evaluate like CategoryOther: fail-open unless a rule
// says otherwise.
func Evaluate(in Input) domain.Decision {
	if in.Mode == domain.ModeEmergency {
		return domain.Allow()
	}

	if hasStrict(in.Rules) || escalatesToStrict(in.Mode, in.Category) {
		return domain.Block(domain.ReasonStrict)
	}

	for _, r := range in.Rules {
		if sb, ok := r.(domain.ScheduledBlock); ok && sb.Contains(in.Now) {
			return domain.Block(domain.ReasonScheduled)
		}
	}

	for _, r := range in.Rules {
		if dl, ok := r.(domain.DailyLimit); ok && in.TodayUsage >= dl.Limit() {
			return domain.Block(domain.ReasonDailyLimitExceeded)
		}
	}

	return domain.Allow()
}

func hasStrict(rules []domain.Rule) bool {
	for _, r := range rules {
		if r.Kind() == domain.RuleStrictBlock {
			return true
		}
	}
	return false
}

// escalatesToStrict applies the mode's tightening of category defaults.
// Productivity and Driving escalate non-whitelisted Distracting apps to a
// strict block regardless of stored rules.
func escalatesToStrict(mode domain.AppMode, cat *domain.Category) bool {
	if cat == nil || cat.Whitelisted {
		return false
	}
	if cat.Kind != domain.CategoryDistracting {
		return false
	}
	return mode == domain.ModeProductivity || mode == domain.ModeDriving
}

// ResolveRules unions app-specific and category-wide rules, letting an
// app-specific rule override a category rule of the same kind. Rules of
// different kinds are cumulative.
func ResolveRules(appRules, categoryRules []domain.Rule) []domain.Rule {
	seen := make(map[domain.RuleKind]bool, len(appRules))
	resolved := make([]domain.Rule, 0, len(appRules)+len(categoryRules))

	for _, r := range appRules {
		if seen[r.Kind()] {
			continue
		}
		seen[r.Kind()] = true
		resolved = append(resolved, r)
	}
	for _, r := range categoryRules {
		if seen[r.Kind()] {
			continue
		}
		seen[r.Kind()] = true
		resolved = append(resolved, r)
	}
	return resolved
}
