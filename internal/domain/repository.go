package domain

import "time"

// RuleStore persists the (target, rule-kind) -> rule mapping.
// PutRule replaces any existing rule of the same kind for the target.
type RuleStore interface {
	// PutRule inserts or replaces the rule for (target, rule.Kind()).
	PutRule(target RuleTarget, rule Rule) error

	// RemoveRule deletes the rule of the given kind for the target.
	// Removing a rule that does not exist is not an error.
	RemoveRule(target RuleTarget, kind RuleKind) error

	// RulesForApp returns the rules attached directly to the app.
	RulesForApp(id AppID) ([]Rule, error)

	// RulesForCategory returns the rules attached to the category.
	RulesForCategory(kind CategoryKind) ([]Rule, error)

	// AllRules returns every stored rule (for the settings surface).
	AllRules() ([]StoredRule, error)
}

// CategoryStore persists per-app classification records.
type CategoryStore interface {
	// Category returns the record for an app, or nil if unclassified.
	Category(id AppID) (*Category, error)

	// Assign writes a classifier-produced category. It must not touch
	// an existing record whose ManualOverride flag is set.
	Assign(cat Category) error

	// Override sets the kind by user action and marks ManualOverride.
	Override(id AppID, kind CategoryKind) error

	// SetWhitelisted flips the whitelist flag.
	SetWhitelisted(id AppID, whitelisted bool) error

	// AllCategories returns every classification record.
	AllCategories() ([]Category, error)
}

// UsageStore accumulates per-app, per-calendar-day foreground duration.
// Append-only by deltas; the day bucket is the device's local day.
type UsageStore interface {
	// AddUsage credits delta to (id, day).
	AddUsage(id AppID, day string, delta time.Duration) error

	// UsageFor returns the accumulated duration for (id, day).
	UsageFor(id AppID, day string) (time.Duration, error)
}

// FocusStore persists the single focus session record. SaveSession must
// commit before the new state is observable anywhere, so a restart
// resumes from the last fully committed state.
type FocusStore interface {
	// LoadSession returns the committed session, or nil if none was
	// ever saved.
	LoadSession() (*FocusSession, error)

	// SaveSession commits the session record.
	SaveSession(s *FocusSession) error
}

// SettingsStore persists device-wide settings consumed at evaluation time.
type SettingsStore interface {
	// Mode returns the current app mode (ModeNormal when unset).
	Mode() (AppMode, error)

	// SetMode stores the app mode.
	SetMode(mode AppMode) error
}

// AuditLog is the append-only record of decisions and transitions.
type AuditLog interface {
	// Append writes one entry.
	Append(e AuditEntry) error

	// Recent returns up to limit entries, newest first.
	Recent(limit int) ([]AuditEntry, error)
}

// PolicyFacade is the single decision surface both enforcement drivers
// invoke, so they cannot disagree. One implementation exists; the
// drivers are scheduler adapters around it.
type PolicyFacade interface {
	// CheckForeground decides whether the foregrounded app may stay.
	CheckForeground(id AppID, now time.Time) (Verdict, error)

	// RecordUsage credits foreground time to today's bucket.
	RecordUsage(id AppID, delta time.Duration, now time.Time) error

	// TickPause applies the focus pause-countdown expiry; reports
	// whether an auto-resume happened.
	TickPause(now time.Time) (bool, error)
}

// ForegroundMonitor yields foreground-app identity, both as a push
// stream (best-effort) and as a pull query for the fallback poller.
type ForegroundMonitor interface {
	// Events returns the foreground-change stream.
	Events() <-chan ForegroundEvent

	// Foreground returns the app in the foreground right now.
	Foreground() (AppID, error)
}

// OverlayPresenter is the blocking surface invoked by the enforcement
// drivers. Implementations only render; user choices come back through
// the focus transition functions.
type OverlayPresenter interface {
	// Present shows the full-screen block for the app. Presenting again
	// for the same still-foregrounded app must not stack overlays.
	Present(id AppID, d Decision) error

	// Dismiss hides the overlay if shown.
	Dismiss() error
}

// KeyProvider yields the storage encryption key, provisioning one on
// first use.
type KeyProvider interface {
	// Key returns the key, creating and persisting a fresh one when
	// none exists yet.
	Key() ([]byte, error)
}
