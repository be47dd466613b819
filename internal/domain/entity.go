// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"time"
)

// AppID is the opaque application identifier reported by the launcher
// surface (a package name on-device, a process name on desktop).
type AppID string

// CategoryKind is the coarse bucket used for default, bulk policy
// before per-app overrides.
type CategoryKind string

const (
	CategoryEssential   CategoryKind = "essential"
	CategoryProductive  CategoryKind = "productive"
	CategorySystem      CategoryKind = "system"
	CategoryDistracting CategoryKind = "distracting"
	CategoryOther       CategoryKind = "other"
)

// ParseCategoryKind validates a user-supplied category string.
func ParseCategoryKind(s string) (CategoryKind, error) {
	switch CategoryKind(s) {
	case CategoryEssential, CategoryProductive, CategorySystem, CategoryDistracting, CategoryOther:
		return CategoryKind(s), nil
	}
	return "", fmt.Errorf("unknown category: %q", s)
}

// Category is the per-app classification record. ManualOverride is set
// once the user changes the auto-assigned kind; the classifier must
// never overwrite it afterwards.
type Category struct {
	AppID          AppID
	Kind           CategoryKind
	Whitelisted    bool
	ManualOverride bool
}

// AppMode is the process-wide global mode selected by the user.
// Exactly one value at a time; a change takes effect on the next
// evaluation, never retroactively.
type AppMode string

const (
	ModeNormal       AppMode = "normal"
	ModeBored        AppMode = "bored"
	ModeProductivity AppMode = "productivity"
	ModeDriving      AppMode = "driving"
	ModeEmergency    AppMode = "emergency"
)

// ParseAppMode validates a user-supplied mode string.
func ParseAppMode(s string) (AppMode, error) {
	switch AppMode(s) {
	case ModeNormal, ModeBored, ModeProductivity, ModeDriving, ModeEmergency:
		return AppMode(s), nil
	}
	return "", fmt.Errorf("unknown app mode: %q", s)
}

// RuleKind tags the rule variants.
type RuleKind string

const (
	RuleStrictBlock    RuleKind = "strict_block"
	RuleDailyLimit     RuleKind = "daily_limit"
	RuleScheduledBlock RuleKind = "scheduled_block"
)

// Rule is the closed set of typed constraints attachable to an app or a
// category. At most one rule of each kind may exist per target; inserting
// a new rule of the same kind replaces the old one.
type Rule interface {
	Kind() RuleKind
}

// StrictBlock always blocks, no parameters.
type StrictBlock struct{}

func (StrictBlock) Kind() RuleKind { return RuleStrictBlock }

// DailyLimit blocks once today's accumulated foreground duration for the
// target meets or exceeds Minutes.
type DailyLimit struct {
	Minutes uint32
}

func (DailyLimit) Kind() RuleKind { return RuleDailyLimit }

// Limit returns the limit as a duration.
func (d DailyLimit) Limit() time.Duration {
	return time.Duration(d.Minutes) * time.Minute
}

// TimeOfDay is a wall-clock time without a date, minute granularity.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// MinuteOfDay returns minutes since midnight.
func (t TimeOfDay) MinuteOfDay() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day out of range: %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// WeekdaySet is a bitmask of weekdays, bit N = time.Weekday(N).
type WeekdaySet uint8

// Weekdays builds a set from individual weekdays.
func Weekdays(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// Has reports whether the set contains d.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// ScheduledBlock blocks while the wall clock falls within [Start, End)
// on one of Days. Start > End denotes a window wrapping past midnight;
// Days refers to the day the window starts.
type ScheduledBlock struct {
	Start TimeOfDay
	End   TimeOfDay
	Days  WeekdaySet
}

func (ScheduledBlock) Kind() RuleKind { return RuleScheduledBlock }

// Contains reports whether now falls inside the blocking window.
func (s ScheduledBlock) Contains(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	start, end := s.Start.MinuteOfDay(), s.End.MinuteOfDay()

	if start <= end {
		return s.Days.Has(now.Weekday()) && minute >= start && minute < end
	}

	// Wrapped window: the tail before End belongs to the previous
	// day's window, so test yesterday's weekday for it.
	if minute >= start {
		return s.Days.Has(now.Weekday())
	}
	if minute < end {
		yesterday := (now.Weekday() + 6) % 7
		return s.Days.Has(yesterday)
	}
	return false
}

// TargetType distinguishes what a rule is attached to.
type TargetType string

const (
	TargetApp      TargetType = "app"
	TargetCategory TargetType = "category"
)

// RuleTarget identifies the app or category a rule is attached to.
type RuleTarget struct {
	Type     TargetType
	AppID    AppID
	Category CategoryKind
}

// AppTarget builds a target for a specific app.
func AppTarget(id AppID) RuleTarget {
	return RuleTarget{Type: TargetApp, AppID: id}
}

// CategoryTarget builds a target for every app in a category.
func CategoryTarget(kind CategoryKind) RuleTarget {
	return RuleTarget{Type: TargetCategory, Category: kind}
}

// Key returns a stable storage key for the target.
func (t RuleTarget) Key() string {
	if t.Type == TargetApp {
		return "app:" + string(t.AppID)
	}
	return "category:" + string(t.Category)
}

// StoredRule pairs a rule with its target, for listing.
type StoredRule struct {
	Target RuleTarget
	Rule   Rule
}

// BlockReason explains why access was denied.
type BlockReason string

const (
	ReasonStrict             BlockReason = "strict"
	ReasonScheduled          BlockReason = "scheduled"
	ReasonDailyLimitExceeded BlockReason = "daily_limit_exceeded"
	ReasonFocusSession       BlockReason = "focus_session"
	ReasonUnlockPending      BlockReason = "unlock_pending"
)

// Decision is the evaluator's output: allowed, or blocked with a reason.
type Decision struct {
	Allowed bool
	Reason  BlockReason
}

// Allow is the allowed decision.
func Allow() Decision { return Decision{Allowed: true} }

// Block builds a blocked decision with the given reason.
func Block(reason BlockReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// DecisionSource records which surface produced an audit entry.
type DecisionSource string

const (
	SourcePolicy     DecisionSource = "policy"
	SourceFocus      DecisionSource = "focus"
	SourceTransition DecisionSource = "transition"
)

// AuditEntry is one append-only record of a decision or state transition,
// consumed by the dashboard.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	AppID     AppID
	Allowed   bool
	Reason    BlockReason
	Source    DecisionSource
	Detail    string
}

// Verdict is the decision surface's answer for one foreground app.
type Verdict struct {
	AppID    AppID
	Decision Decision
	Source   DecisionSource
}

// FocusState enumerates the focus session state machine states.
type FocusState string

const (
	FocusInactive      FocusState = "inactive"
	FocusActive        FocusState = "active"
	FocusPaused        FocusState = "paused"
	FocusUnlockPending FocusState = "unlock_pending"
)

// LockType selects the unlock ritual for a focus session.
type LockType string

const (
	LockRandomPhrase   LockType = "random_phrase"
	LockCustomPassword LockType = "custom_password"
)

// FocusSession is the single persisted record backing the focus state
// machine. It is mutated only through the machine's transition functions.
type FocusSession struct {
	SessionID string
	State     FocusState
	AllowList map[AppID]bool
	LockType  LockType

	// CustomPassword persists across sessions; SessionPhrase is
	// regenerated each time a new session starts.
	CustomPassword string
	SessionPhrase  string

	// Pause bookkeeping. The countdown is a persisted timestamp plus
	// remaining budget, recomputed from wall-clock delta, never a live
	// in-memory timer.
	PauseBudgetRemaining time.Duration
	LastPauseStartedAt   time.Time

	// PreviousState remembers where an unlock attempt came from so
	// cancelling restores it.
	PreviousState FocusState

	StartedAt time.Time
}

// InAllowList reports allow-list membership. Value receiver so it can
// be called directly on session snapshots.
func (s FocusSession) InAllowList(id AppID) bool {
	return s.AllowList[id]
}

// ForegroundEvent is one foreground-app-change notification.
type ForegroundEvent struct {
	AppID AppID
	At    time.Time
}

// DayKey returns the local calendar-day bucket for usage accounting,
// recomputed from now at every call so a day boundary is never cached.
func DayKey(now time.Time) string {
	return now.Local().Format("2006-01-02")
}
