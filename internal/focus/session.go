// Package focus implements the focus session state machine: an exclusive
// allow-list-only mode exited through a deliberate unlock ritual.
package focus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

const (
	// PauseAllowance is the total pause budget per session. It is not
	// replenished until a new session starts.
	PauseAllowance = 2 * time.Minute

	// PauseCooldown is the minimum gap between pause starts. Not
	// resettable or extendable by any action.
	PauseCooldown = 15 * time.Minute
)

// Manager is the writer for the focus session record. All mutations go
// through its transition functions; the two enforcement drivers and the
// settings surface share one Manager, serialized by its mutex. Every
// transition commits to the store before the new state is observable,
// so a restart resumes from the last fully committed state.
//
// The CLI runs in its own process with its own Manager over the same
// store, so the daemon resyncs from the committed record on every pause
// tick: a transition committed elsewhere is enforced within one tick.
type Manager struct {
	mu       sync.Mutex
	store    domain.FocusStore
	audit    domain.AuditLog
	logger   *zap.Logger
	session  domain.FocusSession
	phraseFn func() string
}

// NewManager loads the committed session, or starts from Inactive when
// nothing was ever committed. An unreadable record is surfaced, never
// papered over with a fabricated Active session.
func NewManager(store domain.FocusStore, audit domain.AuditLog, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		store:    store,
		audit:    audit,
		logger:   logger,
		phraseFn: GeneratePhrase,
	}

	committed, err := store.LoadSession()
	if err != nil {
		return nil, err
	}
	if committed == nil {
		m.session = domain.FocusSession{State: domain.FocusInactive}
	} else {
		m.session = *committed
	}
	if m.session.AllowList == nil {
		m.session.AllowList = make(map[domain.AppID]bool)
	}
	return m, nil
}

// State returns the current machine state.
func (m *Manager) State() domain.FocusState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State
}

// Snapshot returns a copy of the session record for read-only display.
func (m *Manager) Snapshot() domain.FocusSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copySession()
}

func (m *Manager) copySession() domain.FocusSession {
	snap := m.session
	snap.AllowList = make(map[domain.AppID]bool, len(m.session.AllowList))
	for id := range m.session.AllowList {
		snap.AllowList[id] = true
	}
	return snap
}

// commit persists next and only then swaps it in. A failed write leaves
// the in-memory state at the last committed value and surfaces the error.
func (m *Manager) commit(next domain.FocusSession, transition string) error {
	if err := m.store.SaveSession(&next); err != nil {
		return err
	}
	from := m.session.State
	m.session = next

	m.logger.Info("focus transition",
		zap.String("transition", transition),
		zap.String("from", string(from)),
		zap.String("to", string(next.State)))

	if m.audit != nil {
		entry := domain.AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Allowed:   true,
			Source:    domain.SourceTransition,
			Detail:    transition + ": " + string(from) + " -> " + string(next.State),
		}
		if err := m.audit.Append(entry); err != nil {
			m.logger.Warn("failed to append audit entry", zap.Error(err))
		}
	}
	return nil
}

// Start begins a new session: only from Inactive. A fresh unlock phrase
// is generated and the pause budget is reset to the full allowance.
func (m *Manager) Start(lockType domain.LockType, allowList []domain.AppID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != domain.FocusInactive {
		return &InvalidTransitionError{Op: "start", From: m.session.State}
	}
	if lockType == domain.LockCustomPassword && m.session.CustomPassword == "" {
		return ErrPasswordRequired
	}

	next := m.copySession()
	next.SessionID = uuid.NewString()
	next.State = domain.FocusActive
	next.LockType = lockType
	next.SessionPhrase = m.phraseFn()
	next.PauseBudgetRemaining = PauseAllowance
	next.LastPauseStartedAt = time.Time{}
	next.PreviousState = ""
	next.StartedAt = now
	if allowList != nil {
		next.AllowList = make(map[domain.AppID]bool, len(allowList))
		for _, id := range allowList {
			next.AllowList[id] = true
		}
	}

	return m.commit(next, "start")
}

// SetPassword stores the custom unlock password. Only permitted between
// sessions so the lock cannot be weakened while it is holding the door.
func (m *Manager) SetPassword(password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != domain.FocusInactive {
		return &InvalidTransitionError{Op: "set password", From: m.session.State}
	}
	next := m.copySession()
	next.CustomPassword = password
	return m.commit(next, "set_password")
}

// SetAllowList replaces the curated allow-list. Only permitted between
// sessions.
func (m *Manager) SetAllowList(ids []domain.AppID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != domain.FocusInactive {
		return &InvalidTransitionError{Op: "edit allow-list", From: m.session.State}
	}
	next := m.copySession()
	next.AllowList = make(map[domain.AppID]bool, len(ids))
	for _, id := range ids {
		next.AllowList[id] = true
	}
	return m.commit(next, "set_allow_list")
}

// RequestPause moves Active -> Paused if the cooldown has elapsed and
// budget remains. Returns the deadline at which the pause auto-resumes.
// A refused request is a no-op carrying the remaining cooldown.
func (m *Manager) RequestPause(now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != domain.FocusActive {
		return time.Time{}, &InvalidTransitionError{Op: "pause", From: m.session.State}
	}
	if !m.session.LastPauseStartedAt.IsZero() {
		elapsed := now.Sub(m.session.LastPauseStartedAt)
		if elapsed < PauseCooldown {
			return time.Time{}, &PauseDeniedError{CooldownRemaining: PauseCooldown - elapsed}
		}
	}
	if m.session.PauseBudgetRemaining <= 0 {
		return time.Time{}, &PauseDeniedError{BudgetExhausted: true}
	}

	next := m.copySession()
	next.State = domain.FocusPaused
	next.LastPauseStartedAt = now
	if err := m.commit(next, "pause"); err != nil {
		return time.Time{}, err
	}
	return now.Add(m.session.PauseBudgetRemaining), nil
}

// ResumePause is the user-triggered early resume. The budget shrinks by
// however much of the pause was actually consumed.
func (m *Manager) ResumePause(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != domain.FocusPaused {
		return &InvalidTransitionError{Op: "resume", From: m.session.State}
	}

	next := m.copySession()
	next.PauseBudgetRemaining -= m.pauseConsumed(now)
	next.State = domain.FocusActive
	return m.commit(next, "resume")
}

// TickPause applies the countdown expiry: Paused auto-resumes to Active
// once the persisted deadline passes, with the expended budget committed
// so a crash mid-pause never grants a fresh allowance. It reloads the
// committed record first, picking up transitions another process made
// through the shared store, and the expiry itself then operates on the
// fresh state. Safe to call from any driver on any schedule; reports
// whether an auto-resume happened.
func (m *Manager) TickPause(now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.reload(); err != nil {
		return false, err
	}
	if m.session.State != domain.FocusPaused {
		return false, nil
	}
	deadline := m.session.LastPauseStartedAt.Add(m.session.PauseBudgetRemaining)
	if now.Before(deadline) {
		return false, nil
	}

	next := m.copySession()
	next.PauseBudgetRemaining = 0
	next.State = domain.FocusActive
	if err := m.commit(next, "pause_expired"); err != nil {
		return false, err
	}
	return true, nil
}

// reload replaces the in-memory copy with the committed record. Commits
// write the store before memory, so the store is never behind this
// Manager; a newer record can only come from another process.
func (m *Manager) reload() error {
	committed, err := m.store.LoadSession()
	if err != nil {
		return err
	}
	if committed == nil {
		return nil
	}
	m.session = *committed
	if m.session.AllowList == nil {
		m.session.AllowList = make(map[domain.AppID]bool)
	}
	return nil
}

// pauseConsumed clamps the wall-clock pause duration to [0, budget].
func (m *Manager) pauseConsumed(now time.Time) time.Duration {
	consumed := now.Sub(m.session.LastPauseStartedAt)
	if consumed < 0 {
		consumed = 0
	}
	if consumed > m.session.PauseBudgetRemaining {
		consumed = m.session.PauseBudgetRemaining
	}
	return consumed
}

// RequestUnlock enters UnlockPending from Active or Paused, remembering
// the prior state for CancelUnlock.
func (m *Manager) RequestUnlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != domain.FocusActive && m.session.State != domain.FocusPaused {
		return &InvalidTransitionError{Op: "request unlock", From: m.session.State}
	}

	next := m.copySession()
	next.PreviousState = m.session.State
	next.State = domain.FocusUnlockPending
	return m.commit(next, "request_unlock")
}

// CancelUnlock restores the state the unlock attempt came from. A
// corrupt or missing previous state falls back to Active - never to
// Inactive, which would be a silent unlock.
func (m *Manager) CancelUnlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != domain.FocusUnlockPending {
		return &InvalidTransitionError{Op: "cancel unlock", From: m.session.State}
	}

	prev := m.session.PreviousState
	if prev != domain.FocusActive && prev != domain.FocusPaused {
		prev = domain.FocusActive
	}

	next := m.copySession()
	next.State = prev
	next.PreviousState = ""
	return m.commit(next, "cancel_unlock")
}

// ConfirmUnlock validates input against the session phrase or the custom
// password (exact, case-sensitive). Success ends the session and
// invalidates the phrase; failure stays in UnlockPending.
func (m *Manager) ConfirmUnlock(input string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != domain.FocusUnlockPending {
		return &InvalidTransitionError{Op: "confirm unlock", From: m.session.State}
	}

	expected := m.session.SessionPhrase
	if m.session.LockType == domain.LockCustomPassword {
		expected = m.session.CustomPassword
	}
	if expected == "" || input != expected {
		return ErrIncorrectCredential
	}

	next := m.copySession()
	next.State = domain.FocusInactive
	next.SessionPhrase = ""
	next.PreviousState = ""
	next.LastPauseStartedAt = time.Time{}
	return m.commit(next, "confirm_unlock")
}

// CheckAccess answers whether an app is reachable under the current
// focus state, or defers to the policy evaluator when no session is
// running. While Active or Paused only the allow-list governs; while
// UnlockPending the overlay is the only reachable surface. The caller
// supplies the always-reachable essential set (home surface, dialer,
// settings) that prevents total device lockout.
func (m *Manager) CheckAccess(id domain.AppID, essential map[domain.AppID]bool) (decision domain.Decision, governed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.session.State {
	case domain.FocusActive, domain.FocusPaused:
		if essential[id] || m.session.InAllowList(id) {
			return domain.Allow(), true
		}
		return domain.Block(domain.ReasonFocusSession), true

	case domain.FocusUnlockPending:
		// Only the enforcement surface itself is reachable here, and
		// the caller allows that before consulting us.
		return domain.Block(domain.ReasonUnlockPending), true
	}

	return domain.Decision{}, false
}
