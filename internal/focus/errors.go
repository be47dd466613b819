package focus

import (
	"errors"
	"fmt"
	"time"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

// ErrPasswordRequired is returned when starting a password-locked session
// with no password set. No state change; the user supplies the missing
// input and retries.
var ErrPasswordRequired = errors.New("custom password lock requires a password to be set")

// ErrIncorrectCredential is returned by ConfirmUnlock on a mismatch. The
// session stays in UnlockPending.
var ErrIncorrectCredential = errors.New("incorrect unlock credential")

// InvalidTransitionError signals a transition called from a state that
// does not permit it. The call is a no-op; state is never corrupted.
type InvalidTransitionError struct {
	Op   string
	From domain.FocusState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("focus: cannot %s from state %s", e.Op, e.From)
}

// PauseDeniedError reports why a pause request was refused, with the
// remaining cooldown when that is the cause.
type PauseDeniedError struct {
	CooldownRemaining time.Duration
	BudgetExhausted   bool
}

func (e *PauseDeniedError) Error() string {
	if e.BudgetExhausted {
		return "focus: pause budget exhausted for this session"
	}
	return fmt.Sprintf("focus: pause cooldown active, %s remaining", e.CooldownRemaining.Round(time.Second))
}
