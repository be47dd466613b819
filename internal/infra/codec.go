package infra

import (
	"encoding/json"
	"fmt"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

// ruleCodecVersion is bumped whenever the payload layout changes; decode
// refuses versions it does not know instead of guessing.
const ruleCodecVersion = 1

// rulePayload is the storage-boundary form of a rule. In-memory rules
// stay native sum types; this shape exists only inside the store.
type rulePayload struct {
	Minutes uint32 `json:"minutes,omitempty"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Days    uint8  `json:"days,omitempty"`
}

func encodeRule(r domain.Rule) ([]byte, error) {
	var p rulePayload
	switch v := r.(type) {
	case domain.StrictBlock:
	case domain.DailyLimit:
		p.Minutes = v.Minutes
	case domain.ScheduledBlock:
		p.Start = v.Start.String()
		p.End = v.End.String()
		p.Days = uint8(v.Days)
	default:
		return nil, fmt.Errorf("unknown rule kind: %s", r.Kind())
	}
	return json.Marshal(p)
}

func decodeRule(kind domain.RuleKind, version int, data []byte) (domain.Rule, error) {
	if version != ruleCodecVersion {
		return nil, fmt.Errorf("unsupported rule payload version %d", version)
	}

	var p rulePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode rule payload: %w", err)
	}

	switch kind {
	case domain.RuleStrictBlock:
		return domain.StrictBlock{}, nil
	case domain.RuleDailyLimit:
		return domain.DailyLimit{Minutes: p.Minutes}, nil
	case domain.RuleScheduledBlock:
		start, err := domain.ParseTimeOfDay(p.Start)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseTimeOfDay(p.End)
		if err != nil {
			return nil, err
		}
		return domain.ScheduledBlock{Start: start, End: end, Days: domain.WeekdaySet(p.Days)}, nil
	}
	return nil, fmt.Errorf("unknown rule kind: %s", kind)
}

// focusCodecVersion versions the persisted focus session record.
const focusCodecVersion = 1

// focusRecord is the storage-boundary form of the focus session.
type focusRecord struct {
	SessionID          string   `json:"session_id"`
	State              string   `json:"state"`
	AllowList          []string `json:"allow_list"`
	LockType           string   `json:"lock_type"`
	CustomPassword     string   `json:"custom_password,omitempty"`
	SessionPhrase      string   `json:"session_phrase,omitempty"`
	PauseBudgetMs      int64    `json:"pause_budget_ms"`
	LastPauseStartedAt int64    `json:"last_pause_started_at,omitempty"`
	PreviousState      string   `json:"previous_state,omitempty"`
	StartedAt          int64    `json:"started_at,omitempty"`
}
