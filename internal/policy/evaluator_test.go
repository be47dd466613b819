package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

// monday noon, local time. 2024-01-01 was a Monday.
func at(t *testing.T, day, hour, minute int) time.Time {
	t.Helper()
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.Local)
}

func distracting(whitelisted bool) *domain.Category {
	return &domain.Category{
		AppID:       "com.example.social",
		Kind:        domain.CategoryDistracting,
		Whitelisted: whitelisted,
	}
}

func TestEvaluate(t *testing.T) {
	nightly := domain.ScheduledBlock{
		Start: domain.TimeOfDay{Hour: 22},
		End:   domain.TimeOfDay{Hour: 6},
		Days:  domain.Weekdays(time.Monday),
	}

	tests := []struct {
		name        string
		in          Input
		wantAllowed bool
		wantReason  domain.BlockReason
	}{
		{
			name:        "no category no rules allows",
			in:          Input{AppID: "com.example.unknown", Mode: domain.ModeNormal, Now: at(t, 1, 12, 0)},
			wantAllowed: true,
		},
		{
			name: "strict rule blocks",
			in: Input{
				Rules: []domain.Rule{domain.StrictBlock{}},
				Mode:  domain.ModeNormal,
				Now:   at(t, 1, 12, 0),
			},
			wantReason: domain.ReasonStrict,
		},
		{
			name: "emergency mode overrides strict rule",
			in: Input{
				Rules: []domain.Rule{domain.StrictBlock{}},
				Mode:  domain.ModeEmergency,
				Now:   at(t, 1, 12, 0),
			},
			wantAllowed: true,
		},
		{
			name: "productivity escalates distracting to strict",
			in: Input{
				Category: distracting(false),
				Mode:     domain.ModeProductivity,
				Now:      at(t, 1, 12, 0),
			},
			wantReason: domain.ReasonStrict,
		},
		{
			name: "driving escalates distracting to strict",
			in: Input{
				Category: distracting(false),
				Mode:     domain.ModeDriving,
				Now:      at(t, 1, 12, 0),
			},
			wantReason: domain.ReasonStrict,
		},
		{
			name: "whitelist exempts from mode escalation",
			in: Input{
				Category: distracting(true),
				Mode:     domain.ModeProductivity,
				Now:      at(t, 1, 12, 0),
			},
			wantAllowed: true,
		},
		{
			name: "normal mode leaves distracting alone",
			in: Input{
				Category: distracting(false),
				Mode:     domain.ModeNormal,
				Now:      at(t, 1, 12, 0),
			},
			wantAllowed: true,
		},
		{
			name: "schedule blocks inside window",
			in: Input{
				Rules: []domain.Rule{nightly},
				Mode:  domain.ModeNormal,
				Now:   at(t, 1, 23, 0),
			},
			wantReason: domain.ReasonScheduled,
		},
		{
			name: "wrapped schedule blocks past midnight",
			in: Input{
				Rules: []domain.Rule{nightly},
				Mode:  domain.ModeNormal,
				Now:   at(t, 2, 5, 0),
			},
			wantReason: domain.ReasonScheduled,
		},
		{
			name: "schedule allows outside window",
			in: Input{
				Rules: []domain.Rule{nightly},
				Mode:  domain.ModeNormal,
				Now:   at(t, 1, 12, 0),
			},
			wantAllowed: true,
		},
		{
			name: "daily limit allows just under",
			in: Input{
				Rules:      []domain.Rule{domain.DailyLimit{Minutes: 25}},
				TodayUsage: 24*time.Minute + 59*time.Second,
				Mode:       domain.ModeNormal,
				Now:        at(t, 1, 12, 0),
			},
			wantAllowed: true,
		},
		{
			name: "daily limit blocks at the limit",
			in: Input{
				Rules:      []domain.Rule{domain.DailyLimit{Minutes: 25}},
				TodayUsage: 25 * time.Minute,
				Mode:       domain.ModeNormal,
				Now:        at(t, 1, 12, 0),
			},
			wantReason: domain.ReasonDailyLimitExceeded,
		},
		{
			name: "strict wins over schedule and limit",
			in: Input{
				Rules: []domain.Rule{
					domain.DailyLimit{Minutes: 1},
					nightly,
					domain.StrictBlock{},
				},
				TodayUsage: time.Hour,
				Mode:       domain.ModeNormal,
				Now:        at(t, 1, 23, 0),
			},
			wantReason: domain.ReasonStrict,
		},
		{
			name: "schedule wins over exceeded limit",
			in: Input{
				Rules: []domain.Rule{
					domain.DailyLimit{Minutes: 1},
					nightly,
				},
				TodayUsage: time.Hour,
				Mode:       domain.ModeNormal,
				Now:        at(t, 1, 23, 0),
			},
			wantReason: domain.ReasonScheduled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.in)
			assert.Equal(t, tt.wantAllowed, got.Allowed)
			if !tt.wantAllowed {
				assert.Equal(t, tt.wantReason, got.Reason)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	in := Input{
		AppID:      "com.example.social",
		Category:   distracting(false),
		Rules:      []domain.Rule{domain.DailyLimit{Minutes: 30}},
		TodayUsage: 10 * time.Minute,
		Mode:       domain.ModeNormal,
		Now:        at(t, 1, 12, 0),
	}

	first := Evaluate(in)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Evaluate(in))
	}
}

func TestResolveRules(t *testing.T) {
	appLimit := domain.DailyLimit{Minutes: 10}
	catLimit := domain.DailyLimit{Minutes: 30}
	catStrict := domain.StrictBlock{}

	t.Run("app rule overrides category rule of same kind", func(t *testing.T) {
		got := ResolveRules(
			[]domain.Rule{appLimit},
			[]domain.Rule{catLimit, catStrict},
		)
		assert.Equal(t, []domain.Rule{appLimit, catStrict}, got)
	})

	t.Run("different kinds are cumulative", func(t *testing.T) {
		got := ResolveRules([]domain.Rule{appLimit}, []domain.Rule{catStrict})
		assert.Len(t, got, 2)
	})

	t.Run("empty inputs resolve to no rules", func(t *testing.T) {
		assert.Empty(t, ResolveRules(nil, nil))
	})
}

func TestAppLimitOverridesCategoryLimit(t *testing.T) {
	// App-specific 10 minute limit beats the category's 30 minutes: the
	// app blocks at 15 minutes of use even though the category would not.
	rules := ResolveRules(
		[]domain.Rule{domain.DailyLimit{Minutes: 10}},
		[]domain.Rule{domain.DailyLimit{Minutes: 30}},
	)

	got := Evaluate(Input{
		Rules:      rules,
		TodayUsage: 15 * time.Minute,
		Mode:       domain.ModeNormal,
		Now:        at(t, 1, 12, 0),
	})
	assert.False(t, got.Allowed)
	assert.Equal(t, domain.ReasonDailyLimitExceeded, got.Reason)
}
