// Package main is the CLI entry point for gatekeeper.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zenlauncher/gatekeeper/internal/config"
	"github.com/zenlauncher/gatekeeper/internal/daemon"
	"github.com/zenlauncher/gatekeeper/internal/domain"
	"github.com/zenlauncher/gatekeeper/internal/focus"
	"github.com/zenlauncher/gatekeeper/internal/infra"
	"github.com/zenlauncher/gatekeeper/internal/policy"
	"github.com/zenlauncher/gatekeeper/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.3.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	cfgFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Digital-discipline policy engine for the launcher",
	Long: `gatekeeper decides, for every app brought to the foreground, whether
access is allowed, time-limited, schedule-blocked, or requires a
deliberate unlock ritual. It also enforces Focus Mode: an exclusive
allow-list-only state exited through a friction-heavy unlock sequence.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enforcement watcher",
	Long: `Runs the enforcement watcher in the foreground. The watcher consumes
foreground-change events, polls as a fallback, presents the block
overlay for denied apps, accrues usage, and drives pause expiry.`,
	RunE: runWatcher,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current mode, focus state and rule count",
	RunE:  runStatus,
}

var modeCmd = &cobra.Command{
	Use:   "mode [normal|bored|productivity|driving|emergency]",
	Short: "Show or set the global app mode",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMode,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <app-id>...",
	Short: "Run the heuristic category pass over the given apps",
	Long: `Assigns a category (essential/productive/distracting/system/other) to
each app that has none yet. Manual overrides are never overwritten.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent policy decisions and state transitions",
	RunE:  runAudit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	auditLimit int

	ruleApp      string
	ruleCategory string
	ruleMinutes  uint32
	ruleStart    string
	ruleEnd      string
	ruleDays     string
	ruleKind     string

	categoryKind   string
	whitelistFlag  bool
	focusLock      string
	focusAllowApps []string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gatekeeper.yaml)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "How many entries to show")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(newRuleCmd())
	rootCmd.AddCommand(newCategoryCmd())
	rootCmd.AddCommand(newFocusCmd())
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

// openStore loads config, provisions the encryption key and opens the
// encrypted store. Caller closes.
func openStore() (*infra.Store, config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, config.Config{}, err
	}

	key, err := infra.NewKeyring(cfg.DataDir).Key()
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to provision store key: %w", err)
	}

	store, err := infra.NewStore(cfg.DataDir, key)
	if err != nil {
		return nil, config.Config{}, err
	}
	return store, cfg, nil
}

func createLogger(logPath string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if logPath != "" {
		cfg.OutputPaths = []string{logPath}
		cfg.ErrorOutputPaths = []string{logPath}
	}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runWatcher(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	logger := createLogger(cfg.LogPath)
	defer func() { _ = logger.Sync() }()

	focusManager, err := focus.NewManager(store, store, logger)
	if err != nil {
		return fmt.Errorf("failed to load focus session: %w", err)
	}

	essential := make([]domain.AppID, 0, len(cfg.EssentialApps))
	for _, id := range cfg.EssentialApps {
		essential = append(essential, domain.AppID(id))
	}

	facade := usecase.NewFacade(
		focusManager,
		store, store, store, store, store,
		domain.AppID(cfg.SelfAppID),
		essential,
		logger,
	)

	monitor := infra.NewChannelMonitor(64, true)
	overlay := infra.NewLogOverlay(logger)

	watcher := daemon.NewWatcher(
		daemon.WatcherConfig{
			PollInterval:      cfg.PollInterval,
			PauseTickInterval: cfg.PauseTickInterval,
		},
		facade,
		monitor,
		overlay,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	err = watcher.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mode, err := store.Mode()
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	focusManager, err := focus.NewManager(store, store, logger)
	if err != nil {
		return err
	}
	snap := focusManager.Snapshot()

	rules, err := store.AllRules()
	if err != nil {
		return err
	}

	fmt.Printf("Mode:        %s\n", mode)
	fmt.Printf("Focus state: %s\n", snap.State)
	if snap.State != domain.FocusInactive {
		fmt.Printf("  lock type:      %s\n", snap.LockType)
		fmt.Printf("  allow-list:     %d apps\n", len(snap.AllowList))
		fmt.Printf("  pause budget:   %s\n", snap.PauseBudgetRemaining)
	}
	fmt.Printf("Rules:       %d\n", len(rules))
	return nil
}

func runMode(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		mode, err := store.Mode()
		if err != nil {
			return err
		}
		fmt.Println(mode)
		return nil
	}

	mode, err := domain.ParseAppMode(args[0])
	if err != nil {
		return err
	}
	if err := store.SetMode(mode); err != nil {
		return fmt.Errorf("failed to store mode: %w", err)
	}
	fmt.Printf("Mode set to %s (takes effect on the next evaluation)\n", mode)
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	logger := createLogger("")
	defer func() { _ = logger.Sync() }()

	ids := make([]domain.AppID, 0, len(args))
	for _, a := range args {
		ids = append(ids, domain.AppID(a))
	}

	classifier := policy.NewClassifier(store, logger)
	assigned, err := classifier.ClassifyAll(ids)
	if err != nil {
		return err
	}
	fmt.Printf("Classified %d of %d apps\n", assigned, len(ids))
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(auditLimit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		verdict := "allowed"
		if !e.Allowed {
			verdict = "blocked(" + string(e.Reason) + ")"
		}
		detail := e.Detail
		if detail != "" {
			detail = " " + detail
		}
		fmt.Printf("%s  %-10s %-24s %s%s\n",
			e.Timestamp.Format(time.RFC3339), e.Source, e.AppID, verdict, detail)
	}
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		out, _ := json.Marshal(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		fmt.Println(string(out))
		return
	}
	fmt.Printf("gatekeeper %s (commit %s, built %s)\n", Version, Commit, BuildTime)
}

// parseTarget resolves the --app / --category flag pair into a target.
func parseTarget() (domain.RuleTarget, error) {
	if (ruleApp == "") == (ruleCategory == "") {
		return domain.RuleTarget{}, fmt.Errorf("exactly one of --app or --category is required")
	}
	if ruleApp != "" {
		return domain.AppTarget(domain.AppID(ruleApp)), nil
	}
	kind, err := domain.ParseCategoryKind(ruleCategory)
	if err != nil {
		return domain.RuleTarget{}, err
	}
	return domain.CategoryTarget(kind), nil
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

func parseDays(spec string) (domain.WeekdaySet, error) {
	var set domain.WeekdaySet
	for _, part := range strings.Split(spec, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		day, ok := dayNames[part]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q (use mon,tue,...)", part)
		}
		set |= domain.Weekdays(day)
	}
	return set, nil
}

func newRuleCmd() *cobra.Command {
	ruleCmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage blocking rules for apps and categories",
	}
	ruleCmd.PersistentFlags().StringVar(&ruleApp, "app", "", "Target app identifier")
	ruleCmd.PersistentFlags().StringVar(&ruleCategory, "category", "", "Target category")

	strictCmd := &cobra.Command{
		Use:   "strict",
		Short: "Always block the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			return putRule(domain.StrictBlock{})
		},
	}

	limitCmd := &cobra.Command{
		Use:   "limit",
		Short: "Block once today's usage meets the daily limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ruleMinutes == 0 {
				return fmt.Errorf("--minutes must be positive")
			}
			return putRule(domain.DailyLimit{Minutes: ruleMinutes})
		},
	}
	limitCmd.Flags().Uint32Var(&ruleMinutes, "minutes", 0, "Daily limit in minutes")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Block inside a wall-clock window on given weekdays",
		Long: `Blocks while the clock is within [start, end) on one of the given
days. A start later than the end wraps past midnight.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := domain.ParseTimeOfDay(ruleStart)
			if err != nil {
				return err
			}
			end, err := domain.ParseTimeOfDay(ruleEnd)
			if err != nil {
				return err
			}
			days, err := parseDays(ruleDays)
			if err != nil {
				return err
			}
			return putRule(domain.ScheduledBlock{Start: start, End: end, Days: days})
		},
	}
	scheduleCmd.Flags().StringVar(&ruleStart, "start", "", "Window start, HH:MM")
	scheduleCmd.Flags().StringVar(&ruleEnd, "end", "", "Window end, HH:MM")
	scheduleCmd.Flags().StringVar(&ruleDays, "days", "", "Comma-separated weekdays (mon,tue,...)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all stored rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rules, err := store.AllRules()
			if err != nil {
				return err
			}
			for _, r := range rules {
				fmt.Printf("%-40s %s\n", r.Target.Key(), describeRule(r.Rule))
			}
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove a rule of the given kind from the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget()
			if err != nil {
				return err
			}
			kind, err := parseRuleKind(ruleKind)
			if err != nil {
				return err
			}

			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.RemoveRule(target, kind)
		},
	}
	rmCmd.Flags().StringVar(&ruleKind, "kind", "", "Rule kind: strict, limit, or schedule")

	ruleCmd.AddCommand(strictCmd, limitCmd, scheduleCmd, listCmd, rmCmd)
	return ruleCmd
}

func parseRuleKind(s string) (domain.RuleKind, error) {
	switch s {
	case "strict":
		return domain.RuleStrictBlock, nil
	case "limit":
		return domain.RuleDailyLimit, nil
	case "schedule":
		return domain.RuleScheduledBlock, nil
	}
	return "", fmt.Errorf("unknown rule kind %q (use strict, limit, schedule)", s)
}

func describeRule(r domain.Rule) string {
	switch v := r.(type) {
	case domain.StrictBlock:
		return "strict block"
	case domain.DailyLimit:
		return fmt.Sprintf("daily limit %d min", v.Minutes)
	case domain.ScheduledBlock:
		return fmt.Sprintf("blocked %s-%s", v.Start, v.End)
	}
	return string(r.Kind())
}

func putRule(rule domain.Rule) error {
	target, err := parseTarget()
	if err != nil {
		return err
	}
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.PutRule(target, rule); err != nil {
		return fmt.Errorf("failed to store rule: %w", err)
	}
	fmt.Printf("Rule stored for %s: %s\n", target.Key(), describeRule(rule))
	return nil
}

func newCategoryCmd() *cobra.Command {
	categoryCmd := &cobra.Command{
		Use:   "category",
		Short: "Inspect and override app categories",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List classification records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			cats, err := store.AllCategories()
			if err != nil {
				return err
			}
			for _, c := range cats {
				flags := ""
				if c.Whitelisted {
					flags += " [whitelisted]"
				}
				if c.ManualOverride {
					flags += " [manual]"
				}
				fmt.Printf("%-40s %s%s\n", c.AppID, c.Kind, flags)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <app-id>",
		Short: "Override an app's category (pins it against the classifier)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseCategoryKind(categoryKind)
			if err != nil {
				return err
			}
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Override(domain.AppID(args[0]), kind)
		},
	}
	setCmd.Flags().StringVar(&categoryKind, "kind", "", "Category: essential, productive, system, distracting, other")

	whitelistCmd := &cobra.Command{
		Use:   "whitelist <app-id>",
		Short: "Set or clear the whitelist flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.SetWhitelisted(domain.AppID(args[0]), whitelistFlag)
		},
	}
	whitelistCmd.Flags().BoolVar(&whitelistFlag, "on", true, "Whitelist on/off")

	categoryCmd.AddCommand(listCmd, setCmd, whitelistCmd)
	return categoryCmd
}

// withFocus opens the store and hands a ready focus manager to fn.
func withFocus(fn func(m *focus.Manager) error) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	logger := zap.NewNop()
	manager, err := focus.NewManager(store, store, logger)
	if err != nil {
		return err
	}
	return fn(manager)
}

func newFocusCmd() *cobra.Command {
	focusCmd := &cobra.Command{
		Use:   "focus",
		Short: "Control the focus session",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a focus session",
		RunE: func(cmd *cobra.Command, args []string) error {
			lockType := domain.LockRandomPhrase
			if focusLock == "password" {
				lockType = domain.LockCustomPassword
			} else if focusLock != "" && focusLock != "phrase" {
				return fmt.Errorf("unknown lock type %q (use phrase or password)", focusLock)
			}

			var allow []domain.AppID
			for _, a := range focusAllowApps {
				allow = append(allow, domain.AppID(a))
			}
			if len(allow) == 0 {
				allow = nil // keep the stored allow-list
			}

			return withFocus(func(m *focus.Manager) error {
				if err := m.Start(lockType, allow, time.Now()); err != nil {
					return err
				}
				snap := m.Snapshot()
				fmt.Println("Focus session started.")
				if lockType == domain.LockRandomPhrase {
					fmt.Printf("Unlock phrase: %s\n", snap.SessionPhrase)
					fmt.Println("Write it down - you will type it back to unlock.")
				}
				return nil
			})
		},
	}
	startCmd.Flags().StringVar(&focusLock, "lock", "phrase", "Unlock ritual: phrase or password")
	startCmd.Flags().StringSliceVar(&focusAllowApps, "allow", nil, "Replace the allow-list for this session")

	allowCmd := &cobra.Command{
		Use:   "allow <app-id>...",
		Short: "Replace the curated allow-list (only between sessions)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]domain.AppID, 0, len(args))
			for _, a := range args {
				ids = append(ids, domain.AppID(a))
			}
			return withFocus(func(m *focus.Manager) error {
				return m.SetAllowList(ids)
			})
		},
	}

	passwordCmd := &cobra.Command{
		Use:   "password <password>",
		Short: "Set the custom unlock password (only between sessions)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFocus(func(m *focus.Manager) error {
				return m.SetPassword(args[0])
			})
		},
	}

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the session (counts against the 2-minute budget)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFocus(func(m *focus.Manager) error {
				deadline, err := m.RequestPause(time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("Paused until %s\n", deadline.Format(time.Kitchen))
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume early from a pause",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFocus(func(m *focus.Manager) error {
				return m.ResumePause(time.Now())
			})
		},
	}

	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "Begin the unlock ritual",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFocus(func(m *focus.Manager) error {
				return m.RequestUnlock()
			})
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the unlock ritual and return to the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFocus(func(m *focus.Manager) error {
				return m.CancelUnlock()
			})
		},
	}

	confirmCmd := &cobra.Command{
		Use:   "confirm <input>",
		Short: "Confirm the unlock ritual with the phrase or password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFocus(func(m *focus.Manager) error {
				if err := m.ConfirmUnlock(args[0]); err != nil {
					return err
				}
				fmt.Println("Focus session ended.")
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the focus session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFocus(func(m *focus.Manager) error {
				snap := m.Snapshot()
				fmt.Printf("State:        %s\n", snap.State)
				fmt.Printf("Lock type:    %s\n", snap.LockType)
				fmt.Printf("Allow-list:   %d apps\n", len(snap.AllowList))
				fmt.Printf("Pause budget: %s\n", snap.PauseBudgetRemaining)
				if snap.State == domain.FocusPaused {
					deadline := snap.LastPauseStartedAt.Add(snap.PauseBudgetRemaining)
					fmt.Printf("Auto-resume:  %s\n", deadline.Format(time.Kitchen))
				}
				return nil
			})
		},
	}

	focusCmd.AddCommand(startCmd, allowCmd, passwordCmd, pauseCmd, resumeCmd,
		unlockCmd, cancelCmd, confirmCmd, statusCmd)
	return focusCmd
}
