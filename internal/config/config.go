// Package config loads daemon configuration from file, environment and
// defaults via viper.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the daemon's runtime configuration. Policy itself lives in
// the encrypted store; this covers only wiring: paths, intervals and
// the identifiers the engine must never block.
type Config struct {
	DataDir           string
	LogPath           string
	PollInterval      time.Duration
	PauseTickInterval time.Duration

	// SelfAppID is the launcher/enforcement app itself, always allowed
	// to avoid deadlock.
	SelfAppID string

	// EssentialApps stay reachable during a focus session (home
	// surface, dialer, settings) to prevent total device lockout.
	EssentialApps []string
}

// Load reads configuration from cfgFile, or $HOME/.gatekeeper.yaml when
// empty. A missing file is fine; defaults and environment apply.
func Load(cfgFile string) (Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to find home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(".gatekeeper")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("gatekeeper")
	v.AutomaticEnv()

	home, err := homedir.Dir()
	if err != nil {
		return Config{}, fmt.Errorf("failed to find home directory: %w", err)
	}

	v.SetDefault("data_dir", filepath.Join(home, ".local", "share", "gatekeeper"))
	v.SetDefault("log_path", "")
	v.SetDefault("poll_interval", "15m")
	v.SetDefault("pause_tick_interval", "1s")
	v.SetDefault("self_app_id", "com.zenlauncher.gatekeeper")
	v.SetDefault("essential_apps", []string{
		"com.zenlauncher.home",
		"com.android.dialer",
		"com.android.settings",
	})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		DataDir:           v.GetString("data_dir"),
		LogPath:           v.GetString("log_path"),
		PollInterval:      v.GetDuration("poll_interval"),
		PauseTickInterval: v.GetDuration("pause_tick_interval"),
		SelfAppID:         v.GetString("self_app_id"),
		EssentialApps:     v.GetStringSlice("essential_apps"),
	}

	expanded, err := homedir.Expand(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("failed to expand data dir: %w", err)
	}
	cfg.DataDir = expanded

	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.PauseTickInterval <= 0 {
		return Config{}, fmt.Errorf("pause_tick_interval must be positive, got %s", cfg.PauseTickInterval)
	}
	return cfg, nil
}
