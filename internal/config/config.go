// Package config loads Nexus's runtime configuration: coordinator
// concurrency, iterator bounds, replanner thresholds, escalation channels,
// and persistence paths.
//
// Config-file/env/default layering is handled by spf13/viper rather than
// a hand-rolled yaml.v3 + rawMap merge, since viper already does that
// generically.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// CoordinatorConfig mirrors coordinator.Config's tunables so they can be
// loaded from file/env instead of only set in code.
type CoordinatorConfig struct {
	MaxConcurrency int  `mapstructure:"max_concurrency"`
	CascadeAbandon bool `mapstructure:"cascade_abandon"`
}

// IteratorConfig holds the RalphStyleIterator's bounds.
type IteratorConfig struct {
	HardIterationCap    int           `mapstructure:"hard_iteration_cap"`
	SoftIterationCap     int           `mapstructure:"soft_iteration_cap"`
	WallClockCap         time.Duration `mapstructure:"wall_clock_cap"`
	BuildTimeout         time.Duration `mapstructure:"build_timeout"`
	LintTimeout          time.Duration `mapstructure:"lint_timeout"`
	TestTimeout          time.Duration `mapstructure:"test_timeout"`
	ReviewTimeout        time.Duration `mapstructure:"review_timeout"`
}

// ReplanConfig holds the ReplanTriggerEvaluators' thresholds.
type ReplanConfig struct {
	TimeExceededFactor       float64 `mapstructure:"time_exceeded_factor"`
	RepeatedFailureThreshold int     `mapstructure:"repeated_failure_threshold"`
	ScopeCreepFileDelta      int     `mapstructure:"scope_creep_file_delta"`
}

// EscalationConfig names the notification channels an escalation fans out
// to.
type EscalationConfig struct {
	Channels []string `mapstructure:"channels"`
}

// PersistenceConfig points at the checkpoint store.
type PersistenceConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// QAConfig names the shell commands the Build/Lint/Test stages run inside
// a task's worktree. Each is split on whitespace and run via
// exec.CommandContext — no shell, so no quoting surprises.
type QAConfig struct {
	BuildCommand string `mapstructure:"build_command"`
	LintCommand  string `mapstructure:"lint_command"`
	TestCommand  string `mapstructure:"test_command"`
}

// HousekeepingConfig schedules background checkpoint pruning.
type HousekeepingConfig struct {
	PruneSchedule  string        `mapstructure:"prune_schedule"`
	PruneRetention time.Duration `mapstructure:"prune_retention"`
}

// TelemetryConfig controls the Prometheus metrics endpoint. An empty
// ListenAddr leaves metrics collection running in-process without serving
// them, since a run with no scraper configured still benefits from the
// histograms feeding log output.
type TelemetryConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// EventsConfig points at the NATS broker run events fan out to. An empty
// URL disables publishing; nothing in the coordinator path depends on it.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
}

// Config is Nexus's top-level runtime configuration.
type Config struct {
	LogLevel     string             `mapstructure:"log_level"`
	LogDir       string             `mapstructure:"log_dir"`
	Coordinator  CoordinatorConfig  `mapstructure:"coordinator"`
	Iterator     IteratorConfig     `mapstructure:"iterator"`
	Replan       ReplanConfig       `mapstructure:"replan"`
	Escalation   EscalationConfig   `mapstructure:"escalation"`
	Persistence  PersistenceConfig  `mapstructure:"persistence"`
	QA           QAConfig           `mapstructure:"qa"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Events       EventsConfig       `mapstructure:"events"`
}

// DefaultConfig returns Nexus's baked-in defaults: coordinator
// concurrency 4, iteration caps 50/10, wall clock 30m, stage timeouts
// 5/2/10/5 min, TimeExceeded k=1.5, RepeatedFailure threshold 3,
// ScopeCreep delta 3.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogDir:   ".nexus/logs",
		Coordinator: CoordinatorConfig{
			MaxConcurrency: 4,
			CascadeAbandon: true,
		},
		Iterator: IteratorConfig{
			HardIterationCap: 50,
			SoftIterationCap:  10,
			WallClockCap:      30 * time.Minute,
			BuildTimeout:      5 * time.Minute,
			LintTimeout:       2 * time.Minute,
			TestTimeout:       10 * time.Minute,
			ReviewTimeout:     5 * time.Minute,
		},
		Replan: ReplanConfig{
			TimeExceededFactor:       1.5,
			RepeatedFailureThreshold: 3,
			ScopeCreepFileDelta:      3,
		},
		Escalation: EscalationConfig{
			Channels: []string{"console"},
		},
		Persistence: PersistenceConfig{
			SQLitePath: ".nexus/checkpoints.db",
		},
		QA: QAConfig{
			BuildCommand: "go build ./...",
			LintCommand:  "go vet ./...",
			TestCommand:  "go test ./...",
		},
		Housekeeping: HousekeepingConfig{
			PruneSchedule:  "0 3 * * *",
			PruneRetention: 7 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ListenAddr: "",
		},
		Events: EventsConfig{
			NATSURL: "",
		},
	}
}

// Load reads configuration from path (if it exists), layering file values
// over the defaults, then applies NEXUS_-prefixed environment variable
// overrides (e.g. NEXUS_COORDINATOR_MAX_CONCURRENCY). A missing file is not
// an error; a malformed one is. A ".env" file next to path is loaded into
// the process environment first (missing is not an error) so NEXUS_* vars
// can live alongside the plan instead of only in the shell.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	defaults := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, defaults)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("coordinator.max_concurrency", d.Coordinator.MaxConcurrency)
	v.SetDefault("coordinator.cascade_abandon", d.Coordinator.CascadeAbandon)
	v.SetDefault("iterator.hard_iteration_cap", d.Iterator.HardIterationCap)
	v.SetDefault("iterator.soft_iteration_cap", d.Iterator.SoftIterationCap)
	v.SetDefault("iterator.wall_clock_cap", d.Iterator.WallClockCap)
	v.SetDefault("iterator.build_timeout", d.Iterator.BuildTimeout)
	v.SetDefault("iterator.lint_timeout", d.Iterator.LintTimeout)
	v.SetDefault("iterator.test_timeout", d.Iterator.TestTimeout)
	v.SetDefault("iterator.review_timeout", d.Iterator.ReviewTimeout)
	v.SetDefault("replan.time_exceeded_factor", d.Replan.TimeExceededFactor)
	v.SetDefault("replan.repeated_failure_threshold", d.Replan.RepeatedFailureThreshold)
	v.SetDefault("replan.scope_creep_file_delta", d.Replan.ScopeCreepFileDelta)
	v.SetDefault("escalation.channels", d.Escalation.Channels)
	v.SetDefault("persistence.sqlite_path", d.Persistence.SQLitePath)
	v.SetDefault("qa.build_command", d.QA.BuildCommand)
	v.SetDefault("qa.lint_command", d.QA.LintCommand)
	v.SetDefault("qa.test_command", d.QA.TestCommand)
	v.SetDefault("telemetry.listen_addr", d.Telemetry.ListenAddr)
	v.SetDefault("events.nats_url", d.Events.NATSURL)
	v.SetDefault("housekeeping.prune_schedule", d.Housekeeping.PruneSchedule)
	v.SetDefault("housekeeping.prune_retention", d.Housekeeping.PruneRetention)
}

// Validate rejects impossible configuration values before they reach a
// running Coordinator.
func (c *Config) Validate() error {
	if c.Coordinator.MaxConcurrency < 1 {
		return fmt.Errorf("config: coordinator.max_concurrency must be >= 1, got %d", c.Coordinator.MaxConcurrency)
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("config: invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}
	if c.Iterator.SoftIterationCap > c.Iterator.HardIterationCap {
		return fmt.Errorf("config: iterator.soft_iteration_cap (%d) must be <= hard_iteration_cap (%d)", c.Iterator.SoftIterationCap, c.Iterator.HardIterationCap)
	}
	if c.Iterator.WallClockCap <= 0 {
		return fmt.Errorf("config: iterator.wall_clock_cap must be > 0")
	}
	if c.Replan.TimeExceededFactor <= 1.0 {
		return fmt.Errorf("config: replan.time_exceeded_factor must be > 1.0, got %v", c.Replan.TimeExceededFactor)
	}
	if len(c.Escalation.Channels) == 0 {
		return fmt.Errorf("config: escalation.channels must name at least one channel")
	}
	return nil
}
