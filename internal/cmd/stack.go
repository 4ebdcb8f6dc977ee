package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexusdev/nexus/internal/agentrun"
	"github.com/nexusdev/nexus/internal/claude"
	"github.com/nexusdev/nexus/internal/clockwork"
	"github.com/nexusdev/nexus/internal/config"
	"github.com/nexusdev/nexus/internal/coordinator"
	"github.com/nexusdev/nexus/internal/escalation"
	"github.com/nexusdev/nexus/internal/events"
	"github.com/nexusdev/nexus/internal/eventlog"
	"github.com/nexusdev/nexus/internal/hostgit"
	"github.com/nexusdev/nexus/internal/housekeeping"
	"github.com/nexusdev/nexus/internal/humanchannel"
	"github.com/nexusdev/nexus/internal/iterator"
	"github.com/nexusdev/nexus/internal/models"
	"github.com/nexusdev/nexus/internal/persistence"
	"github.com/nexusdev/nexus/internal/qarunner"
	"github.com/nexusdev/nexus/internal/telemetry"
)

// stack bundles every component a run/resolve invocation needs, assembled
// once from a loaded Config and a repository root.
type stack struct {
	cfg          *config.Config
	host         *hostgit.Host
	gateway      *persistence.Gateway
	store        *persistence.Store
	escalation   *escalation.Handler
	coordinator  *coordinator.Coordinator
	logger       *eventlog.Logger
	bus          *events.Bus
	metrics      *telemetry.Metrics
	registry     *prometheus.Registry
	telemetrySrv *telemetry.Server
	scheduler    *housekeeping.Scheduler
}

// buildStack loads cfg from configPath (defaults applied if absent) and
// wires every Nexus component against repoRoot.
func buildStack(repoRoot, configPath string, out io.Writer) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("cmd: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cmd: invalid config: %w", err)
	}

	logger := eventlog.New(out, cfg.LogLevel)

	host := hostgit.New(repoRoot)

	sqlitePath := cfg.Persistence.SQLitePath
	if !filepath.IsAbs(sqlitePath) {
		sqlitePath = filepath.Join(repoRoot, sqlitePath)
	}
	store, err := persistence.NewStore(sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("cmd: open checkpoint store: %w", err)
	}
	pointerPath := filepath.Join(filepath.Dir(sqlitePath), "latest-checkpoint.json")
	gateway := persistence.NewGateway(store, pointerPath)

	console := humanchannel.NewConsole()
	notifiers := map[string]escalation.Notifier{"console": console}
	escHandler := escalation.NewHandler(host, notifiers, cfg.Escalation.Channels)

	inv := claude.NewInvoker()
	agent := agentrun.NewClaudeAgentRunner(inv)
	contextProv := agentrun.NewRepoContextProvider(repoRoot)
	worktreeDirFor := func(t models.Task) string { return host.WorktreeDir(t.ID) }
	reviewer := agentrun.NewClaudeReviewer(inv, worktreeDirFor)

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	var telemetrySrv *telemetry.Server
	if cfg.Telemetry.ListenAddr != "" {
		telemetrySrv = telemetry.NewServer(cfg.Telemetry.ListenAddr, registry)
	}

	it := &iterator.Iterator{
		Agent:       agent,
		ContextProv: contextProv,
		QA: iterator.QAPipeline{
			Build:  observedStage(metrics, qarunner.CommandStage(models.StageBuild, cfg.QA.BuildCommand, worktreeDirFor)),
			Lint:   observedStage(metrics, qarunner.CommandStage(models.StageLint, cfg.QA.LintCommand, worktreeDirFor)),
			Test:   observedStage(metrics, qarunner.CommandStage(models.StageTest, cfg.QA.TestCommand, worktreeDirFor)),
			Review: reviewer.Review,
		},
		Merger:     host,
		Escalation: escalation.Sink{Handler: escHandler},
		Clock:      clockwork.SystemClock{},
	}

	coord := coordinator.New(it, host, gateway, escHandler)
	coord.Config.MaxConcurrency = cfg.Coordinator.MaxConcurrency
	coord.Config.CascadeAbandon = cfg.Coordinator.CascadeAbandon
	coord.Resolver.MaxConcurrency = cfg.Coordinator.MaxConcurrency

	bus, err := events.Connect(cfg.Events.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("cmd: connect event bus: %w", err)
	}

	pruner := housekeeping.NewCheckpointPruner(host, nil)
	pruner.Retention = cfg.Housekeeping.PruneRetention
	scheduler, err := housekeeping.NewScheduler(cfg.Housekeeping.PruneSchedule, pruner)
	if err != nil {
		return nil, fmt.Errorf("cmd: schedule checkpoint pruning: %w", err)
	}

	return &stack{
		cfg:          cfg,
		host:         host,
		gateway:      gateway,
		store:        store,
		escalation:   escHandler,
		coordinator:  coord,
		logger:       logger,
		bus:          bus,
		metrics:      metrics,
		registry:     registry,
		telemetrySrv: telemetrySrv,
		scheduler:    scheduler,
	}, nil
}

// observedStage wraps a StageFunc so its wall-clock duration feeds
// Prometheus, regardless of pass/fail outcome.
func observedStage(metrics *telemetry.Metrics, stage func(ctx context.Context, task models.Task, filesTouched []string) (models.StageResult, error)) func(ctx context.Context, task models.Task, filesTouched []string) (models.StageResult, error) {
	return func(ctx context.Context, task models.Task, filesTouched []string) (models.StageResult, error) {
		start := time.Now()
		result, err := stage(ctx, task, filesTouched)
		metrics.ObserveStage(result.Stage, time.Since(start))
		return result, err
	}
}

func (s *stack) Close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
