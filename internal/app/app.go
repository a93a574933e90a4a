// Package app wires config, infrastructure, and the crawl pipeline together,
// mirroring the teacher's internal/app/app.go Run(ctx, cfg) shape: read
// config, connect optional infrastructure, then drive the one thing this
// process does (here: one batch crawl, not an api/worker mode switch).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/hejianfang/xhs-crawl/internal/config"
	"github.com/hejianfang/xhs-crawl/internal/credlock"
	"github.com/hejianfang/xhs-crawl/internal/httpserver"
	"github.com/hejianfang/xhs-crawl/internal/notify"
	"github.com/hejianfang/xhs-crawl/internal/platform"
	"github.com/hejianfang/xhs-crawl/internal/progressdb"
	"github.com/hejianfang/xhs-crawl/internal/telemetry"
	"github.com/hejianfang/xhs-crawl/pkg/coordinator"
	"github.com/hejianfang/xhs-crawl/pkg/credential"
	"github.com/hejianfang/xhs-crawl/pkg/inputlist"
	"github.com/hejianfang/xhs-crawl/pkg/progress"
	"github.com/hejianfang/xhs-crawl/pkg/retrypolicy"
	"github.com/hejianfang/xhs-crawl/pkg/signer"
	"github.com/hejianfang/xhs-crawl/pkg/transport"
	"github.com/hejianfang/xhs-crawl/pkg/walker"
	"github.com/hejianfang/xhs-crawl/pkg/xhsapi"
)

// Run reads the input list, crawls every pending note, and returns once the
// batch completes (or ctx is cancelled). It is the single entry point both
// cmd/xhscrawl's "crawl" subcommand and tests drive. The returned Summary is
// valid even when err is non-nil, letting the caller distinguish "some notes
// failed" (spec.md §6 exit code 2) from a fatal setup error (exit code 1).
func Run(ctx context.Context, cfg *config.Config) (coordinator.Summary, error) {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	taskID := cfg.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	logger.Info("starting xhscrawl", "task_id", taskID, "input", cfg.InputPath, "output_dir", cfg.OutputDir)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return coordinator.Summary{}, fmt.Errorf("creating output dir: %w", err)
	}

	metrics := telemetry.NewMetrics()
	metricsReg := telemetry.NewRegistry(metrics.All()...)

	// Optional Postgres progress mirror (SPEC_FULL.md §D6).
	var mirror *progressdb.Store
	if cfg.DatabaseURL != "" {
		pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return coordinator.Summary{}, fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return coordinator.Summary{}, fmt.Errorf("running progress mirror migrations: %w", err)
		}
		mirror = progressdb.NewStore(pool)
		logger.Info("postgres progress mirror enabled")
	} else {
		logger.Info("postgres progress mirror disabled (DATABASE_URL not set)")
	}

	// Optional Redis cross-process credential lock (SPEC_FULL.md §D7).
	var locker credential.Locker
	if cfg.RedisURL != "" {
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return coordinator.Summary{}, fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		locker = credlock.New(rdb)
		logger.Info("redis cross-process credential lock enabled")
	} else {
		logger.Info("redis cross-process credential lock disabled (REDIS_URL not set)")
	}

	// Credential pool.
	thresholds := credential.Thresholds{
		SoftCooldownThreshold: cfg.SoftCooldownThreshold,
		HardDisableThreshold:  cfg.HardDisableThreshold,
		DailyCap:              cfg.DailyCap,
		MinInterval:           time.Duration(cfg.MinIntervalSeconds) * time.Second,
	}
	persister := credential.NewFilePersister(cfg.CredentialPath)
	snap, err := credential.Load(cfg.CredentialPath)
	if err != nil {
		return coordinator.Summary{}, fmt.Errorf("loading credential file: %w", err)
	}
	pool := credential.New(credential.Strategy(cfg.RotationStrategy), thresholds, persister)
	pool.LoadSnapshot(snap, thresholds)
	if pool.Size() == 0 {
		return coordinator.Summary{}, fmt.Errorf("%w: %s holds no credentials", credential.ErrNoEligibleCredential, cfg.CredentialPath)
	}
	if locker != nil {
		pool.WithLocker(locker)
	}
	metrics.PoolSize.Set(float64(pool.Size()))

	// Transport + endpoint client. The real signing algorithm is an external
	// collaborator (pkg/signer's package doc); Passthrough is the
	// development/test stand-in until a production Signer is supplied.
	var s signer.Signer = signer.Passthrough{}
	t := transport.New(cfg.BaseURL, s, cfg.RequestTimeout)
	client := xhsapi.New(t)

	raw, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		return coordinator.Summary{}, fmt.Errorf("reading input list: %w", err)
	}
	list, err := inputlist.Parse(raw)
	if err != nil {
		return coordinator.Summary{}, fmt.Errorf("parsing input list: %w", err)
	}

	// Progress manager: resume from an existing file, or start fresh. A
	// fresh start needs the input list already parsed so TotalNotes is
	// recorded correctly instead of permanently persisted as 0.
	prog, err := progress.Load(cfg.ProgressPath, cfg.OutputDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("progress file unreadable, starting fresh", "error", err)
		}
		prog = progress.New(cfg.ProgressPath, cfg.OutputDir, taskID, cfg.InputPath, len(list.Notes))
	}
	if mirror != nil {
		prog = prog.WithMirror(mirror, logger)
	}

	// Optional failure notifications (SPEC_FULL.md §D8).
	var notifiers []coordinator.Notifier
	slackNotifier := notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if slackNotifier.IsEnabled() {
		notifiers = append(notifiers, slackNotifier)
		logger.Info("slack notifications enabled", "channel", cfg.SlackAlertChannel)
	}
	mmNotifier := notify.NewMattermostNotifier(cfg.MattermostURL, cfg.MattermostBotToken, cfg.MattermostChannelID, logger)
	if mmNotifier.IsEnabled() {
		notifiers = append(notifiers, mmNotifier)
		logger.Info("mattermost notifications enabled", "url", cfg.MattermostURL)
	}
	var fanout notify.Fanout
	fanout.Notifiers = notifiers

	walkerCfg := walker.Config{
		MaxLevel:     cfg.MaxLevel,
		TopPageDelay: cfg.TopPageDelay,
		SubPageDelay: cfg.SubPageDelay,
		RetryBudgets: retrypolicy.Budgets{
			MaxPerCredentialAttempts: cfg.MaxCredentialAttempts,
			MaxWaitRounds:            cfg.MaxWaitRounds,
			CooldownWait:             cfg.CooldownWait,
		},
	}

	coord := &coordinator.Coordinator{
		Client:       client,
		Pool:         pool,
		Progress:     prog,
		WalkerConfig: walkerCfg,
		NewWalker: func() *walker.Walker {
			return walker.New(client, pool, prog, walkerCfg)
		},
		OutputDir: cfg.OutputDir,
		Logger:    logger,
		Notifier:  fanout,
		Metrics:   metrics,
		TaskID:    taskID,
	}

	// Status HTTP surface (SPEC_FULL.md §D4): healthz + this task's progress.
	srv := httpserver.NewServer(logger, prog, metricsReg, cfg.CORSAllowedOrigins)
	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("status server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server failed", "error", err)
		}
	}()

	summary, runErr := coord.Run(ctx, list.Notes)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	logger.Info("crawl finished",
		"successful", len(summary.SuccessfulNotes),
		"failed", len(summary.FailedNotes),
		"total_comments", summary.TotalComments,
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return summary, runErr
}
