package app

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/sqlship/internal/adapter/notify"
	"github.com/semmidev/sqlship/internal/adapter/sqlitecheck"
	"github.com/semmidev/sqlship/internal/adapter/storage"
	"github.com/semmidev/sqlship/internal/config"
	"github.com/semmidev/sqlship/internal/domain"
	"github.com/semmidev/sqlship/internal/infrastructure/clock"
	"github.com/semmidev/sqlship/internal/infrastructure/logger"
	"github.com/semmidev/sqlship/internal/infrastructure/metrics"
	"github.com/semmidev/sqlship/internal/infrastructure/scheduler"
	"github.com/semmidev/sqlship/internal/usecase"
)

type App struct {
	config      *config.Config
	logger      *logger.Logger
	clock       clock.Clock
	cadence     scheduler.Cadence
	scheduler   *scheduler.Scheduler
	snapshotter *usecase.Snapshotter
	notifier    domain.Notifier
	metrics     *metrics.Metrics
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{
		Service: cfg.App.Name,
		Level:   cfg.App.LogLevel,
		File:    cfg.App.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cadence := resolveCadence(cfg.Schedule.Cadence, log)

	uploader, err := initializeUploader(cfg, log)
	if err != nil {
		return nil, err
	}

	var opts []usecase.SnapshotterOption
	if cfg.Source.Verify {
		opts = append(opts, usecase.WithVerifier(sqlitecheck.New()))
		log.Infof("✓ Snapshot verification enabled (PRAGMA quick_check)")
	}

	a := &App{
		config:      cfg,
		logger:      log,
		clock:       clock.System(),
		cadence:     cadence,
		snapshotter: usecase.NewSnapshotter(uploader, cfg.Storage.Bucket, log, opts...),
		notifier:    initializeNotifier(cfg, log),
		metrics:     metrics.New(),
	}

	a.scheduler = scheduler.New(cadence.Interval,
		scheduler.WithPollInterval(cfg.Schedule.PollInterval),
		scheduler.WithLogger(log),
		scheduler.WithSkipHook(func(time.Time) { a.metrics.TriggerSkipped() }),
	)

	return a, nil
}

// resolveCadence applies the fallback policy: anything other than the
// hourly or daily expressions runs hourly. This is intentional and never
// a startup error.
func resolveCadence(expr string, log *logger.Logger) scheduler.Cadence {
	cadence, ok := scheduler.ParseCadence(expr)
	switch {
	case ok:
	case scheduler.IsCronSyntax(expr):
		log.Warnf("Cron schedule %q is not supported (only hourly and daily are), defaulting to %s", expr, cadence.Name)
	default:
		log.Warnf("Could not parse schedule %q, defaulting to %s", expr, cadence.Name)
	}
	return cadence
}

func initializeUploader(cfg *config.Config, log *logger.Logger) (domain.Uploader, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		stor, err := storage.NewLocal(cfg.Storage.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		log.Infof("✓ Local object storage enabled (root: %s)", cfg.Storage.LocalRoot)
		return stor, nil

	default:
		stor, err := storage.NewS3(context.Background(), &cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3: %w", err)
		}
		if cfg.Storage.Endpoint != "" {
			log.Infof("✓ S3 upload enabled (bucket: %s, endpoint: %s)", cfg.Storage.Bucket, cfg.Storage.Endpoint)
		} else {
			log.Infof("✓ S3 upload enabled (bucket: %s, region: %s)", cfg.Storage.Bucket, cfg.Storage.Region)
		}
		return stor, nil
	}
}

func initializeNotifier(cfg *config.Config, log *logger.Logger) domain.Notifier {
	tg := cfg.Notify.Telegram
	if !tg.Enabled() {
		return nil
	}

	n, err := notify.NewTelegram(tg.BotToken, tg.ChatID)
	if err != nil {
		log.Errorf("Failed to initialize Telegram: %v", err)
		return nil
	}
	log.Infof("✓ Telegram failure notifications enabled")
	return n
}

// RunCycle takes one snapshot and reports the outcome. Failures are
// returned for logging but never stop the service.
func (a *App) RunCycle(ctx context.Context) error {
	start := a.clock.Now()
	snap, err := a.snapshotter.TakeSnapshot(ctx, a.config.Source.Path, a.config.Source.StagingDir, a.config.Storage.Prefix)

	var size int64
	if snap != nil {
		size = snap.Size
	}
	a.metrics.ObserveCycle(domain.ErrorKind(err), start, a.clock.Now().Sub(start), size)
	if next := a.scheduler.Next(); !next.IsZero() {
		a.metrics.SetNextTrigger(next)
	}

	if err != nil {
		a.notifyFailure(ctx, err)
		return fmt.Errorf("backup failed: %w", err)
	}

	a.logger.Infof("Backup completed successfully: s3://%s/%s", snap.Bucket, snap.RemoteKey)
	return nil
}

func (a *App) notifyFailure(ctx context.Context, cause error) {
	if a.notifier == nil {
		return
	}

	message := fmt.Sprintf(
		"❌ SQLite Backup Failed\n\n"+
			"📁 Source: %s\n"+
			"🪣 Bucket: %s\n"+
			"⚠️ Reason: %s\n"+
			"🕐 Time: %s",
		a.config.Source.Path,
		a.config.Storage.Bucket,
		cause,
		a.clock.Now().Format("2006-01-02 15:04:05"),
	)
	if err := a.notifier.Notify(ctx, message); err != nil {
		a.logger.Warnf("Failed to send failure notification: %v", err)
	}
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting SQLite backup service (schedule: %s)", a.cadence.Name)
	a.logger.Infof("Monitoring SQLite file: %s", a.config.Source.Path)

	if addr := a.config.App.MetricsAddr; addr != "" {
		go func() {
			a.logger.Infof("Metrics listening on %s", addr)
			if err := a.metrics.Serve(ctx, addr); err != nil {
				a.logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	return a.scheduler.Run(ctx, a.RunCycle)
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.logger.Close()
}
