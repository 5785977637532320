package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"crypto-price-tracker/internal/alerting"
	"crypto-price-tracker/internal/api"
	"crypto-price-tracker/internal/config"
	"crypto-price-tracker/internal/fetcher"
	"crypto-price-tracker/internal/scheduler"
	"crypto-price-tracker/internal/service"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() *fetcher.CoinGecko {
	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:   a.Config.PriceSource.BaseURL,
		APIKey:    a.Config.PriceSource.APIKey,
		Timeout:   a.Config.PriceSource.RequestTimeout,
		UserAgent: a.Config.PriceSource.UserAgent,
	}, a.Logger)
}

// newNotifier returns nil when mail is not configured.
func (a *App) newNotifier() alerting.Notifier {
	if err := a.Config.Mail.Require(); err != nil {
		a.Logger.Warn().Err(err).Msg("mail not configured; notifications disabled")
		return nil
	}
	mailer := alerting.NewSMTPMailer(alerting.SMTPOptions{
		Host:     a.Config.Mail.Host,
		Port:     a.Config.Mail.Port,
		Username: a.Config.Mail.Username,
		Password: a.Config.Mail.Password,
		From:     a.Config.Mail.From,
		Timeout:  a.Config.Mail.Timeout,
	}, a.Logger)
	return alerting.NewEmailNotifier(mailer, a.Logger)
}

func (a *App) newEvaluator(store *storage.Store, notifier alerting.Notifier) *service.AlertEvaluator {
	return service.NewAlertEvaluator(store, store, notifier, service.EvaluatorOptions{
		ThresholdPct:     decimal.NewFromFloat(a.Config.Alerting.SpikeThresholdPct),
		Window:           a.Config.Alerting.SpikeWindow,
		DefaultRecipient: a.Config.Alerting.DefaultRecipient,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.ConnString() == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context, purpose string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", purpose)
	}
	return store, closeStore, nil
}

// Run executes the HTTP API and the sampling loop until interrupted.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.RequireService(); err != nil {
		return fmt.Errorf("incomplete configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx, "run service")
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		Cron:         a.Config.Scheduler.Cron,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	source := a.newSource()
	notifier := a.newNotifier()

	sampler := service.NewSampler(service.SamplerOptions{
		Scheduler: sched,
		Source:    source,
		Store:     store,
		Evaluator: a.newEvaluator(store, notifier),
		LockKey:   a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)

	server := api.NewServer(api.Options{
		Port:            a.Config.HTTP.Port,
		ReadTimeout:     a.Config.HTTP.ReadTimeout,
		WriteTimeout:    a.Config.HTTP.WriteTimeout,
		ShutdownTimeout: a.Config.HTTP.ShutdownTimeout,
	}, service.NewPrices(source, store, a.Logger), service.NewAlerts(store, notifier, a.Logger), a.Logger)

	a.Logger.Info().
		Int("port", a.Config.HTTP.Port).
		Dur("interval", a.Config.Scheduler.Interval).
		Str("cron", a.Config.Scheduler.Cron).
		Msg("starting price tracker")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		err := sampler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("price tracker terminated with error")
		return err
	}

	a.Logger.Info().Msg("price tracker stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	Tokens    []token.Token
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Token string
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	Tokens []token.Token
	DryRun bool
}

// SampleOptions configure a one-off tick.
type SampleOptions struct {
	SkipAlerts bool
}
