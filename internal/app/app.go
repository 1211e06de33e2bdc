// Package app wires the engine from configuration. It owns the single
// messaging channel of the process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/segyhp/collections-engine/internal/channel"
	"github.com/segyhp/collections-engine/internal/config"
	"github.com/segyhp/collections-engine/internal/handler"
	"github.com/segyhp/collections-engine/internal/jobs"
	"github.com/segyhp/collections-engine/internal/notify"
	"github.com/segyhp/collections-engine/internal/repository"
	"github.com/segyhp/collections-engine/internal/repository/memstore"
	"github.com/segyhp/collections-engine/internal/scheduler"
	"github.com/segyhp/collections-engine/internal/service"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB    *sqlx.DB
	Redis *redis.Client

	Repos       jobs.Repositories
	Billing     *service.BillingService
	Channel     *channel.Channel
	Collections *jobs.Collections
	Sweeper     *jobs.Sweeper
	Runner      *jobs.Runner

	closers []func() error
}

// New builds every component. Nothing is started.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.initStore(); err != nil {
		return nil, err
	}
	if err := a.initRedis(ctx); err != nil {
		return nil, err
	}

	gen, err := a.textGenerator(ctx)
	if err != nil {
		return nil, err
	}
	composer := notify.NewComposer(gen, cfg.GetTextGenTimeout(), logger)

	dialer, err := a.dialer()
	if err != nil {
		return nil, err
	}
	a.Channel = channel.New(dialer, channel.NewFileCredentialStore(cfg.Channel.CredentialsPath), channel.Options{
		TypingDelay:    cfg.GetTypingDelay(),
		SendsPerMinute: cfg.Channel.SendsPerMinute,
	}, logger)
	a.closers = append(a.closers, a.Channel.Close)

	mailer, err := a.mailer()
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	a.Billing = service.NewBillingService(a.Repos.Loans, a.Repos.Installments, a.Repos.Clients, a.Repos.Lenders)
	a.Billing.Location = loc
	a.Collections = jobs.NewCollections(a.Repos, composer, a.Channel, mailer, cfg.Business.Name, loc, logger)
	a.Sweeper = jobs.NewSweeper(a.Repos.Installments, loc, logger)
	a.Runner = jobs.NewRunner(
		a.Sweeper,
		a.Collections,
		a.lock(),
		cfg.GetJobTimeout(),
		logger,
	)

	ok = true
	return a, nil
}

func (a *App) initStore() error {
	if a.Config.Database.Driver == "memory" {
		store := memstore.New()
		a.Repos = jobs.Repositories{
			Loans:        store.Loans(),
			Installments: store.Installments(),
			Clients:      store.Clients(),
			Lenders:      store.Lenders(),
		}
		a.Logger.Warn("Using in-memory store, data is lost on restart")
		return nil
	}

	db, err := sqlx.Connect("postgres", a.Config.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(a.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(a.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(a.Config.GetConnMaxLifetime())
	a.DB = db
	a.closers = append(a.closers, db.Close)

	a.Repos = jobs.Repositories{
		Loans:        repository.NewLoanRepository(db),
		Installments: repository.NewInstallmentRepository(db),
		Clients:      repository.NewClientRepository(db),
		Lenders:      repository.NewLenderRepository(db),
	}
	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	if a.Config.Redis.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, a.Config.GetHealthTimeout())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.Redis = client
	return nil
}

func (a *App) lock() jobs.Lock {
	if a.Config.Redis.LockDriver == "redis" && a.Redis != nil {
		return jobs.NewRedisLock(a.Redis, "")
	}
	return jobs.NewLocalLock()
}

func (a *App) textGenerator(ctx context.Context) (notify.TextGenerator, error) {
	cfg := a.Config.TextGen
	switch cfg.Provider {
	case "ollama":
		client := notify.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel, &http.Client{Timeout: a.Config.GetTextGenTimeout()})
		return notify.NewLLMGenerator(client), nil
	case "gemini":
		client, err := notify.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return notify.NewLLMGenerator(client), nil
	default:
		return notify.TemplateGenerator{}, nil
	}
}

func (a *App) dialer() (channel.Dialer, error) {
	if a.Config.Channel.Driver == "whatsapp" {
		return channel.NewWhatsAppDialer("postgres", a.Config.Database.URL, a.Logger)
	}
	return channel.NewLogDialer(a.Logger), nil
}

func (a *App) mailer() (notify.Mailer, error) {
	if a.Config.Mail.Driver != "amqp" {
		return notify.NewLogMailer(a.Logger), nil
	}
	conn, err := amqp.Dial(a.Config.Mail.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	a.closers = append(a.closers, conn.Close)
	return notify.NewAMQPMailer(conn, a.Config.Mail.AMQPExchange, a.Logger)
}

// Router returns the operator HTTP API.
func (a *App) Router() http.Handler {
	return handler.NewRouter(
		handler.NewBillingHandler(a.Billing),
		handler.NewAutomationHandler(a.Channel, a.Runner, a.Collections),
		handler.NewHealthHandler(a.DB, a.Redis, a.Config.GetHealthTimeout()),
		a.Logger,
	)
}

// Scheduler registers the daily jobs: the sweep runs before reminders and
// alerts so that alerts see today's overdue rows.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.Config.Location(), a.Config.GetJobTimeout(), a.Logger)
	if err := s.RegisterDaily(jobs.JobSweep, a.Config.Scheduler.SweepAt, a.Runner.SweepJob); err != nil {
		return nil, err
	}
	if err := s.RegisterDaily(jobs.JobCollections, a.Config.Scheduler.ReminderAt, a.Runner.CollectionsJob); err != nil {
		return nil, err
	}
	return s, nil
}

// Start connects the channel and starts the scheduler.
func (a *App) Start(ctx context.Context) (*scheduler.Scheduler, error) {
	s, err := a.Scheduler()
	if err != nil {
		return nil, err
	}
	a.Channel.Init(ctx)
	s.Start()
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Shutdown stops the scheduler, waiting at most timeout for running jobs,
// then closes everything.
func (a *App) Shutdown(s *scheduler.Scheduler, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if s != nil {
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
