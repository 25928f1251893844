package main

import (
	"context"
	"fmt"
	"time"

	"github.com/octobees/supplier-outreach/internal/auth"
	"github.com/octobees/supplier-outreach/internal/compose"
	"github.com/octobees/supplier-outreach/internal/config"
	"github.com/octobees/supplier-outreach/internal/contact"
	"github.com/octobees/supplier-outreach/internal/database"
	"github.com/octobees/supplier-outreach/internal/dispatch"
	"github.com/octobees/supplier-outreach/internal/generation"
	"github.com/octobees/supplier-outreach/internal/handler"
	"github.com/octobees/supplier-outreach/internal/logger"
	"github.com/octobees/supplier-outreach/internal/mailer"
	"github.com/octobees/supplier-outreach/internal/metrics"
	"github.com/octobees/supplier-outreach/internal/pipeline"
	"github.com/octobees/supplier-outreach/internal/quota"
	"github.com/octobees/supplier-outreach/internal/reachability"
	"github.com/octobees/supplier-outreach/internal/repository"
	"github.com/octobees/supplier-outreach/internal/retry"
	"github.com/octobees/supplier-outreach/internal/router"
	"github.com/octobees/supplier-outreach/internal/search"
	"github.com/octobees/supplier-outreach/internal/service"
	"github.com/octobees/supplier-outreach/internal/settings"
	"github.com/octobees/supplier-outreach/internal/websearch"
)

const (
	queueName     = "supplier-emails"
	senderTimeout = 30 * time.Second
)

type application struct {
	jwt      *auth.JWTManager
	queue    *dispatch.Queue
	metrics  *metrics.Collector
	handlers router.Handlers
	closers  []func()
}

// close releases resources in reverse acquisition order.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func build(ctx context.Context, cfg *config.Config, outreach settings.Settings) (_ *application, err error) {
	log := logger.Default()
	app := &application{
		jwt:     auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			app.close()
		}
	}()
	checks := map[string]handler.Pinger{}

	var (
		searches  repository.SearchRepository
		operators repository.OperatorsRepository
		ledger    quota.Ledger
	)
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := database.Migrate(cfg.DatabaseURL); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		checks["database"] = pool.Ping
		searches = repository.NewPGXSearchRepository(pool)
		operators = repository.NewPGXOperatorsRepository(pool)
		if cfg.Quota.Backend == "postgres" {
			ledger = repository.NewPGXSendLedger(pool)
		}
	} else {
		log.Warn("DATABASE_URL not set, runs and operators are kept in memory")
		mem := repository.NewMemoryStore()
		searches, operators = mem, mem
	}

	switch {
	case cfg.Quota.Backend == "redis":
		rl, err := quota.NewRedisLedger(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = rl.Close() })
		checks["redis"] = rl.Ping
		ledger = rl
	case ledger == nil:
		log.WithField("backend", cfg.Quota.Backend).Warn("send ledger kept in memory")
		ledger = quota.NewMemoryLedger()
	}
	policy := quota.New(ledger, quotaConfig(cfg, outreach))

	gen, err := newGenerator(ctx, cfg.Generation)
	if err != nil {
		return nil, err
	}
	limited := generation.Limit(gen, cfg.Generation.Concurrency)

	checker := reachability.New(
		reachability.WithTimeout(cfg.Pipeline.ReachabilityTimeout),
		reachability.WithConcurrency(cfg.Pipeline.ReachabilityConcurrency),
		reachability.WithRetry(retry.Policy{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}),
	)
	var pipeOpts []pipeline.Option
	if cfg.GoogleAPIKey != "" && cfg.GoogleSearchEngineID != "" {
		finder, err := websearch.New(ctx, websearch.Config{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleSearchEngineID,
			Concurrency:    cfg.Pipeline.ReachabilityConcurrency,
		})
		if err != nil {
			return nil, err
		}
		pipeOpts = append(pipeOpts, pipeline.WithWebsiteFinder(finder))
	}
	filter := pipeline.New(checker, contact.NewVerifier(), pipeOpts...)

	var sender mailer.Sender = mailer.LogSender{}
	if cfg.SendGridAPIKey != "" {
		sender = mailer.NewSendGrid(cfg.SendGridAPIKey, cfg.SendGridBaseURL, senderTimeout)
	} else {
		log.Warn("SENDGRID_API_KEY not set, outbound email is logged only")
	}
	queue := dispatch.New(queueName, sender, policy, dispatch.Config{
		PerMinute:   perMinute(cfg.Dispatch.Rate),
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Backoff:     cfg.Dispatch.Backoff,
	})
	app.queue = queue
	queue.Subscribe(app.metrics)
	app.closers = append(app.closers, queue.Stop)

	minSuppliers, maxSuppliers, temperature := cfg.Pipeline.MinSuppliers, cfg.Pipeline.MaxSuppliers, cfg.Generation.Temperature
	if cfg.SettingsFile != "" {
		minSuppliers, maxSuppliers, temperature = outreach.Search.MinSuppliers, outreach.Search.MaxSuppliers, outreach.Search.Temperature
	}
	writer := generation.NewEmailWriter(limited, outreach.Prompts, outreach.Search.EmailTemperature)
	composer := compose.New(outreach.Templates, outreach.Email, outreach.Compliance.AntispamHeaders)
	orch := search.New(search.Deps{
		Store:     searches,
		Generator: limited,
		Filter:    filter,
		Writer:    writer,
		Composer:  composer,
		Quota:     policy,
		Queue:     queue,
		Prompts:   outreach.Prompts,
		Metrics:   app.metrics,
	}, search.Config{
		DefaultMinSuppliers: minSuppliers,
		DefaultMaxSuppliers: maxSuppliers,
		Temperature:         temperature,
		LocalizeEmails:      outreach.Search.LocalizeEmails,
		Pipeline: pipeline.Config{
			VerificationConcurrency: cfg.Pipeline.VerificationConcurrency,
			VerificationTimeout:     cfg.Pipeline.VerificationTimeout,
			FallbackThreshold:       cfg.Pipeline.FallbackThreshold,
		},
		Provider: sender.Provider(),
		Retry:    retry.Default(),
	})
	queue.Subscribe(orch.Observer())
	app.closers = append(app.closers, orch.Close)

	var replyOpts []service.ReplyOption
	if outreach.Automation.AutoReply {
		replyOpts = append(replyOpts, service.WithAutoReply(service.AutoReply{
			Runs:     searches,
			Drafter:  writer,
			Composer: composer,
			Queue:    queue,
			Delay:    outreach.Automation.Delay(),
			Counter:  app.metrics,
		}))
		log.WithField("delay", outreach.Automation.Delay().String()).Info("auto-reply enabled")
	}

	authService := service.NewAuthService(operators, app.jwt)
	operatorService := service.NewOperatorService(operators)
	created, err := operatorService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		log.WithField("email", cfg.AdminEmail).Info("bootstrap administrator created")
	}

	app.handlers = router.Handlers{
		Health:    handler.NewHealthHandler(checks),
		Auth:      handler.NewAuthHandler(authService),
		Operators: handler.NewOperatorAdminHandler(operatorService),
		Searches:  handler.NewSearchHandler(orch, searches),
		Queue:     handler.NewQueueHandler(queue),
		Metrics:   handler.NewMetricsHandler(app.metrics, queue),
		Webhooks:  handler.NewWebhookHandler(service.NewReplyService(searches, replyOpts...)),
	}

	log.WithFields(logger.Fields{
		"generator":    limited.Name(),
		"mailer":       sender.Provider(),
		"quota_ledger": cfg.Quota.Backend,
		"daily_limit":  policy.Limit(time.Now()),
	}).Info("application initialized")
	return app, nil
}

func newGenerator(ctx context.Context, cfg config.GenerationConfig) (generation.Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return generation.NewGemini(ctx, generation.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	default:
		return generation.NewOpenAI(generation.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.Timeout,
		})
	}
}

// quotaConfig applies the settings file policy over the environment.
func quotaConfig(cfg *config.Config, outreach settings.Settings) quota.Config {
	qc := quota.Config{
		DailyLimit:         cfg.Quota.DailyLimit,
		Interval:           cfg.Quota.SendInterval,
		WarmupStart:        cfg.Quota.WarmupStart,
		WarmupInitialLimit: cfg.Quota.WarmupInitialLimit,
		WarmupDays:         cfg.Quota.WarmupDays,
	}
	if cfg.SettingsFile == "" {
		return qc
	}
	if outreach.Policy.DailyLimit > 0 {
		qc.DailyLimit = outreach.Policy.DailyLimit
	}
	if iv := outreach.Policy.SendInterval(); iv > 0 {
		qc.Interval = iv
	}
	return qc
}

func perMinute(rl config.RateLimitConfig) int {
	if rl.Requests <= 0 || rl.Interval <= 0 {
		return 0
	}
	n := int(int64(rl.Requests) * int64(time.Minute) / int64(rl.Interval))
	return max(n, 1)
}
