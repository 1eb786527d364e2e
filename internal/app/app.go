// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/amber-relay/internal/catalog"
	catalogpostgres "github.com/bissquit/amber-relay/internal/catalog/postgres"
	"github.com/bissquit/amber-relay/internal/catalog/rediscache"
	"github.com/bissquit/amber-relay/internal/config"
	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/distribution/email"
	"github.com/bissquit/amber-relay/internal/distribution/kafka"
	"github.com/bissquit/amber-relay/internal/distribution/media"
	"github.com/bissquit/amber-relay/internal/distribution/partner"
	distributionpostgres "github.com/bissquit/amber-relay/internal/distribution/postgres"
	"github.com/bissquit/amber-relay/internal/distribution/push"
	"github.com/bissquit/amber-relay/internal/distribution/sms"
	"github.com/bissquit/amber-relay/internal/distribution/social"
	"github.com/bissquit/amber-relay/internal/distribution/webhook"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/identity"
	"github.com/bissquit/amber-relay/internal/identity/jwt"
	"github.com/bissquit/amber-relay/internal/pkg/ctxlog"
	"github.com/bissquit/amber-relay/internal/pkg/httputil"
	"github.com/bissquit/amber-relay/internal/pkg/metrics"
	"github.com/bissquit/amber-relay/internal/pkg/postgres"
	"github.com/bissquit/amber-relay/internal/version"
	"github.com/bissquit/amber-relay/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	publisher     *kafka.Publisher
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	worker        *distribution.Worker
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(migrations.FS, cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		_ = app.closeClients()
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the worker first so no sweep is mid-flight when the pool closes.
	if a.worker != nil {
		a.worker.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	errs = append(errs, a.closeClients())
	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) closeClients() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis client: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo distribution.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			distribution.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Worker returns the distribution worker.
func (a *App) Worker() *distribution.Worker {
	return a.worker
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	authenticator, err := jwt.NewAuthenticator(jwt.Config{
		SecretKey:           a.config.Auth.JWTSecret,
		Issuer:              a.config.Auth.Issuer,
		AccessTokenDuration: a.config.Auth.TokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	catalogRepo := catalogpostgres.NewRepository(a.db)
	distributionRepo := distributionpostgres.NewRepository(a.db)

	var subscribers catalog.SubscriberDirectory = catalogRepo
	if a.config.Redis.Enabled {
		a.redis = rediscache.NewClient(rediscache.Config{
			Addr:     a.config.Redis.Addr,
			Password: a.config.Redis.Password,
			DB:       a.config.Redis.DB,
		})
		subscribers = rediscache.NewSubscriberCache(catalogRepo, a.redis, a.config.Redis.TTL)
	}

	dispatcher, err := a.newDispatcher(catalogRepo, distributionRepo, subscribers)
	if err != nil {
		return nil, err
	}

	var sinks []distribution.AuditSink
	if a.config.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.Config{
			Brokers:  a.config.Kafka.Brokers,
			Topic:    a.config.Kafka.Topic,
			ClientID: a.config.Kafka.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		a.publisher = kafka.NewPublisher(producer, a.config.Kafka.Topic)
		sinks = append(sinks, a.publisher)
	}
	auditor := distribution.NewAuditor(distributionRepo, sinks...)

	slog.Info("distribution configured",
		"redis_cache", a.config.Redis.Enabled,
		"kafka_audit", a.config.Kafka.Enabled,
		"max_retries", a.config.Distribution.MaxRetries,
	)

	dc := a.config.Distribution
	timeouts := make(map[domain.Channel]time.Duration, len(dc.Timeouts))
	for name, d := range dc.Timeouts {
		ch := domain.Channel(name)
		if !ch.Valid() {
			return nil, fmt.Errorf("distribution.timeouts: unknown channel %q", name)
		}
		timeouts[ch] = d
	}

	processor := distribution.NewProcessor(distribution.ProcessorConfig{
		BatchSize:      dc.BatchSize,
		Concurrency:    dc.Concurrency,
		RetryBaseDelay: dc.RetryBaseDelay,
		StaleAfter:     dc.StaleAfter,
		DefaultTimeout: dc.DefaultTimeout,
		Timeouts:       timeouts,
	}, distributionRepo, catalogRepo, dispatcher, auditor)

	a.worker = distribution.NewWorker(distribution.WorkerConfig{PollInterval: dc.PollInterval}, processor)
	a.worker.Start(ctx)

	go a.collectQueueMetrics(ctx, distributionRepo)

	resolver := distribution.NewResolver(catalogRepo, dc.MaxRetries)
	distributionService := distribution.NewService(distributionRepo, catalogRepo, resolver, auditor, processor, a.worker)
	distributionHandler := distribution.NewHandler(distributionService)

	identityHandler := identity.NewHandler()

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(authenticator))

			r.Route("/auth", identityHandler.RegisterProtectedRoutes)
			distributionHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleOperator))
				distributionHandler.RegisterOperatorRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) newDispatcher(catalogRepo *catalogpostgres.Repository, distributionRepo *distributionpostgres.Repository, subscribers catalog.SubscriberDirectory) (*distribution.Dispatcher, error) {
	renderer, err := distribution.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	mailer, err := email.NewClient(email.Config{
		Enabled:      a.config.Email.Enabled,
		SMTPHost:     a.config.Email.SMTPHost,
		SMTPPort:     a.config.Email.SMTPPort,
		SMTPUser:     a.config.Email.SMTPUser,
		SMTPPassword: a.config.Email.SMTPPassword,
		FromAddress:  a.config.Email.FromAddress,
		BatchSize:    a.config.Email.BatchSize,
		DialTimeout:  a.config.Email.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create email client: %w", err)
	}
	if !a.config.Email.Enabled {
		slog.Warn("email is disabled: email and media distributions will fail")
	}

	smsSender, err := sms.NewSender(sms.Config{
		Enabled:    a.config.SMS.Enabled,
		GatewayURL: a.config.SMS.GatewayURL,
		APIKey:     a.config.SMS.APIKey,
		From:       a.config.SMS.From,
		RateLimit:  a.config.SMS.RateLimit,
		Timeout:    a.config.SMS.Timeout,
	}, subscribers, renderer)
	if err != nil {
		return nil, fmt.Errorf("create sms sender: %w", err)
	}

	pushSender, err := push.NewSender(push.Config{
		Enabled:    a.config.Push.Enabled,
		GatewayURL: a.config.Push.GatewayURL,
		APIKey:     a.config.Push.APIKey,
		BatchSize:  a.config.Push.BatchSize,
		Timeout:    a.config.Push.Timeout,
	}, subscribers, renderer)
	if err != nil {
		return nil, fmt.Errorf("create push sender: %w", err)
	}

	socialSender, err := social.NewSender(social.Config{
		Enabled:     a.config.Social.Enabled,
		APIURL:      a.config.Social.APIURL,
		APIKey:      a.config.Social.APIKey,
		LinkBaseURL: a.config.Social.LinkBaseURL,
		RateLimit:   a.config.Social.RateLimit,
		Timeout:     a.config.Social.Timeout,
	}, renderer)
	if err != nil {
		return nil, fmt.Errorf("create social sender: %w", err)
	}

	webhookSender := webhook.NewSender(webhook.Config{
		Timeout:   a.config.Webhook.Timeout,
		UserAgent: a.config.Webhook.UserAgent,
	}, catalogRepo, distributionRepo)

	return distribution.NewDispatcher(
		partner.NewSender(catalogRepo, renderer),
		media.NewSender(mailer, renderer),
		email.NewSender(mailer, subscribers, renderer),
		pushSender,
		socialSender,
		smsSender,
		webhookSender,
	), nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// Cache misses fall through to Postgres, so Redis is not a readiness gate.
			ctxlog.FromContext(r.Context()).Warn("redis ping failed", "error", err)
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
