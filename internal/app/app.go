package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"rainbow-buyers/internal/config"
	"rainbow-buyers/internal/cooldown"
	"rainbow-buyers/internal/database"
	"rainbow-buyers/internal/event"
	"rainbow-buyers/internal/handler"
	"rainbow-buyers/internal/mailer"
	"rainbow-buyers/internal/middleware"
	"rainbow-buyers/internal/repository"
	"rainbow-buyers/internal/repository/memory"
	"rainbow-buyers/internal/router"
	"rainbow-buyers/internal/service"
	"rainbow-buyers/internal/storage"
	"rainbow-buyers/internal/token"
	"rainbow-buyers/internal/websocket"
)

type App struct {
	server       *http.Server
	logger       *slog.Logger
	cleanupFuncs []func()
}

// stores is the persistence backend picked by STORE_DRIVER.
type stores struct {
	users  service.UserStore
	otps   service.OTPStore
	audit  service.AuditStore
	health handler.Pinger
	close  func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{logger: logger}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.cleanupFuncs = append(a.cleanupFuncs, st.close)

	limiter, closeLimiter, err := openCooldown(ctx, cfg, logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	a.cleanupFuncs = append(a.cleanupFuncs, closeLimiter)

	avatarStore, err := storage.New(cfg.AvatarRoot)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize avatar storage: %w", err)
	}
	webStore, err := storage.New(cfg.WebRoot)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize web root: %w", err)
	}

	issuer, err := token.NewIssuer(cfg.SecretKey)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	bus := event.NewBus(logger)
	auditEvents, unsubscribe := bus.Subscribe()

	otpService := service.NewOTPService(st.otps, limiter, cfg.OTPTTL, cfg.OTPResendCooldown, logger)
	authService := service.NewAuthService(st.users, otpService, issuer, newMailer(cfg, logger), bus, service.AuthConfig{
		AccessTTL:      cfg.AccessTokenTTL,
		RefreshTTL:     cfg.RefreshTokenTTL,
		VerifyEmailTTL: cfg.VerifyEmailTokenTTL,
		ResetTTL:       cfg.ResetTokenTTL,
		RequireOTP:     cfg.LoginRequireOTP,
		BcryptCost:     cfg.BcryptCost,
	}, logger)
	avatarService := service.NewAvatarService(avatarStore, authService, cfg.AvatarSize, cfg.AvatarMaxBytes)
	auditService := service.NewAuditService(st.audit, logger)

	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		auditService.Run(backgroundCtx, auditEvents)
	}()
	feed := websocket.NewHub(bus, cfg.CORSOrigins, logger)
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		feed.Run(backgroundCtx)
	}()
	otpService.StartCleanupTicker(backgroundCtx, cfg.OTPCleanupInterval)
	a.cleanupFuncs = append([]func(){func() {
		cancelBackground()
		<-auditDone
		<-feedDone
		unsubscribe()
	}}, a.cleanupFuncs...)

	cookies := middleware.Cookies{Secure: cfg.IsProduction()}
	resp := handler.NewResponder(logger, cfg.IsDevelopment())

	guardCfg := middleware.DefaultGuardConfig()
	guardCfg.LoginPath = cfg.GuardLoginPath
	guardCfg.HomePath = cfg.GuardHomePath
	guardCfg.AdminPrefix = cfg.GuardAdminPrefix

	appRouter := router.New(cfg, logger,
		middleware.NewAuthMiddleware(issuer, cookies),
		middleware.NewRouteGuard(guardCfg, issuer, cookies),
		router.Handlers{
			Auth:   handler.NewAuthHandler(authService, cookies, resp),
			Avatar: handler.NewAvatarHandler(avatarService, cookies, resp),
			Audit:  handler.NewAuditHandler(auditService, resp),
			Feed:   handler.NewAuditFeedHandler(feed, resp),
			Health: handler.NewHealthHandler(map[string]handler.Pinger{"store": st.health}, resp),
			Docs:   handler.NewDocsHandler("./docs/openapi.yaml", "Rainbow Buyers Authentication API", resp),
			Pages:  handler.NewPageHandler(webStore),
		})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return a, nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		logger.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.DatabaseURL, database.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return &stores{
			users:  repository.NewUserRepository(db.Pool),
			otps:   repository.NewOTPRepository(db.Pool),
			audit:  repository.NewAuditRepository(db.Pool),
			health: db,
			close:  db.Close,
		}, nil

	case config.StoreDriverMongo:
		logger.Info("connecting to MongoDB")
		m, err := database.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			_ = m.Close(ctx)
			return nil, fmt.Errorf("failed to ensure mongo indexes: %w", err)
		}
		return &stores{
			users:  repository.NewMongoUserRepository(m.DB.Collection(database.UsersCollection)),
			otps:   repository.NewMongoOTPRepository(m.DB.Collection(database.OTPsCollection)),
			audit:  repository.NewMongoAuditRepository(m.DB.Collection(database.AuditCollection)),
			health: m,
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = m.Close(closeCtx)
			},
		}, nil

	default:
		logger.Warn("using in-memory stores; data is lost on restart")
		return &stores{
			users:  memory.NewUserStore(),
			otps:   memory.NewOTPStore(),
			audit:  memory.NewAuditStore(),
			health: handler.PingFunc(func(context.Context) error { return nil }),
			close:  func() {},
		}, nil
	}
}

func openCooldown(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.Cooldown, func(), error) {
	if cfg.RedisURL == "" {
		return cooldown.NewMemory(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connected", "addr", opts.Addr)
	return cooldown.NewRedis(client, "rainbow:cooldown"), func() { _ = client.Close() }, nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) *mailer.Mailer {
	var sender mailer.Sender
	switch cfg.MailDriver {
	case config.MailDriverSMTP:
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		})
	case config.MailDriverBrevo:
		sender = mailer.NewBrevoSender(cfg.BrevoAPIKey, cfg.MailFrom, cfg.MailFromName)
	default:
		return mailer.New(mailer.NewLogSender(logger), cfg.BaseURL, cfg.MailFromName)
	}

	sender = mailer.NewBreakerSender(cfg.MailDriver, sender, 5, 30*time.Second, logger)
	return mailer.New(sender, cfg.BaseURL, cfg.MailFromName)
}

func (a *App) cleanup() {
	for _, fn := range a.cleanupFuncs {
		fn()
	}
	a.cleanupFuncs = nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	a.logger.Info("server stopped")
	return nil
}
