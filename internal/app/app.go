package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go-auth-service/internal/config"
	"go-auth-service/internal/database"
	"go-auth-service/internal/email"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/password"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/repository/memory"
	"go-auth-service/internal/router"
	"go-auth-service/internal/service"
	"go-auth-service/internal/token"
)

type App struct {
	server       *http.Server
	sweeper      *service.LedgerSweeper
	cleanupFuncs []func()
}

type ledgerStore interface {
	service.TokenLedger
	service.LedgerSweepStore
}

type stores struct {
	users  service.UserStore
	ledger ledgerStore
	audit  service.AuditStore
	health func(context.Context) error
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return NewWithConfig(context.Background(), cfg)
}

// NewWithConfig wires every component from cfg. Callers own the returned App
// and must call Close when they do not call Run.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}

	st, err := app.openStores(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	mailer := app.newMailer(cfg)

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		PurposeSecret: cfg.JWTPurposeSecret,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	credentialService, err := service.NewCredentialService(
		st.users,
		st.ledger,
		password.NewHasher(cfg.BcryptCost),
		codec,
		mailer,
		service.CredentialConfig{
			VerificationTTL:     cfg.VerificationTokenTTL,
			ResetTTL:            cfg.ResetTokenTTL,
			PasswordHistorySize: cfg.PasswordHistorySize,
			AppBaseURL:          cfg.AppBaseURL,
		},
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize credential service: %w", err)
	}
	auditService := service.NewAuditService(st.audit)
	app.sweeper = service.NewLedgerSweeper(st.ledger, cfg.LedgerSweepInterval, cfg.LedgerUsedRetention)

	authMiddleware := middleware.NewAuthMiddleware(credentialService)
	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:   handler.NewAuthHandler(credentialService, auditService),
		User:   handler.NewUserHandler(credentialService),
		Audit:  handler.NewAuditHandler(auditService),
		Docs:   handler.NewDocsHandler(cfg.OpenAPISpecPath),
		Health: st.health,
	})

	app.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return app, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return stores{
			users:  memory.NewUserStore(),
			ledger: memory.NewLedger(time.Now),
			audit:  memory.NewAuditLog(),
		}, nil
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, database.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ConnectAttempts: cfg.DBConnectAttempts,
	})
	if err != nil {
		return stores{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	if err := db.Migrate(ctx); err != nil {
		return stores{}, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database ready")

	return stores{
		users:  repository.NewUserRepository(db.Pool),
		ledger: repository.NewLedgerRepository(db.Pool, time.Now),
		audit:  repository.NewAuditRepository(db.Pool),
		health: db.Health,
	}, nil
}

func (a *App) newMailer(cfg *config.Config) email.Sender {
	switch cfg.EmailDriver {
	case config.EmailDriverSMTP:
		slog.Info("email via SMTP", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		})
	case config.EmailDriverKafka:
		slog.Info("email via Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		sender := email.NewKafkaSender(email.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Username: cfg.KafkaUsername,
			Password: cfg.KafkaPassword,
		})
		a.cleanupFuncs = append(a.cleanupFuncs, func() {
			if err := sender.Close(); err != nil {
				slog.Warn("kafka writer close failed", "error", err)
			}
		})
		return sender
	default:
		return email.NewLogSender(slog.Default())
	}
}

// Handler exposes the routed HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		a.sweeper.Run(sweepCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown failed: %w", err)
	}

	cancelSweep()
	<-sweepDone
	a.Close()

	if runErr == nil {
		slog.Info("server stopped")
	}
	return runErr
}

// Close releases the database pool and email writers in reverse order of
// acquisition.
func (a *App) Close() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}
