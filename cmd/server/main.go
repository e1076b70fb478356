package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/config"
	"github.com/iliyamo/newsroom-auth/internal/database"
	"github.com/iliyamo/newsroom-auth/internal/handler"
	"github.com/iliyamo/newsroom-auth/internal/mfa"
	"github.com/iliyamo/newsroom-auth/internal/queue"
	"github.com/iliyamo/newsroom-auth/internal/rbac"
	"github.com/iliyamo/newsroom-auth/internal/repository"
	"github.com/iliyamo/newsroom-auth/internal/router"
	"github.com/iliyamo/newsroom-auth/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db, cfg.DB.Driver); err != nil {
		return err
	}

	catalog, err := rbac.DefaultCatalog()
	if err != nil {
		return err
	}
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	roles := repository.NewRoleRepo(db)
	if err := roles.Sync(ctx, catalog); err != nil {
		return err
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	sender := newSender(cfg, logger)
	var mailer service.Mailer = queue.DirectPublisher{Sender: sender}
	if cfg.Mail.AMQPURL != "" {
		mailer = queue.NewPublisher(cfg.Mail.AMQPURL, cfg.Mail.Queue, logger)
		if cfg.Mail.ConsumerEnabled {
			consumer := queue.NewConsumer(cfg.Mail.AMQPURL, cfg.Mail.Queue, sender, logger)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("mail consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:      []byte(cfg.JWTSecret),
		AccessTTL:   cfg.AccessTTL,
		RememberTTL: cfg.RememberTTL,
		SessionTTL:  cfg.SessionTTL,
	}, users, tokens, roles, logger)
	mfaSvc := service.NewMFAService(mfa.NewEngine(cfg.MFAIssuer), users, logger)

	authCfg := service.DefaultAuthConfig()
	authCfg.BcryptCost = cfg.BcryptCost
	authCfg.DefaultRole = cfg.DefaultRole
	authCfg.BaseURL = cfg.BaseURL
	authSvc := service.NewAuthService(authCfg, users, roles, tokenSvc, mfaSvc, mailer, logger)
	roleSvc := service.NewRoleService(roles, users, logger)
	userSvc := service.NewUserService(users, roles, tokenSvc, logger)

	if cfg.BootstrapAdminEmail != "" {
		bootstrapAdmin(ctx, cfg.BootstrapAdminEmail, users, roleSvc, logger)
	}
	go cleanupTokens(ctx, tokenSvc, cfg.TokenCleanupInterval, cfg.TokenRetention, logger)

	authHandler := handler.NewAuthHandler(authSvc, tokenSvc, mfaSvc,
		handler.CookieConfig{Secure: cfg.CookieSecure()}, logger)
	authHandler.Timeout = cfg.RequestTimeout
	roleHandler := handler.NewRoleHandler(roleSvc, logger)
	roleHandler.Timeout = cfg.RequestTimeout
	userHandler := handler.NewUserHandler(userSvc, logger)
	userHandler.Timeout = cfg.RequestTimeout

	e := router.New(router.Deps{
		Auth:      authHandler,
		Roles:     roleHandler,
		Users:     userHandler,
		Verifier:  tokenSvc,
		DB:        db,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newSender(cfg config.Config, logger *zap.Logger) queue.Sender {
	if cfg.Mail.SMTPHost != "" {
		return queue.SMTPSender{
			Host: cfg.Mail.SMTPHost,
			Port: cfg.Mail.SMTPPort,
			User: cfg.Mail.SMTPUser,
			Pass: cfg.Mail.SMTPPass,
			From: cfg.Mail.From,
		}
	}
	return queue.LogSender{Logger: logger, IncludeLinks: cfg.IsDev()}
}

// bootstrapAdmin makes an existing account the super admin.  The account
// must have registered first.
func bootstrapAdmin(ctx context.Context, email string, users *repository.UserRepo, roles *service.RoleService, logger *zap.Logger) {
	u, err := users.GetByEmail(ctx, email)
	if err != nil {
		logger.Warn("bootstrap admin not found", zap.String("email", email), zap.Error(err))
		return
	}
	if _, err := roles.Assign(ctx, u.ID, "super_admin", true); err != nil {
		logger.Error("bootstrap admin failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		return
	}
	logger.Info("bootstrap admin assigned", zap.Uint64("user_id", u.ID))
}

func cleanupTokens(ctx context.Context, tokens *service.TokenService, every, retention time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := tokens.Cleanup(ctx, retention)
			if err != nil {
				logger.Warn("token cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("stale refresh tokens deleted", zap.Int64("count", n))
			}
		}
	}
}
