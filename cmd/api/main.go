// @title                       Identity Service API
// @version                     1.0
// @description                 Login, registration and role administration.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/99minutos/identity-service/internal/api"
	"github.com/99minutos/identity-service/internal/api/handler"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
	"github.com/99minutos/identity-service/internal/core/service"
	"github.com/99minutos/identity-service/internal/infrastructure/db/mongo"
	"github.com/99minutos/identity-service/internal/infrastructure/db/postgres"
	"github.com/99minutos/identity-service/internal/infrastructure/db/redis"
	"github.com/99minutos/identity-service/internal/infrastructure/queue"
	"github.com/99minutos/identity-service/internal/infrastructure/security"
	"github.com/99minutos/identity-service/internal/pkg/config"
	"github.com/99minutos/identity-service/internal/pkg/validation"
	"github.com/99minutos/identity-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.MustLoad()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "identity-service",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, postgres.Config{
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		User:            cfg.DB.User,
		Password:        cfg.DB.Password,
		Database:        cfg.DB.Name,
		SSLMode:         cfg.DB.SSLMode,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		AcquireTimeout:  cfg.DB.AcquireTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("postgres unavailable")
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	checks := map[string]handler.Check{
		"postgres": db.PingContext,
	}

	tokens, err := security.NewTokenService(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("token service")
	}
	users := postgres.NewUserRepository(db, cfg.DB.AcquireTimeout)

	var sink ports.AuditRepository = queue.NewLogSink(log)
	if cfg.Mongo.URI != "" {
		client, mdb, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			log.Fatal().Err(err).Msg("mongo unavailable")
		}
		defer disconnectMongo(client, log)

		audit := mongo.NewAuditRepository(mdb)
		if err := audit.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("audit indexes")
		}
		sink = audit
		checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	}

	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, cfg.Audit.Buffer, sink, log)
	dispatcher.Start()

	authService := service.NewAuthService(
		users,
		security.NewBcryptHasher(cfg.BcryptCost),
		tokens,
		validation.New(),
		cfg.AccessTokenTTL,
		log,
	).WithAudit(dispatcher)

	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Fatal().Err(err).Msg("redis unavailable")
		}
		defer closeRedis(rdb, log)

		authService.WithLoginLimiter(redis.NewLoginLimiter(rdb, cfg.Login.MaxAttempts, cfg.Login.Lockout))
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	userService := service.NewUserService(users, dispatcher, log)

	if cfg.Admin.Username != "" {
		id, err := service.EnsureAdmin(ctx, authService, users, domain.RegisterInput{
			Username:        cfg.Admin.Username,
			Email:           cfg.Admin.Email,
			Password:        cfg.Admin.Password,
			ConfirmPassword: cfg.Admin.Password,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("bootstrap admin")
		}
		log.Info().Int64("user_id", id).Str("username", cfg.Admin.Username).Msg("admin account ready")
	}

	e := api.NewRouter(api.Dependencies{
		Auth:        authService,
		Users:       userService,
		Checks:      checks,
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("audit dispatcher shutdown")
	}
}

func disconnectMongo(client *mongodriver.Client, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("mongo disconnect")
	}
}

func closeRedis(client *goredis.Client, log zerolog.Logger) {
	if err := client.Close(); err != nil {
		log.Error().Err(err).Msg("redis close")
	}
}
