// Server runs the trust and access layer HTTP API.
package main

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/audit"
	auditrepo "trust-access-layer/backend/internal/audit/repository"
	"trust-access-layer/backend/internal/config"
	"trust-access-layer/backend/internal/db"
	identityservice "trust-access-layer/backend/internal/identity/service"
	"trust-access-layer/backend/internal/lockout"
	"trust-access-layer/backend/internal/logging"
	"trust-access-layer/backend/internal/policy/engine"
	"trust-access-layer/backend/internal/ratelimit"
	"trust-access-layer/backend/internal/revocation"
	revocationrepo "trust-access-layer/backend/internal/revocation/repository"
	"trust-access-layer/backend/internal/security"
	"trust-access-layer/backend/internal/server"
	"trust-access-layer/backend/internal/server/middleware"
	sessionrepo "trust-access-layer/backend/internal/session/repository"
	sessionservice "trust-access-layer/backend/internal/session/service"
	"trust-access-layer/backend/internal/telemetry"
	oteltelemetry "trust-access-layer/backend/internal/telemetry/otel"
	"trust-access-layer/backend/internal/telemetry/producer"
	userrepo "trust-access-layer/backend/internal/user/repository"
	vaultregistry "trust-access-layer/backend/internal/vault/registry"
	vaultrepo "trust-access-layer/backend/internal/vault/repository"
	vaultservice "trust-access-layer/backend/internal/vault/service"
)

// vaultSweepInterval is how often idle vault scopes are checked.
const vaultSweepInterval = time.Minute

func main() {
	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			newTelemetry,
			newEmitter,
			newPool,
			newRedis,
			newTokenProvider,
			newAuditLogger,
			newRevocationStore,
			newSessionRegistry,
			newUserRepository,
			newAuthService,
			newVaultRegistry,
			newVaultService,
			newPolicyEvaluator,
			newRateLimiter,
			newRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(startBackground, startHTTPServer),
	)
	app.Run()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return nil, err
	}
	if cfg.Env != "development" && cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*oteltelemetry.Providers, error) {
	providers, err := oteltelemetry.NewProviders(context.Background(), cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}
	providers.SetGlobal()
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// Let in-flight async emits finish before the exporters go away.
			time.Sleep(telemetry.ShutdownDrainDuration)
			if err := providers.Shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown", zap.Error(err))
			}
			return nil
		},
	})
	return providers, nil
}

// newEmitter fans security events out to OTel logs, the event counter and, when brokers
// are configured, Kafka.
func newEmitter(lc fx.Lifecycle, cfg *config.Config, providers *oteltelemetry.Providers, logger *zap.Logger) (telemetry.EventEmitter, error) {
	emitters := telemetry.MultiEmitter{oteltelemetry.NewEventEmitter(providers.LoggerProvider)}
	metrics, err := oteltelemetry.NewMetricsEmitter(providers.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("metrics emitter: %w", err)
	}
	emitters = append(emitters, metrics)

	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		var p producer.Producer
		p, err = producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		emitters = append(emitters, p)
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.Close() }})
		logger.Info("security events published to kafka", zap.String("topic", cfg.TelemetryKafkaTopic))
	}
	return emitters, nil
}

func newPool(lc fx.Lifecycle, cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

// newRedis returns nil when REDIS_URL is unset; callers then keep state in process.
func newRedis(lc fx.Lifecycle, cfg *config.Config) (redis.UniversalClient, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	return client, nil
}

// newTokenProvider loads the configured key pair. Outside production an ephemeral key is
// generated when none is configured; tokens then do not survive a restart.
func newTokenProvider(cfg *config.Config, logger *zap.Logger) (*security.TokenProvider, error) {
	var (
		signer crypto.Signer
		pub    crypto.PublicKey
		err    error
	)
	switch {
	case cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "":
		signer, pub, err = security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	case cfg.Env == "production":
		return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required in production")
	default:
		logger.Warn("no JWT key pair configured; using an ephemeral key")
		signer, pub, err = security.GenerateEphemeralKeyPair()
	}
	if err != nil {
		return nil, fmt.Errorf("jwt keys: %w", err)
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL()), nil
}

func newAuditLogger(pool *pgxpool.Pool, emitter telemetry.EventEmitter, logger *zap.Logger) *audit.Logger {
	return audit.NewLogger(auditrepo.NewPostgresRepository(pool), middleware.ClientIP, emitter, logger)
}

// newRevocationStore backs the durable store with Redis when configured, otherwise with
// an in-process blacklist.
func newRevocationStore(pool *pgxpool.Pool, rdb redis.UniversalClient, logger *zap.Logger) *revocation.Store {
	var cache revocation.Cache = revocation.NewBlacklist()
	if rdb != nil {
		cache = revocation.NewRedisCache(rdb)
	}
	return revocation.NewStore(revocationrepo.NewPostgresRepository(pool), cache, logger)
}

func newSessionRegistry(pool *pgxpool.Pool, store *revocation.Store, auditLogger *audit.Logger, logger *zap.Logger) *sessionservice.Registry {
	return sessionservice.NewRegistry(sessionrepo.NewPostgresRepository(pool), store, auditLogger, logger)
}

func newUserRepository(pool *pgxpool.Pool) *userrepo.PostgresRepository {
	return userrepo.NewPostgresRepository(pool)
}

func newAuthService(
	cfg *config.Config,
	users *userrepo.PostgresRepository,
	sessions *sessionservice.Registry,
	store *revocation.Store,
	tokens *security.TokenProvider,
	auditLogger *audit.Logger,
) *identityservice.AuthService {
	policy := lockout.NewPolicy(users, cfg.LockoutThreshold, cfg.LockoutCooldownDuration())
	return identityservice.NewAuthService(users, policy, sessions, store, security.NewHasher(cfg.BcryptCost), tokens, auditLogger)
}

func newVaultRegistry(cfg *config.Config, logger *zap.Logger) *vaultregistry.Registry {
	return vaultregistry.New(cfg.VaultUnlockTTLDuration(), logger)
}

func newVaultService(cfg *config.Config, pool *pgxpool.Pool, keys *vaultregistry.Registry, auditLogger *audit.Logger) *vaultservice.Service {
	return vaultservice.NewService(vaultrepo.NewPostgresRepository(pool), keys, security.NewHasher(cfg.BcryptCost), cfg.VaultKDFIterations, auditLogger)
}

// accessPolicy is the evaluator used by RequireAction and the health probe.
type accessPolicy interface {
	engine.Evaluator
	HealthCheck(ctx context.Context) error
}

// newPolicyEvaluator compiles the built-in policy, or the POLICY_FILE policy which is then
// watched and hot-reloaded.
func newPolicyEvaluator(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (accessPolicy, error) {
	if cfg.PolicyFile == "" {
		ev, err := engine.NewOPAEvaluator(context.Background(), "")
		if err != nil {
			return nil, err
		}
		return ev, nil
	}
	ev, err := engine.NewReloadingEvaluator(context.Background(), cfg.PolicyFile, logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := ev.Watch(ctx); err != nil {
					logger.Error("policy: watcher stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return ev, nil
}

// rateLimitBackend is the limiter in use and, for the in-process window, the value whose
// cleanup loop must run.
type rateLimitBackend struct {
	limiter ratelimit.Limiter
	local   *ratelimit.SlidingWindow
}

func newRateLimiter(cfg *config.Config, rdb redis.UniversalClient, emitter telemetry.EventEmitter, logger *zap.Logger) (*middleware.RateLimiter, rateLimitBackend, error) {
	table, err := ratelimit.DefaultTable().WithOverrides(cfg.RateLimitOverrides())
	if err != nil {
		return nil, rateLimitBackend{}, err
	}
	var backend rateLimitBackend
	if rdb != nil {
		backend.limiter = ratelimit.NewRedisWindow(rdb)
	} else {
		backend.local = ratelimit.NewSlidingWindow(table.MaxWindow())
		backend.limiter = backend.local
	}
	return middleware.NewRateLimiter(backend.limiter, table, emitter, logger), backend, nil
}

func newRouter(
	cfg *config.Config,
	pool *pgxpool.Pool,
	tokens *security.TokenProvider,
	store *revocation.Store,
	sessions *sessionservice.Registry,
	authSvc *identityservice.AuthService,
	vault *vaultservice.Service,
	evaluator accessPolicy,
	limiter *middleware.RateLimiter,
	emitter telemetry.EventEmitter,
	logger *zap.Logger,
) (*gin.Engine, error) {
	trusted, err := cfg.TrustedProxyNets()
	if err != nil {
		return nil, err
	}
	return server.NewRouter(server.Deps{
		ServiceName:         cfg.ServiceName,
		Tokens:              tokens,
		Revocations:         store,
		Sessions:            sessions,
		Auth:                authSvc,
		Vault:               vault,
		Policy:              evaluator,
		RateLimiter:         limiter,
		AuditRepo:           auditrepo.NewPostgresRepository(pool),
		Emitter:             emitter,
		TrustedProxies:      trusted,
		HealthPinger:        pool,
		HealthPolicyChecker: evaluator,
		Logger:              logger,
	}), nil
}

// startBackground runs the session sweeper, the vault idle sweeper and, for the in-process
// limiter, window cleanup until shutdown.
func startBackground(
	lc fx.Lifecycle,
	cfg *config.Config,
	sessions *sessionservice.Registry,
	keys *vaultregistry.Registry,
	backend rateLimitBackend,
	logger *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sessionservice.NewSweeper(sessions, cfg.SweepEvery(), logger).Run(ctx)
			go keys.Run(ctx, vaultSweepInterval)
			if backend.local != nil {
				go backend.local.Run(ctx, cfg.RateLimitCleanupEvery(), logger)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg *config.Config, logger *zap.Logger) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})
			go func() {
				defer close(done)
				logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.Run(runCtx, cfg.HTTPAddr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
