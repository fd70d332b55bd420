// Package app wires the document workflow service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docflow/internal/cache"
	"github.com/gogotex/docflow/internal/config"
	"github.com/gogotex/docflow/internal/database"
	"github.com/gogotex/docflow/internal/document/handler"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/document/service"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/internal/oidc"
	"github.com/gogotex/docflow/internal/storage"
	"github.com/gogotex/docflow/internal/tokens"
	"github.com/gogotex/docflow/pkg/logger"
	"github.com/gogotex/docflow/pkg/metrics"
	"github.com/gogotex/docflow/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App is a fully wired service.
type App struct {
	cfg     *config.Config
	started time.Time

	Router   *gin.Engine
	Engine   *workflow.Engine
	Queries  *service.Service
	Bus      *events.Bus
	Verifier middleware.Verifier

	repo     repository.Repository
	mongo    *mongo.Client
	redis    *redis.Client
	exporter *storage.PublishedExporter
	checks   map[string]handler.Check

	headless bool
	cancel   context.CancelFunc
	// relayed is closed when the Redis event relay stopped; nil without one.
	relayed chan struct{}
}

// Option adjusts wiring, mostly for tests.
type Option func(*App)

// WithRedis uses client instead of dialing cfg.Redis.
func WithRedis(client *redis.Client) Option {
	return func(a *App) { a.redis = client }
}

// WithVerifier skips verifier selection.
func WithVerifier(v middleware.Verifier) Option {
	return func(a *App) { a.Verifier = v }
}

// Headless skips verifier selection and the router. Command line tools use
// it to drive the engine against the configured backends.
func Headless() Option {
	return func(a *App) { a.headless = true }
}

// WithRepository uses repo instead of the configured store.
func WithRepository(repo repository.Repository) Option {
	return func(a *App) { a.repo = repo }
}

// New connects the configured backends and builds the router. Background
// workers run until Close.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, started: time.Now(), checks: map[string]handler.Check{}}
	for _, opt := range opts {
		opt(a)
	}
	bg, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	ok := false
	defer func() {
		if !ok {
			a.Close(context.Background())
		}
	}()

	profiles, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		return nil, err
	}

	a.Bus = events.NewBus()
	var c cache.Cache = cache.NewMemoryCache(cfg.Redis.CacheTTL)
	if a.redis != nil {
		c = cache.NewRedisCache(a.redis, "docflow", cfg.Redis.CacheTTL)
	}
	inv := cache.NewInvalidator(c)
	a.Bus.Subscribe(inv.Handle)
	if a.redis != nil {
		fanout := events.NewRedisFanout(a.redis, cfg.Redis.EventPrefix)
		a.Bus.Subscribe(fanout.Handler(bg))
		a.relayed = make(chan struct{})
		go func() {
			defer close(a.relayed)
			if err := fanout.Relay(bg, inv.Handle); err != nil && bg.Err() == nil {
				logger.Warnf("event relay stopped: %v", err)
			}
		}()
	}

	a.Engine = workflow.New(a.repo, a.Bus, cfg.Workflow.SnapshotPolicy)
	a.Queries = service.New(a.repo, c, profiles)

	if cfg.MinIO.Enabled() {
		store, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		a.exporter = storage.NewPublishedExporter(store)
		a.Bus.Subscribe(a.exporter.Handle)
		a.exporter.Start(bg)
		a.checks["minio"] = store.Ping
		logger.Infof("exporting published documents to bucket %s", cfg.MinIO.Bucket)
	}

	if !a.headless {
		if a.Verifier == nil {
			a.Verifier, err = NewVerifier(ctx, cfg.Auth)
			if err != nil {
				return nil, err
			}
		}
		a.Router = a.router(profiles)
	}
	ok = true
	logger.Infof("config summary: environment=%s mongo=%v redis=%v minio=%v snapshot_policy=%s",
		cfg.Server.Environment, a.mongo != nil, a.redis != nil, a.exporter != nil, cfg.Workflow.SnapshotPolicy)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (*identity.Profiles, error) {
	if a.repo != nil {
		return identity.NewProfiles(identity.NewMemoryProfiles()), nil
	}
	if a.cfg.MongoDB.URI == "" {
		logger.Warnf("DOCFLOW_MONGODB_URI not set, documents are kept in memory")
		a.repo = repository.NewMemoryRepo()
		return identity.NewProfiles(identity.NewMemoryProfiles()), nil
	}
	client, err := database.ConnectMongoWithRetry(ctx, a.cfg.MongoDB.URI, a.cfg.MongoDB.Timeout, 5, time.Second)
	if err != nil {
		return nil, err
	}
	a.mongo = client
	if err := database.RequireTransactions(ctx, client); err != nil {
		return nil, err
	}
	db :=client.Database(a.cfg.MongoDB.Database)
	repo, err := repository.NewMongoRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	a.checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	return identity.NewProfiles(identity.NewMongoProfileRepository(db.Collection("profiles"))), nil
}

func (a *App) openRedis(ctx context.Context) error {
	if a.redis == nil {
		if !a.cfg.Redis.Enabled() {
			return nil
		}
		a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr(), Password: a.cfg.Redis.Password, DB: a.cfg.Redis.DB})
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", a.cfg.Redis.Addr(), err)
	}
	client := a.redis
	a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return nil
}

// NewVerifier picks the bearer token verifier: an OIDC issuer first, then a
// shared HMAC secret, then the insecure verifier when explicitly allowed.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (middleware.Verifier, error) {
	switch {
	case cfg.OIDCIssuer != "":
		return oidc.NewVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClient)
	case cfg.JWTSecret != "":
		return tokens.NewHMACVerifier(cfg.JWTSecret)
	case cfg.AllowInsecureToken:
		logger.Warn("enabling insecure token verifier (integration mode)")
		return oidc.NewInsecureVerifier(), nil
	}
	return nil, errors.New("no token verifier configured: set DOCFLOW_AUTH_OIDC_ISSUER or DOCFLOW_AUTH_JWT_SECRET")
}

func (a *App) router(profiles *identity.Profiles) *gin.Engine {
	if a.cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(logger.L()), gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	handler.RegisterHealth(r, a.started, a.checks)
	handler.RegisterSwagger(r)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	authOpts := []middleware.AuthOption{middleware.WithProfiles(profiles)}
	if a.redis != nil {
		authOpts = append(authOpts, middleware.WithRevocations(tokens.NewRedisRevocations(a.redis)))
	}
	api := r.Group("/", middleware.AuthMiddleware(a.Verifier, authOpts...))
	if rl := a.cfg.RateLimit; rl.Enabled {
		if rl.UseRedis && a.redis != nil {
			api.Use(middleware.RedisRateLimitMiddleware(a.redis, rl.RPS, rl.Burst, time.Duration(rl.WindowSeconds)*time.Second))
		} else {
			api.Use(middleware.RateLimitMiddleware(rl.RPS, rl.Burst))
		}
	}
	handler.New(a.Engine, a.Queries, a.Bus).Register(api)
	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("docflow listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Infof("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

// Close stops background workers and disconnects the backends.
func (a *App) Close(ctx context.Context) {
	a.cancel()
	if a.exporter != nil {
		a.exporter.Wait()
	}
	if a.relayed != nil {
		select {
		case <-a.relayed:
		case <-ctx.Done():
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.mongo != nil {
		_ = a.mongo.Disconnect(ctx)
	}
}
