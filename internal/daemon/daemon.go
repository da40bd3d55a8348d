package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/moodi-app/moodi/internal/api"
	"github.com/moodi-app/moodi/internal/app/credit"
	"github.com/moodi-app/moodi/internal/app/engagement"
	"github.com/moodi-app/moodi/internal/app/mood"
	"github.com/moodi-app/moodi/internal/app/reflection"
	"github.com/moodi-app/moodi/internal/domain"
	"github.com/moodi-app/moodi/internal/health"
	"github.com/moodi-app/moodi/internal/infra/cache"
	"github.com/moodi-app/moodi/internal/infra/llm"
	"github.com/moodi-app/moodi/internal/infra/postgres"
	"github.com/moodi-app/moodi/internal/infra/sqlite"
)

// Version is set at build time.
var Version = "dev"

// Daemon is the core MOODI runtime. It wires together all services.
type Daemon struct {
	Config Config
	Log    *zap.Logger
	Store  domain.GameStore
	Cache  *cache.Redis
	LLM    *llm.Client
	Server *api.Server

	Game      *engagement.Service
	Moods     *mood.Service
	Generator *reflection.Generator
	Credit    *credit.Service
	Health    *health.Checker

	cancel context.CancelFunc
}

// New loads the configuration and creates a Daemon with all services wired.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithConfig(ctx, cfg, log)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config, log *zap.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	loc, _ := cfg.Location()

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	d := &Daemon{Config: cfg, Log: log, Store: store}

	// LLM provider
	d.LLM = llm.New(llm.Config{
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		ModerationModel: cfg.LLM.ModerationModel,
		Timeout:         parseDuration(cfg.LLM.Timeout, llm.DefaultTimeout),
	}, log)

	genOpts := []reflection.Option{reflection.WithLogger(log)}
	if cfg.Cache.Enabled {
		d.Cache = cache.NewRedis(cache.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      parseDuration(cfg.Cache.TTL, 24*time.Hour),
		})
		genOpts = append(genOpts, reflection.WithCache(d.Cache))
	}
	d.Generator = reflection.NewGenerator(d.LLM, genOpts...)

	var safety *reflection.SafetyChecker
	if cfg.LLM.Moderation {
		safety = reflection.NewSafetyChecker(d.LLM, d.LLM, log)
	}

	// Gamification
	d.Game = engagement.NewService(store, engagement.NewEngine(cfg.Game.Unlocks), log, loc)
	d.Credit = credit.NewService(store)
	d.Moods = mood.NewService(d.Generator, safety, d.Game, store, log)

	// Health checker
	checks := []health.Check{
		health.PingCheck("store", store),
		health.ConfigCheck("llm_api_key", cfg.LLM.APIKey),
	}
	if cfg.Store.Driver == DriverSQLite {
		checks = append(checks, health.DataDirCheck(cfg.Store.Dir))
	}
	if d.Cache != nil {
		checks = append(checks, health.PingCheck("cache", d.Cache))
	}
	d.Health = health.NewChecker(log, checks...)

	// API server
	d.Server = api.NewServer(api.Services{
		Game:      d.Game,
		Moods:     d.Moods,
		Generator: d.Generator,
		Ledger:    d.Credit,
	}, log)
	d.Server.SetVersion(Version)
	d.Server.SetHealth(d.Health)
	d.Server.SetRequestTimeout(parseDuration(cfg.API.RequestTimeout, 60*time.Second))
	d.Server.SetRateLimit(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst)

	// Enable Prometheus /metrics if configured
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	return d, nil
}

// OpenStore opens the configured game store.
func OpenStore(ctx context.Context, cfg StoreConfig) (domain.GameStore, error) {
	switch cfg.Driver {
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		db, err := sqlite.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	}
}

// Addr returns the listen address.
func (d *Daemon) Addr() string {
	return fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Health checker (always runs)
	go d.Health.Run(ctx)

	addr := d.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigCh:
			d.Log.Info("shutting down", zap.Stringer("signal", sig))
		case <-ctx.Done():
			d.Log.Info("shutting down", zap.Error(ctx.Err()))
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			d.Log.Warn("http shutdown", zap.Error(err))
		}
	}()

	d.Log.Info("MOODI serving",
		zap.String("addr", "http://"+addr),
		zap.String("version", Version),
		zap.String("store", d.Config.Store.Driver),
		zap.Bool("cache", d.Cache != nil),
		zap.Bool("metrics", d.Config.Telemetry.Prometheus),
		zap.String("timezone", d.Config.Game.Timezone),
	)

	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		return err
	}
	<-done
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Cache != nil {
		_ = d.Cache.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	_ = d.Log.Sync()
}
