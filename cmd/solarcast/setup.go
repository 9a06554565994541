package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/solarcast/internal/config"
	"github.com/rewired-gh/solarcast/internal/features"
	"github.com/rewired-gh/solarcast/internal/inference"
	"github.com/rewired-gh/solarcast/internal/logger"
	"github.com/rewired-gh/solarcast/internal/store"
	"github.com/rewired-gh/solarcast/internal/store/firebasestore"
	"github.com/rewired-gh/solarcast/internal/store/redisstore"
)

// environment holds what every subcommand needs.
type environment struct {
	cfg     *config.Config
	loc     *time.Location
	raw     store.Store // backend without instrumentation
	store   store.Store
	builder *features.Builder
	engine  *inference.Engine
	schema  []string
}

func (e *environment) Close() {
	if e.store != nil {
		closeLogged("store", e.store.Close)
	}
}

// setup loads configuration, initializes logging, opens the store and loads
// the model artifact.
func setup(ctx context.Context) (*environment, error) {
	env, err := setupStore(ctx, false)
	if err != nil {
		return nil, err
	}

	engine, err := loadEngine(env.cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.engine = engine
	return env, nil
}

func setupStore(ctx context.Context, inMemory bool) (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if inMemory {
		cfg.Store.Backend = "memory"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", configPath)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	raw, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	builder := features.NewBuilder(cfg.Device.Fields)
	builder.Default = cfg.Realtime.DefaultFill

	return &environment{
		cfg:     cfg,
		loc:     loc,
		raw:     raw,
		store:   store.WithMetrics(raw, cfg.Store.Timeout),
		builder: builder,
		schema:  features.Schema,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "firebase":
		s, err := firebasestore.New(ctx, firebasestore.Config{
			DatabaseURL:     cfg.Store.DatabaseURL,
			Credentials:     cfg.StoreCredentials(),
			CredentialsFile: cfg.Store.CredentialsFile,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Using Firebase Realtime Database at %s", cfg.Store.DatabaseURL)
		return s, nil
	case "redis":
		s, err := redisstore.New(ctx, redisstore.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			Prefix:   cfg.Store.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Using Redis store at %s", cfg.Store.RedisAddr)
		return s, nil
	case "memory":
		logger.Warn("Using in-memory store; nothing is persisted")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func loadEngine(cfg *config.Config) (*inference.Engine, error) {
	artifact, err := inference.LoadArtifact(cfg.Model.ArtifactPath)
	if err != nil {
		return nil, err
	}
	if artifact.HorizonSteps > 0 && artifact.HorizonSteps != cfg.Realtime.HorizonSteps {
		logger.Warn("Model artifact forecasts %d steps ahead, configuration says %d",
			artifact.HorizonSteps, cfg.Realtime.HorizonSteps)
	}
	engine, err := artifact.Engine(features.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to build inference engine: %w", err)
	}
	logger.Info("Model loaded from %s (%s, %d features)", cfg.Model.ArtifactPath, artifact.Model.Type, len(features.Schema))
	return engine, nil
}
