// Package app wires configuration into the components shared by the murmur
// commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"murmur/internal/catalog"
	"murmur/internal/config"
	"murmur/internal/db"
	"murmur/internal/embedding"
	"murmur/internal/history"
	"murmur/internal/logger"
	"murmur/internal/resolver"
	"murmur/internal/transcribe"
)

// ConfigPath is set by the root --config flag.
var ConfigPath string

// LoadConfig reads the configuration and applies its log level.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

// LoadCatalog reads the catalog at path, or validates the built-in one when
// path is empty.
func LoadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		c := catalog.Default()
		return c, c.Validate()
	}
	return catalog.Load(path)
}

// Env holds the components built from one configuration.
type Env struct {
	Config      *config.Config
	DB          *db.DB
	Resolver    *resolver.Resolver
	History     *history.Store
	Transcriber transcribe.Transcriber
}

// Open builds the resolver and its collaborators. The database is optional;
// without it there is no embedding cache and no history.
func Open(ctx context.Context, cfg *config.Config) (*Env, error) {
	cat, err := LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	env := &Env{Config: cfg}
	if cfg.DB.Path != "" {
		database, err := db.Open(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := database.Migrate(); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		env.DB = database
		env.History = history.NewStore(database)
	}

	ec := cfg.Embedding
	var provider embedding.Provider = embedding.NewOpenAI(ec.BaseURL, ec.APIKey, ec.Model, ec.Dimensions, ec.MaxRetries)
	if ec.Cache && env.DB != nil {
		provider = embedding.NewCachedProvider(provider, env.DB, ec.CacheSize)
		slog.Info("embedding cache enabled", "size", ec.CacheSize)
	}

	env.Resolver, err = resolver.New(ctx, cat, provider,
		resolver.WithActionThreshold(cfg.Resolver.ActionThreshold),
		resolver.WithFileThreshold(cfg.Resolver.FileThreshold),
	)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("building resolver: %w", err)
	}

	tc := cfg.Transcription
	env.Transcriber = transcribe.NewOpenAI(tc.BaseURL, tc.APIKey, tc.Model, tc.Language, ec.MaxRetries)
	return env, nil
}

func (e *Env) Close() error {
	if e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

// Resolve resolves utterance and records the outcome under source.
func (e *Env) Resolve(ctx context.Context, source, utterance string) (resolver.Resolution, error) {
	res, err := e.Resolver.Resolve(ctx, utterance)
	if herr := e.History.Record(ctx, source, utterance, res, err); herr != nil {
		slog.Warn("recording resolution", "error", herr)
	}
	return res, err
}

// ErrorBody is the JSON shape printed for a failed resolution.
func ErrorBody(err error) map[string]string {
	kind := "internal"
	var rerr *resolver.Error
	if errors.As(err, &rerr) {
		kind = string(rerr.Kind)
	}
	return map[string]string{"error_kind": kind, "message": err.Error()}
}
