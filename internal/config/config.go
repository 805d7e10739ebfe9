package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Log           LogConfig                 `toml:"log"`
	Server        ServerConfig              `toml:"server"`
	Resolver      ResolverConfig            `toml:"resolver"`
	Catalog       CatalogConfig             `toml:"catalog"`
	Embedding     EmbeddingConfig           `toml:"embedding"`
	Transcription TranscriptionConfig       `toml:"transcription"`
	DB            DBConfig                  `toml:"db"`
	Trace         TraceConfig               `toml:"trace"`
	Channels      map[string]*ChannelConfig `toml:"channel"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type ServerConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	// TLSCert and TLSKey switch the gateway to HTTPS. Browsers only grant
	// microphone access to the web client over a secure origin.
	TLSCert string `toml:"tls_cert"`
	TLSKey  string `toml:"tls_key"`
}

type ResolverConfig struct {
	ActionThreshold float64  `toml:"action_threshold"`
	FileThreshold   float64  `toml:"file_threshold"`
	RequestTimeout  Duration `toml:"request_timeout"`
}

type CatalogConfig struct {
	// Path to a .toml or .yaml catalog. Empty selects the built-in catalog.
	Path string `toml:"path"`
}

type EmbeddingConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	MaxRetries int    `toml:"max_retries"`
	Cache      bool   `toml:"cache"`
	CacheSize  int    `toml:"cache_size"`
}

type TranscriptionConfig struct {
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

type DBConfig struct {
	// Path of the SQLite file. Empty disables history and the embedding cache.
	Path string `toml:"path"`
}

type TraceConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	URLPath        string `toml:"url_path"`
	MetricsURLPath string `toml:"metrics_url_path"`
	APIKey         string `toml:"api_key"`
}

type ChannelConfig struct {
	Enabled  bool              `toml:"enabled"`
	Type     string            `toml:"type"`
	Settings map[string]string `toml:"settings"`
}

// Duration decodes TOML strings such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:           ":7777",
			AllowedOrigins: []string{"*"},
		},
		Resolver: ResolverConfig{
			ActionThreshold: 0.6,
			FileThreshold:   0.5,
			RequestTimeout:  Duration{15 * time.Second},
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			MaxRetries: 2,
			Cache:      true,
			CacheSize:  10000,
		},
		Transcription: TranscriptionConfig{
			Model: "whisper-1",
		},
		DB: DBConfig{
			Path: defaultDBPath(),
		},
	}
}

// Load reads configuration from path, or from the user config directory when
// path is empty. A missing default file is not an error; a missing explicit
// file is.
func Load(path string) (*Config, error) {
	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = configPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = v
		}
		if c.Transcription.APIKey == "" {
			c.Transcription.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = v
		}
		if c.Transcription.BaseURL == "" {
			c.Transcription.BaseURL = v
		}
	}
	if v := os.Getenv("MURMUR_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MURMUR_CATALOG"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Resolver.ActionThreshold < 0 || c.Resolver.ActionThreshold >= 1 {
		errs = append(errs, fmt.Errorf("resolver.action_threshold must be in [0, 1), got %v", c.Resolver.ActionThreshold))
	}
	if c.Resolver.FileThreshold < 0 || c.Resolver.FileThreshold >= 1 {
		errs = append(errs, fmt.Errorf("resolver.file_threshold must be in [0, 1), got %v", c.Resolver.FileThreshold))
	}
	if c.Resolver.RequestTimeout.Duration < 0 {
		errs = append(errs, errors.New("resolver.request_timeout must not be negative"))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Embedding.MaxRetries < 0 {
		errs = append(errs, errors.New("embedding.max_retries must not be negative"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	return errors.Join(errs...)
}

func configPath() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "murmur", "config.toml")
}

func defaultDBPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "murmur", "murmur.db")
}
