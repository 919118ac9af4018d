package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends understood by the repository factory.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// DefaultMaxUploadBytes mirrors the 16MB limit of the upload form.
const DefaultMaxUploadBytes = 16 << 20

type Server struct {
	Addr           string `yaml:"addr"`
	GinMode        string `yaml:"gin_mode"`
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// GRPCHealthAddr enables the gRPC health listener when set.
	GRPCHealthAddr  string        `yaml:"grpc_health_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Model struct {
	ConfigPath         string   `yaml:"config_path"`
	Paths              []string `yaml:"paths"`
	OnnxRuntimeLibrary string   `yaml:"onnxruntime_library"`
}

type Store struct {
	Backend        string        `yaml:"backend"`
	SupabaseURL    string        `yaml:"supabase_url"`
	SupabaseKey    string        `yaml:"supabase_key"`
	PostgresDSN    string        `yaml:"postgres_dsn"`
	SQLitePath     string        `yaml:"sqlite_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Auth struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	JWTAudience  string        `yaml:"jwt_audience"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type Redis struct {
	// Addr left empty disables the stats cache.
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StatsTTL time.Duration `yaml:"stats_ttl"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	Server   Server `yaml:"server"`
	Model    Model  `yaml:"model"`
	Store    Store  `yaml:"store"`
	Auth     Auth   `yaml:"auth"`
	Redis    Redis  `yaml:"redis"`
}

// Load reads the YAML file at path (a missing file is not an error), applies
// environment overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Server.GinMode, "GIN_MODE")
	setString(&cfg.Server.UploadDir, "UPLOAD_DIR")
	setString(&cfg.Server.GRPCHealthAddr, "GRPC_HEALTH_ADDR")
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxUploadBytes = n
		}
	}

	setString(&cfg.Model.ConfigPath, "MODEL_CONFIG_PATH")
	setString(&cfg.Model.OnnxRuntimeLibrary, "ONNXRUNTIME_LIB")
	if v := os.Getenv("MODEL_PATHS"); v != "" {
		cfg.Model.Paths = splitList(v)
	}

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.SupabaseURL, "SUPABASE_URL")
	setString(&cfg.Store.SupabaseKey, "SUPABASE_KEY")
	setString(&cfg.Store.PostgresDSN, "DATABASE_DSN")
	setString(&cfg.Store.SQLitePath, "SQLITE_PATH")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.JWTAudience, "JWT_AUDIENCE")
	if v := os.Getenv("SECURE_COOKIE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.SecureCookie = b
		}
	}

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.GinMode == "" {
		cfg.Server.GinMode = "release"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "static/uploads"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Model.ConfigPath == "" {
		cfg.Model.ConfigPath = "model/model_config.json"
	}
	if len(cfg.Model.Paths) == 0 {
		cfg.Model.Paths = []string{
			"model/model_mobilenetv2_full.onnx",
			"model/model_mobilenetv2_weights.onnx",
		}
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendSupabase
	}
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "appsampah.db"
	}
	if cfg.Store.RequestTimeout == 0 {
		cfg.Store.RequestTimeout = 10 * time.Second
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-secret"
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}

	if cfg.Redis.StatsTTL == 0 {
		cfg.Redis.StatsTTL = time.Minute
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}
	switch c.Store.Backend {
	case BackendSupabase:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseKey == "" {
			return errors.New("supabase backend requires store.supabase_url and store.supabase_key")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("postgres backend requires store.postgres_dsn")
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
