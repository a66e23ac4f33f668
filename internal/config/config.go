// Package config holds the operator configuration: connection settings taken from the
// environment (optionally a .env file) and the YAML plan describing what each command does.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "sayu-ops.yaml"

// DatabaseConfig describes one Postgres endpoint and its pool tuning.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// SupabaseConfig is the PostgREST endpoint of the target project.
type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"-"`
}

type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name"`
	BaseURL   string `yaml:"base_url"`
}

type MetConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Concurrency    int           `yaml:"concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	TokenSecret string   `yaml:"-"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Config collects every configuration leaf.
type Config struct {
	Source     DatabaseConfig   `yaml:"source"`
	Target     DatabaseConfig   `yaml:"target"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary"`
	Met        MetConfig        `yaml:"met"`
	Redis      RedisConfig      `yaml:"redis"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Plan       MigrationPlan    `yaml:"migration"`
	Probe      ProbePlan        `yaml:"probe"`
	Audit      AuditPlan        `yaml:"audit"`
	RLS        RLSPlan          `yaml:"rls"`
}

func Default() *Config {
	return &Config{
		Source: DatabaseConfig{
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: 5 * time.Minute,
			MaxConnIdleTime: time.Minute,
		},
		Target: DatabaseConfig{
			MaxConns:        8,
			MinConns:        1,
			MaxConnLifetime: 5 * time.Minute,
			MaxConnIdleTime: time.Minute,
		},
		Cloudinary: CloudinaryConfig{
			BaseURL: "https://res.cloudinary.com",
		},
		Met: MetConfig{
			BaseURL:        "https://collectionapi.metmuseum.org/public/collection/v1",
			RequestsPerSec: 10,
			Concurrency:    4,
			Timeout:        15 * time.Second,
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{Level: "info"},
		Plan: MigrationPlan{
			BatchSize:  500,
			OnConflict: ConflictSkip,
		},
		Probe: ProbePlan{
			Concurrency:    8,
			RequestsPerSec: 20,
			Timeout:        10 * time.Second,
		},
	}
}

// Load reads the YAML file at path on top of Default and then applies environment
// overrides. A missing file is only an error when the path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadEnv loads a dotenv file into the process environment. A missing file is ignored;
// variables already set are not overwritten.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("SOURCE_DATABASE_URL", "DATABASE_URL", "RAILWAY_DATABASE_URL"); v != "" {
		cfg.Source.URL = v
	}
	if v := firstEnv("TARGET_DATABASE_URL", "SUPABASE_DB_URL"); v != "" {
		cfg.Target.URL = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Supabase.URL = v
	}
	if v := firstEnv("SUPABASE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		cfg.Supabase.ServiceKey = v
	}
	if v := os.Getenv("CLOUDINARY_CLOUD_NAME"); v != "" {
		cfg.Cloudinary.CloudName = v
	}
	if v := os.Getenv("MET_API_BASE_URL"); v != "" {
		cfg.Met.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OPS_TOKEN_SECRET"); v != "" {
		cfg.Server.TokenSecret = v
	}
	if v := os.Getenv("OPS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate returns human-readable problems with the configuration. An empty slice means
// the configuration is usable; which fields are required depends on the command, so
// connection settings are checked by the commands themselves.
func Validate(cfg *Config) []string {
	var problems []string
	problems = append(problems, cfg.Plan.validate()...)
	problems = append(problems, cfg.Probe.validate()...)
	problems = append(problems, cfg.Audit.validate()...)
	problems = append(problems, cfg.RLS.validate()...)
	if cfg.Met.Concurrency < 1 {
		problems = append(problems, "met.concurrency must be at least 1")
	}
	if cfg.Met.RequestsPerSec <= 0 {
		problems = append(problems, "met.requests_per_sec must be positive")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	return problems
}
