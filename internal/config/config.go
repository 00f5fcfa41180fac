// Package config loads packer configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/luxfi/packer/internal/logging"
	"github.com/luxfi/packer/lattice"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PACKER_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Scheme kinds.
const (
	SchemePaillier = "paillier"
	SchemeAffine   = "affine"
	SchemeLattice  = "lattice"
)

// Config is the full packer configuration.
type Config struct {
	Scheme      SchemeConfig   `koanf:"scheme"`
	Fields      []string       `koanf:"fields"`
	Compression bool           `koanf:"compression"`
	Worker      WorkerConfig   `koanf:"worker"`
	Redis       RedisConfig    `koanf:"redis"`
	Storage     StorageConfig  `koanf:"storage"`
	Metrics     MetricsConfig  `koanf:"metrics"`
	Logging     logging.Config `koanf:"logging"`
}

// SchemeConfig selects and sizes the encryption scheme.
type SchemeConfig struct {
	Kind    string `koanf:"kind"`
	KeyBits int    `koanf:"key_bits"`
	Rounds  int    `koanf:"rounds"`
	LogN    int    `koanf:"log_n"`
	Q       uint64 `koanf:"q"`
	LogT    int    `koanf:"log_t"`
}

// Lattice returns the lattice parameter literal described by the config.
func (s SchemeConfig) Lattice() lattice.ParametersLiteral {
	return lattice.ParametersLiteral{LogN: s.LogN, Q: s.Q, LogT: s.LogT}
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Count           int           `koanf:"count"`
	Queue           string        `koanf:"queue"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// StorageConfig selects blob storage.
type StorageConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// MetricsConfig configures the metrics and health server.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Scheme: SchemeConfig{
			Kind:    SchemePaillier,
			KeyBits: 1024,
			Rounds:  5,
			LogN:    lattice.PN11QP54T20.LogN,
			Q:       lattice.PN11QP54T20.Q,
			LogT:    lattice.PN11QP54T20.LogT,
		},
		Compression: true,
		Worker: WorkerConfig{
			Count:           4,
			Queue:           "default",
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Path:     "/tmp/packer-storage",
			Compress: true,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Logging: logging.Default(),
	}
}

// Load reads the YAML file at path, if path is not empty, then applies
// PACKER_* environment overrides on top of the defaults.
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix:
//
//	PACKER_REDIS_ADDR             -> redis.addr
//	PACKER_WORKER_SHUTDOWN_TIMEOUT -> worker.shutdown_timeout
//	PACKER_FIELDS=1000,1000,255   -> fields
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate checks the configuration for values no component could use.
func (c *Config) Validate() error {
	var errs []error

	switch c.Scheme.Kind {
	case SchemePaillier, SchemeAffine:
		if c.Scheme.KeyBits < 64 {
			errs = append(errs, fmt.Errorf("scheme.key_bits must be at least 64, got %d", c.Scheme.KeyBits))
		}
	case SchemeLattice:
		if err := c.Scheme.Lattice().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scheme.log_n, scheme.q, scheme.log_t: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown scheme.kind %q", c.Scheme.Kind))
	}

	if _, err := c.FieldBounds(); err != nil {
		errs = append(errs, err)
	}
	if c.Worker.Count < 1 {
		errs = append(errs, fmt.Errorf("worker.count must be at least 1, got %d", c.Worker.Count))
	}
	if c.Worker.Queue == "" {
		errs = append(errs, errors.New("worker.queue must not be empty"))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	return errors.Join(errs...)
}

// FieldBounds parses the decimal field bounds.
func (c *Config) FieldBounds() ([]*big.Int, error) {
	bounds := make([]*big.Int, len(c.Fields))
	for i, s := range c.Fields {
		b, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
		if !ok || b.Sign() < 0 {
			return nil, fmt.Errorf("fields[%d]: %q is not a non-negative integer", i, s)
		}
		bounds[i] = b
	}
	return bounds, nil
}
