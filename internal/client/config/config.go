package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/chatkeeper/internal/cryptox"
	"github.com/dmitrijs2005/chatkeeper/internal/flagx"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	DatabasePath string    `json:"database_path" yaml:"database_path" env:"CHATKEEPER_DATABASE_PATH" env-default:"chatkeeper.db"`
	LogLevel     string    `json:"log_level"     yaml:"log_level"     env:"CHATKEEPER_LOG_LEVEL"     env-default:"info"`
	KDF          KDFConfig `json:"kdf"           yaml:"kdf"`
}

// KDFConfig holds the argon2id cost used for new registrations.
type KDFConfig struct {
	Time      uint32 `json:"time"       yaml:"time"       env:"CHATKEEPER_KDF_TIME"       env-default:"1"`
	MemoryKiB uint32 `json:"memory_kib" yaml:"memory_kib" env:"CHATKEEPER_KDF_MEMORY_KIB" env-default:"65536"`
	Threads   uint8  `json:"threads"    yaml:"threads"    env:"CHATKEEPER_KDF_THREADS"    env-default:"4"`
}

func (k KDFConfig) Params() cryptox.KDFParams {
	return cryptox.KDFParams{Time: k.Time, MemoryKiB: k.MemoryKiB, Threads: k.Threads}
}

// LoadConfig reads the configuration for the current process.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	var cfg Config

	if path := flagx.ConfigFileFlag(args); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := parseFlags(&cfg, args); err != nil {
		return nil, fmt.Errorf("config: flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.KDF.Time == 0 {
		errs = append(errs, errors.New("kdf.time must be positive"))
	}
	if c.KDF.Threads == 0 {
		errs = append(errs, errors.New("kdf.threads must be positive"))
	}
	if c.KDF.MemoryKiB < 8*uint32(c.KDF.Threads) {
		errs = append(errs, errors.New("kdf.memory_kib must be at least 8 per thread"))
	}
	return errors.Join(errs...)
}
