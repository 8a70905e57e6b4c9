package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"datapipe/console/internal/jobs"
)

// Config represents the console configuration loaded from disk. Both the web
// service and the worker read the same file and use the keys they need.
type Config struct {
	RedisAddr         string
	RedisDB           int
	Queue             string
	Channel           string
	ListenAddr        string
	SettingsDSN       string
	CatalogDSN        string
	PoolSize          int
	ClaimTimeout      time.Duration
	HeartbeatInterval time.Duration
	Scripts           map[jobs.Type]string
}

// DefaultPath returns the default configuration path for the host OS.
func DefaultPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "datapipe", "console.conf"), nil
	case "linux", "darwin":
		return "/etc/datapipe/console.conf", nil
	default:
		return "", fmt.Errorf("unsupported OS for default config path: %s", runtime.GOOS)
	}
}

// Load reads the configuration from the provided path, or the default path
// when empty.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Config{Scripts: make(map[jobs.Type]string)}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("invalid config line: %q", line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "redis_addr":
			cfg.RedisAddr = value
		case "redis_db":
			cfg.RedisDB, err = strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("parse redis_db: %w", err)
			}
		case "queue":
			cfg.Queue = value
		case "channel":
			cfg.Channel = value
		case "listen_addr":
			cfg.ListenAddr = value
		case "settings_dsn":
			cfg.SettingsDSN = value
		case "catalog_dsn":
			cfg.CatalogDSN = value
		case "pool_size":
			cfg.PoolSize, err = strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("parse pool_size: %w", err)
			}
		case "claim_timeout":
			cfg.ClaimTimeout, err = time.ParseDuration(value)
			if err != nil {
				return Config{}, fmt.Errorf("parse claim_timeout: %w", err)
			}
		case "heartbeat_interval":
			cfg.HeartbeatInterval, err = time.ParseDuration(value)
			if err != nil {
				return Config{}, fmt.Errorf("parse heartbeat_interval: %w", err)
			}
		case "script_insert_data":
			cfg.Scripts[jobs.TypeInsertData] = value
		case "script_insert_table":
			cfg.Scripts[jobs.TypeInsertTable] = value
		case "script_pipeline":
			cfg.Scripts[jobs.TypePipeline] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("scan config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.PoolSize < 0 {
		return errors.New("pool_size must not be negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.Queue == "" {
		cfg.Queue = "background"
	}
	if cfg.Channel == "" {
		cfg.Channel = "background"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}
	if cfg.ClaimTimeout == 0 {
		cfg.ClaimTimeout = 5 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
}
