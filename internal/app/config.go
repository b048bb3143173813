package app

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/docbridge-backend/internal/platform/envutil"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

// Config is the service-level knobs. Component-level tuning (batch sizes,
// timeouts, provider credentials) stays with the component that reads it.
// Precedence: env > CONFIG_FILE yaml > defaults.
type Config struct {
	Port        string `yaml:"port"`
	LogMode     string `yaml:"log_mode"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	MetricsAddr string `yaml:"metrics_addr"`
	RunServer   bool   `yaml:"run_server"`
	RunWorker   bool   `yaml:"run_worker"`
}

func defaultConfig() Config {
	return Config{
		Port:        "8080",
		LogMode:     "development",
		Environment: "development",
		Version:     "dev",
		MetricsAddr: ":9464",
		RunServer:   true,
		RunWorker:   true,
	}
}

func LoadConfig(log *logger.Logger) Config {
	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config file unreadable (ignored)", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("config file invalid (ignored)", "path", path, "error", err)
		} else {
			log.Info("Config file applied", "path", path)
		}
	}

	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Environment = envutil.String("APP_ENV", cfg.Environment)
	cfg.Version = envutil.String("APP_VERSION", cfg.Version)
	cfg.MetricsAddr = envutil.String("METRICS_ADDR", cfg.MetricsAddr)
	cfg.RunServer = envutil.Bool("RUN_SERVER", cfg.RunServer)
	cfg.RunWorker = envutil.Bool("RUN_WORKER", cfg.RunWorker)
	return cfg
}
