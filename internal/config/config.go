package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strategy-desk/internal/models"
)

// Environment variables holding the backing store connection parameters.
const (
	EnvStoreURL     = "DESK_STORE_URL"
	EnvStoreAnonKey = "DESK_STORE_ANON_KEY"
)

// LoadConfig reads the JSON config at path, fills defaults and overlays the environment.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg, nil
}

// Default returns a config with every default applied, used when no file is given.
func Default() *models.Config {
	cfg := &models.Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg
}

// ApplyDefaults fills zero values with the service defaults. The simulated
// latencies match what the dashboard shows: 1s for strategy forms, 1.5s elsewhere.
func ApplyDefaults(cfg *models.Config) {
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	sim := &cfg.Simulation
	if sim.StrategySubmitMs == 0 {
		sim.StrategySubmitMs = 1000
	}
	if sim.ConnectionSubmitMs == 0 {
		sim.ConnectionSubmitMs = 1500
	}
	if sim.ConnectionTestMs == 0 {
		sim.ConnectionTestMs = 1500
	}
	if sim.PlanChangeMs == 0 {
		sim.PlanChangeMs = 1500
	}
	if sim.SupportSubmitMs == 0 {
		sim.SupportSubmitMs = 1500
	}

	if cfg.Metrics.StatsdPort == 0 {
		cfg.Metrics.StatsdPort = 8125
	}
	if cfg.Metrics.Prefix == "" {
		cfg.Metrics.Prefix = "strategy_desk"
	}
}

// ApplyEnv copies the backing store parameters from the environment. They never come from the file.
func ApplyEnv(cfg *models.Config) {
	cfg.Store.URL = os.Getenv(EnvStoreURL)
	cfg.Store.AnonKey = os.Getenv(EnvStoreAnonKey)
}
