// Package config loads agent configuration from YAML plus .env plus
// environment variable overrides, the same layering the teacher's
// loader used for its own settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EndpointsSelection controls how dwn.SendToDID (and Agent.SendToDID)
// iterates a DID document's #dwn endpoints. The Sync Engine does not read
// it; it queues work for every endpoint.
type EndpointsSelection string

const (
	// EndpointsFirstSuccess stops at the first endpoint that succeeds,
	// per §4.6's remote-send rule.
	EndpointsFirstSuccess EndpointsSelection = "first-success"
	// EndpointsAll dispatches to every published endpoint regardless of
	// earlier successes, for callers that want full replication.
	EndpointsAll EndpointsSelection = "all"
)

// AgentConfig is the agent's full runtime configuration.
type AgentConfig struct {
	DID string `yaml:"did"`

	VaultPath string `yaml:"vault_path"`
	SyncDBPath string `yaml:"sync_db_path"`

	KeyDerivationWorkFactor int                `yaml:"key_derivation_work_factor"`
	IndexTTL                time.Duration      `yaml:"index_ttl"`
	SyncInterval            time.Duration      `yaml:"sync_interval"`
	EndpointsSelection      EndpointsSelection `yaml:"endpoints_selection"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"
}

// defaultConfig mirrors §6 Configuration's documented defaults.
func defaultConfig() AgentConfig {
	return AgentConfig{
		VaultPath:               "agent.vault",
		SyncDBPath:              "agent.sync.db",
		KeyDerivationWorkFactor: 210000,
		IndexTTL:                2 * time.Hour,
		SyncInterval:            30 * time.Second,
		EndpointsSelection:      EndpointsFirstSuccess,
		LogLevel:                "info",
		LogFormat:               "json",
	}
}

// Load reads configPath (YAML) over the documented defaults, then loads
// a .env file (if present, ignored otherwise) and applies environment
// variable overrides on top — the same three-layer precedence the
// teacher's LoadEnv/LoadAgentConfig pair used, unified into one call.
func Load(configPath string) (*AgentConfig, error) {
	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	_ = godotenv.Load()

	cfg.DID = getEnv("AGENT_DID", cfg.DID)
	cfg.VaultPath = getEnv("AGENT_VAULT_PATH", cfg.VaultPath)
	cfg.SyncDBPath = getEnv("AGENT_SYNC_DB_PATH", cfg.SyncDBPath)
	cfg.LogLevel = getEnv("AGENT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("AGENT_LOG_FORMAT", cfg.LogFormat)
	cfg.KeyDerivationWorkFactor = getEnvInt("AGENT_KEY_DERIVATION_WORK_FACTOR", cfg.KeyDerivationWorkFactor)
	cfg.IndexTTL = getEnvDuration("AGENT_INDEX_TTL", cfg.IndexTTL)
	cfg.SyncInterval = getEnvDuration("AGENT_SYNC_INTERVAL", cfg.SyncInterval)
	if v := os.Getenv("AGENT_ENDPOINTS_SELECTION"); v != "" {
		cfg.EndpointsSelection = EndpointsSelection(v)
	}

	if cfg.DID == "" {
		return nil, fmt.Errorf("config: agent DID is required (config file or AGENT_DID)")
	}
	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
