package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	PlantNet  PlantNetConfig  `json:"plantnet"`
	Wikipedia WikipediaConfig `json:"wikipedia"`
	Wikidata  WikidataConfig  `json:"wikidata"`
	Assistant AssistantConfig `json:"assistant"`
	Cache     CacheConfig     `json:"cache"`
	Database  DatabaseConfig  `json:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type PlantNetConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

type WikipediaConfig struct {
	Lang string `json:"lang"`
}

type WikidataConfig struct {
	Endpoint  string `json:"endpoint"`
	UserAgent string `json:"user_agent"`
}

type AssistantConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	Referer  string `json:"referer"`
	Title    string `json:"title"`
}

type CacheConfig struct {
	TTLHours int `json:"ttl_hours"`
}

// TTL returns the configured cache TTL, defaulting to 24 hours.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.PlantNet.Endpoint == "" {
		cfg.PlantNet.Endpoint = "https://my-api.plantnet.org/v2/identify/all"
	}
	if cfg.Wikipedia.Lang == "" {
		cfg.Wikipedia.Lang = "es"
	}
	if cfg.Wikidata.Endpoint == "" {
		cfg.Wikidata.Endpoint = "https://query.wikidata.org/sparql"
	}
	if cfg.Assistant.Endpoint == "" {
		cfg.Assistant.Endpoint = "https://openrouter.ai/api/v1"
	}
	if cfg.Assistant.Model == "" {
		cfg.Assistant.Model = "deepseek/deepseek-chat-v3-0324:free"
	}
}
