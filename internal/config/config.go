package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Services ServicesConfig `yaml:"services"`
	Billing  BillingConfig  `yaml:"billing"`
	Shield   ShieldConfig   `yaml:"shield"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
}

// ServicesConfig lists the verification model services. Any left empty
// runs on the in-process heuristic instead.
type ServicesConfig struct {
	NLI        string `yaml:"nli_url"`
	Entropy    string `yaml:"entropy_url"`
	Preference string `yaml:"preference_url"`
	Claims     string `yaml:"claims_url"`
	Numerical  string `yaml:"numerical_url"`
	Embedder   string `yaml:"embedder_url"`
}

type BillingConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

type ShieldConfig struct {
	AggregateLowSignals bool `yaml:"aggregate_low_signals"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return &cfg, nil
}

// Load builds the config from the environment alone, for deployments
// without a config file.
func Load() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	return cfg
}

// applyEnv lets the environment override file values, so container
// deployments can reconfigure without editing YAML.
func (c *Config) applyEnv() {
	envOverride(&c.Server.Port, "PORT")
	envOverride(&c.Server.Env, "APP_ENV")
	envOverride(&c.Database.URL, "DATABASE_URL")
	envOverride(&c.Cache.RedisAddr, "REDIS_ADDR")
	envOverride(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	envOverride(&c.Services.NLI, "NLI_SERVICE_URL")
	envOverride(&c.Services.Entropy, "ENTROPY_SERVICE_URL")
	envOverride(&c.Services.Preference, "PREFERENCE_SERVICE_URL")
	envOverride(&c.Services.Claims, "CLAIMS_SERVICE_URL")
	envOverride(&c.Services.Numerical, "NUMERICAL_SERVICE_URL")
	envOverride(&c.Services.Embedder, "EMBEDDER_SERVICE_URL")
	envOverride(&c.Billing.WebhookSecret, "BILLING_WEBHOOK_SECRET")
	if v := os.Getenv("SHIELD_AGGREGATE_LOW_SIGNALS"); v == "true" || v == "1" {
		c.Shield.AggregateLowSignals = true
	}
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
