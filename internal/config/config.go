package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"mail-archivist/pkg/config"
)

type Config struct {
	Server   config.ServerConfig   `yaml:"server"`
	DB       config.DBConfig       `yaml:"db"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQ       config.MQConfig       `yaml:"mq"`
	Otel     config.OtelConfig     `yaml:"otel"`
	IMAP     config.IMAPConfig     `yaml:"imap"`
	Agent    config.AgentConfig    `yaml:"agent"`
	Pipeline config.PipelineConfig `yaml:"pipeline"`
}

// Load reads the layered configuration for CONFIG_ENV from CONFIG_DIR and
// applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, dir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(cfgData, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideOtelFromEnv(&cfg.Otel)
	config.OverrideIMAPFromEnv(&cfg.IMAP)
	config.OverrideAgentFromEnv(&cfg.Agent)
	config.OverridePipelineFromEnv(&cfg.Pipeline)

	return cfg, nil
}

// Defaults are applied before the yaml layers.
func Defaults() *Config {
	return &Config{
		Server: config.ServerConfig{Port: ":8000"},
		DB:     config.DBConfig{Driver: config.DriverSQLite, Path: "archivist.db"},
		MQ:     config.MQConfig{Queue: "mail-archivist.pipeline"},
		IMAP:   config.IMAPConfig{Port: 993, Mailbox: "INBOX"},
		Agent: config.AgentConfig{
			Provider: "gemini",
			Model:    "gemini-flash-latest",
			BaseURL:  "https://generativelanguage.googleapis.com",
			Timeout:  30 * time.Second,
		},
		Pipeline: config.PipelineConfig{
			LogCapacity: 1000,
			Cooldown:    2 * time.Second,
			CallTimeout: 60 * time.Second,
			DedupTTL:    24 * time.Hour,
			SenderLimit: 200,
		},
	}
}
