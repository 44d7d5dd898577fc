package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DB drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	// Path is the database file of the sqlite driver.
	Path string `yaml:"path"`
}

type MQConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type OtelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// IMAPConfig is the mailbox the pipeline syncs from and archives into.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Mailbox  string `yaml:"mailbox"`
}

// AgentConfig selects the AI provider used to propose rules and categorize mail.
type AgentConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	Categories []string      `yaml:"categories"`
}

type PipelineConfig struct {
	LogCapacity        int           `yaml:"log_capacity"`
	Cooldown           time.Duration `yaml:"cooldown"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	ClassifyAIFallback bool          `yaml:"classify_ai_fallback"`
	DedupTTL           time.Duration `yaml:"dedup_ttl"`
	SenderLimit        int           `yaml:"sender_limit"`
}

func OverrideDBFromEnv(cfg *DBConfig) {
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Driver = driver
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Path = path
	}
}

func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
		cfg.Enabled = true
	}
}

func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
		cfg.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

func OverrideOtelFromEnv(cfg *OtelConfig) {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
		cfg.Enabled = true
	}
}

func OverrideIMAPFromEnv(cfg *IMAPConfig) {
	if host := os.Getenv("IMAP_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("IMAP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("IMAP_USERNAME"); user != "" {
		cfg.Username = user
	}
	if password := os.Getenv("IMAP_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

func OverrideAgentFromEnv(cfg *AgentConfig) {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if model := os.Getenv("AGENT_MODEL"); model != "" {
		cfg.Model = model
	}
}

func OverridePipelineFromEnv(cfg *PipelineConfig) {
	if v := os.Getenv("PIPELINE_CLASSIFY_AI_FALLBACK"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.ClassifyAIFallback = b
		}
	}
	if v := os.Getenv("PIPELINE_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CallTimeout = d
		}
	}
}
