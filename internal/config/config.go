package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string     `mapstructure:"port"`
	Environment string     `mapstructure:"environment"`
	LogLevel    slog.Level `mapstructure:"-"`
	LogFormat   string     `mapstructure:"log_format"`

	// Store selects the repository backend: "postgres" or "memory".
	Store       string `mapstructure:"store"`
	DatabaseURL string `mapstructure:"database_url"`
	DBMaxOpen   int    `mapstructure:"db_max_open_conns"`
	DBMaxIdle   int    `mapstructure:"db_max_idle_conns"`
	RedisURL    string `mapstructure:"redis_url"`

	Casdoor CasdoorConfig `mapstructure:"casdoor"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Grader  GraderConfig  `mapstructure:"grader"`
}

type CasdoorConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Cert         string `mapstructure:"cert"`
	Organization string `mapstructure:"organization"`
	Application  string `mapstructure:"application"`
}

// KafkaConfig enables the Kafka event bus when Brokers is non-empty;
// otherwise events stay in process.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

type GraderConfig struct {
	ExecuteDir       string        `mapstructure:"execute_dir"`
	ExecutedDir      string        `mapstructure:"executed_dir"`
	Interpreter      string        `mapstructure:"interpreter"`
	CaseTimeout      time.Duration `mapstructure:"case_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	SubmitCooldown   time.Duration `mapstructure:"submit_cooldown"`
	SubmitDailyLimit int           `mapstructure:"submit_daily_limit"`
}

var envBindings = map[string]string{
	"port":                      "PORT",
	"environment":               "ENVIRONMENT",
	"log_level":                 "LOG_LEVEL",
	"log_format":                "LOG_FORMAT",
	"store":                     "STORE",
	"database_url":              "DATABASE_URL",
	"db_max_open_conns":         "DB_MAX_OPEN_CONNS",
	"db_max_idle_conns":         "DB_MAX_IDLE_CONNS",
	"redis_url":                 "REDIS_URL",
	"casdoor.endpoint":          "CASDOOR_ENDPOINT",
	"casdoor.client_id":         "CASDOOR_CLIENT_ID",
	"casdoor.client_secret":     "CASDOOR_CLIENT_SECRET",
	"casdoor.cert":              "CASDOOR_CERT",
	"casdoor.organization":      "CASDOOR_ORGANIZATION",
	"casdoor.application":       "CASDOOR_APPLICATION",
	"kafka.brokers":             "KAFKA_BROKERS",
	"kafka.consumer_group":      "KAFKA_CONSUMER_GROUP",
	"grader.execute_dir":        "EXECUTE_DIR",
	"grader.executed_dir":       "EXECUTED_DIR",
	"grader.interpreter":        "INTERPRETER",
	"grader.case_timeout":       "CASE_TIMEOUT",
	"grader.poll_interval":      "POLL_INTERVAL",
	"grader.submit_cooldown":    "SUBMIT_COOLDOWN",
	"grader.submit_daily_limit": "SUBMIT_DAILY_LIMIT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "")
	v.SetDefault("store", "postgres")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 10)
	v.SetDefault("kafka.consumer_group", "grading-service")
	v.SetDefault("grader.execute_dir", "/test_dir_execute")
	v.SetDefault("grader.executed_dir", "/test_dir_executed")
	v.SetDefault("grader.interpreter", "python3.9")
	v.SetDefault("grader.case_timeout", time.Second)
	v.SetDefault("grader.poll_interval", time.Second)
	v.SetDefault("grader.submit_cooldown", 10*time.Second)
	v.SetDefault("grader.submit_daily_limit", 0)
}

// New returns a viper instance with defaults and environment bindings.
// Command-line flags may be bound into it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// LoadConfig reads .env (if present), the optional config file and the
// environment.
func LoadConfig() (*Config, error) {
	return Load(New(), "")
}

func Load(v *viper.Viper, configFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// KAFKA_BROKERS arrives as one comma-separated string
	cfg.Kafka.Brokers = splitList(v.GetStringSlice("kafka.brokers"))

	level, err := ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
		if cfg.Environment == "production" {
			cfg.LogFormat = "json"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.Grader.CaseTimeout <= 0 {
		return errors.New("CASE_TIMEOUT must be positive")
	}
	if c.Grader.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.Grader.ExecuteDir == c.Grader.ExecutedDir {
		return errors.New("EXECUTE_DIR and EXECUTED_DIR must differ")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
