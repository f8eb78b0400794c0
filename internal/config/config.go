// Package config loads and holds the application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf is the process-wide configuration populated by Init.
var Conf Config

// Config mirrors the layout of configs/config.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Dataset       DatasetConfig       `mapstructure:"dataset"`
	FineTune      FineTuneConfig      `mapstructure:"finetune"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig holds the relational store and Redis settings.
type DatabaseConfig struct {
	// Driver is either "sqlite" (DSN is a file path) or "mysql".
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig holds completion provider settings.
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig holds optional sampling parameters. Zero means provider default.
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ChatConfig holds the interview texts shown to and sent on behalf of users.
type ChatConfig struct {
	Domains []string `mapstructure:"domains"`
	// SystemPrompt may reference {domain}, {count} and {sentinel}.
	SystemPrompt  string `mapstructure:"system_prompt"`
	Greeting      string `mapstructure:"greeting"`
	Apology       string `mapstructure:"apology"`
	QuestionCount int    `mapstructure:"question_count"`
	Sentinel      string `mapstructure:"sentinel"`
}

// DatasetConfig controls how transcripts become training files.
type DatasetConfig struct {
	// Instruction is prepended to every prompt; {domain} is substituted.
	Instruction string `mapstructure:"instruction"`
	// Pairing is "consecutive" or "offset".
	Pairing  string `mapstructure:"pairing"`
	WorkDir  string `mapstructure:"work_dir"`
	FileName string `mapstructure:"file_name"`
}

// FineTuneConfig controls how training jobs are executed.
type FineTuneConfig struct {
	// Mode is "local" (in-process runner) or "kafka" (queued to cmd/worker).
	Mode    string        `mapstructure:"mode"`
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// KafkaConfig holds the fine-tune task queue settings.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig holds artifact storage settings. An empty Endpoint disables uploads.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ElasticsearchConfig holds training-record index settings. Empty Addresses disables indexing.
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// SchedulerConfig holds cron specs of periodic tasks. An empty spec disables the task.
type SchedulerConfig struct {
	// CredentialRefresh rebuilds the credential table so users registered through
	// another instance can log in here.
	CredentialRefresh string `mapstructure:"credential_refresh"`
}

// Init loads configPath into Conf and panics on failure.
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load reads a .env file if present, then the YAML file at configPath, then environment
// overrides. A missing YAML file is tolerated so the service can run on defaults and env.
func Load(configPath string) (Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// names used by earlier deployments of this service
	_ = v.BindEnv("database.dsn", "DATABASE_DSN", "DATABASE_FILE")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY", "OPENAI_API_KEY")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "users.db")
	v.SetDefault("database.redis.addr", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.generation.temperature", 0)
	v.SetDefault("llm.generation.top_p", 0)
	v.SetDefault("llm.generation.max_tokens", 0)

	v.SetDefault("chat.domains", []string{"იურისტი", "ფსიქოლოგი", "რესტორატორი", "სხვა"})
	v.SetDefault("chat.system_prompt",
		"You are a Georgian data-collector for {domain}. Ask exactly {count} concise questions about the domain, "+
			"one at a time, in Georgian. After the last answer reply with {sentinel} and nothing else.")
	v.SetDefault("chat.greeting", "გამარჯობა! დაგისვამთ რამდენიმე კითხვას თქვენი სფეროს შესახებ. დასაწყებად დაწერეთ ნებისმიერი შეტყობინება.")
	v.SetDefault("chat.apology", "სამწუხაროდ, AI‑თან დაკავშირება ვერ მოხერხდა.")
	v.SetDefault("chat.question_count", 7)
	v.SetDefault("chat.sentinel", "[DONE]")

	v.SetDefault("dataset.instruction", "შექმენი {domain} პასუხი.\n")
	v.SetDefault("dataset.pairing", "consecutive")
	v.SetDefault("dataset.work_dir", "finetune_runs")
	v.SetDefault("dataset.file_name", "dataset.jsonl")

	v.SetDefault("finetune.mode", "local")
	v.SetDefault("finetune.command", []string{"python", "finetune.py"})
	v.SetDefault("finetune.timeout", 0)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "finetune-tasks")
	v.SetDefault("kafka.group_id", "expert-tune-worker")

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "expert-tune")

	v.SetDefault("elasticsearch.addresses", "")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "training_records")

	v.SetDefault("scheduler.credential_refresh", "@every 1m")
}
