package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Storage    StorageConfig  `mapstructure:"storage"`
	Extractor  ProviderConfig `mapstructure:"extractor"`
	Classifier ProviderConfig `mapstructure:"classifier"`
	Summarizer ProviderConfig `mapstructure:"summarizer"`
	Vertex     VertexConfig   `mapstructure:"vertex"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
	Render     RenderConfig   `mapstructure:"render"`
	Log        LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port          int        `mapstructure:"port"`
	Mode          string     `mapstructure:"mode"`
	MaxUploadSize int64      `mapstructure:"max_upload_size"`
	CORS          CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
// An explicit URL wins for postgres.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	// LocalRoot is the directory used by the "local" storage type.
	LocalRoot string `mapstructure:"local_root"`
}

type VertexConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Location  string `mapstructure:"location"`
}

// PipelineConfig controls the batch page-processing pipeline.
type PipelineConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
	RetryBudget    int           `mapstructure:"retry_budget"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	PersistRetries int           `mapstructure:"persist_retries"`
	PersistBackoff time.Duration `mapstructure:"persist_backoff"`
	JobDeadline    time.Duration `mapstructure:"job_deadline"` // 0 means no deadline
	MaxPages       int           `mapstructure:"max_pages"`
}

type RenderConfig struct {
	WorkDir string `mapstructure:"work_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("storage.public_url", "S3_PUBLIC_URL")
	v.BindEnv("storage.local_root", "STORAGE_LOCAL_ROOT")
	v.BindEnv("vertex.project_id", "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("vertex.location", "GOOGLE_CLOUD_LOCATION")
	v.BindEnv("pipeline.concurrency", "PIPELINE_CONCURRENCY")
	v.BindEnv("pipeline.job_deadline", "PIPELINE_JOB_DEADLINE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*ProviderConfig{&cfg.Extractor, &cfg.Classifier, &cfg.Summarizer} {
		p.ResolveEnvVars()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_size", 50<<20)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/pagepipe.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "pagepipe")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.type", "")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "pagepipe")
	v.SetDefault("storage.local_root", "./data/objects")

	v.SetDefault("extractor.name", "extractor")
	v.SetDefault("extractor.provider", ProviderOpenAI)
	v.SetDefault("extractor.model", "gpt-4o-mini")
	v.SetDefault("extractor.base_url", "https://api.openai.com/v1")
	v.SetDefault("extractor.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("classifier.name", "classifier")
	v.SetDefault("classifier.provider", ProviderOpenAI)
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.base_url", "https://api.openai.com/v1")
	v.SetDefault("classifier.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("summarizer.name", "summarizer")
	v.SetDefault("summarizer.provider", ProviderOpenAI)
	v.SetDefault("summarizer.model", "gpt-4o-mini")
	v.SetDefault("summarizer.base_url", "https://api.openai.com/v1")
	v.SetDefault("summarizer.api_key_env", "OPENAI_API_KEY")

	v.SetDefault("vertex.location", "us-central1")

	v.SetDefault("pipeline.concurrency", 6)
	v.SetDefault("pipeline.stage_timeout", 60*time.Second)
	v.SetDefault("pipeline.retry_budget", 1)
	v.SetDefault("pipeline.retry_backoff", time.Second)
	v.SetDefault("pipeline.persist_retries", 3)
	v.SetDefault("pipeline.persist_backoff", 200*time.Millisecond)
	v.SetDefault("pipeline.job_deadline", time.Duration(0))
	v.SetDefault("pipeline.max_pages", 100)

	v.SetDefault("render.work_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects pipeline settings that would stall or disable processing.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be positive, got %d", p.Concurrency)
	}
	if p.StageTimeout <= 0 {
		return fmt.Errorf("pipeline.stage_timeout must be positive, got %s", p.StageTimeout)
	}
	if p.RetryBudget < 0 {
		return fmt.Errorf("pipeline.retry_budget must not be negative, got %d", p.RetryBudget)
	}
	if p.PersistRetries < 0 {
		return fmt.Errorf("pipeline.persist_retries must not be negative, got %d", p.PersistRetries)
	}
	if p.JobDeadline < 0 {
		return fmt.Errorf("pipeline.job_deadline must not be negative, got %s", p.JobDeadline)
	}
	if p.MaxPages <= 0 {
		return fmt.Errorf("pipeline.max_pages must be positive, got %d", p.MaxPages)
	}
	for _, pc := range []*ProviderConfig{&c.Extractor, &c.Classifier, &c.Summarizer} {
		if err := pc.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetStorageConfig returns the object storage settings.
func (c *Config) GetStorageConfig() StorageConfig {
	return c.Storage
}
