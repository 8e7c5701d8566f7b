package logger

import (
	"io"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvConfig is the logger setup read from LOG_* environment variables.
// Values that came from the environment win over config file defaults.
type EnvConfig struct {
	Level       string
	Format      string
	Output      io.Writer // overrides every other destination when set
	ServiceName string
	Environment string // local, dev, prod

	LogFile     string
	LogFileOnly bool
	Rotation    Rotation

	fromEnv map[string]bool
}

// Rotation bounds the size and age of the log file outside local runs.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// LoadFromEnv reads the logger setup from the environment.
func LoadFromEnv() *EnvConfig {
	c := &EnvConfig{fromEnv: make(map[string]bool)}
	c.Level = c.str("LOG_LEVEL", "info")
	c.Format = c.str("LOG_FORMAT", "json")
	c.ServiceName = c.str("SERVICE_NAME", "pagepipe")
	c.Environment = c.str("APP_ENV", "local")
	c.LogFile = c.str("LOG_FILE", "./logs/pagepipe.log")
	c.LogFileOnly = c.boolean("LOG_FILE_ONLY", false)
	c.Rotation = Rotation{
		MaxSizeMB:  c.integer("LOG_MAX_SIZE", 100),
		MaxBackups: c.integer("LOG_MAX_BACKUPS", 7),
		MaxAgeDays: c.integer("LOG_MAX_AGE", 30),
		Compress:   c.boolean("LOG_COMPRESS", true),
	}
	return c
}

// Defaults applies level and format from the config file unless the
// environment already set them.
func (c *EnvConfig) Defaults(level, format string) *EnvConfig {
	if level != "" && !c.fromEnv["LOG_LEVEL"] {
		c.Level = level
	}
	if format != "" && !c.fromEnv["LOG_FORMAT"] {
		c.Format = format
	}
	return c
}

// writers returns the destinations for log lines. Files are only written
// outside local runs.
func (c *EnvConfig) writers() (out []io.Writer, closer io.Closer) {
	if c.Environment == "local" || !c.LogFileOnly {
		out = append(out, os.Stdout)
	}
	if c.Environment != "local" && c.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    c.Rotation.MaxSizeMB,
			MaxBackups: c.Rotation.MaxBackups,
			MaxAge:     c.Rotation.MaxAgeDays,
			Compress:   c.Rotation.Compress,
		}
		out = append(out, file)
		closer = file
	}
	if len(out) == 0 {
		out = append(out, os.Stdout)
	}
	return out, closer
}

func (c *EnvConfig) lookup(key string) (string, bool) {
	val := os.Getenv(key)
	return val, val != ""
}

func (c *EnvConfig) str(key, def string) string {
	if val, ok := c.lookup(key); ok {
		c.fromEnv[key] = true
		return val
	}
	return def
}

func (c *EnvConfig) boolean(key string, def bool) bool {
	if val, ok := c.lookup(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.fromEnv[key] = true
			return b
		}
	}
	return def
}

func (c *EnvConfig) integer(key string, def int) int {
	if val, ok := c.lookup(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			c.fromEnv[key] = true
			return i
		}
	}
	return def
}
