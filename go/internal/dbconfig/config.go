package dbconfig

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// Config holds Postgres connection settings.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

// Defaults returns settings for a local Postgres.
func Defaults() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "classroom",
		SSLMode:  "disable",
		MaxConns: 10,
	}
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	c := Defaults()
	c.ApplyEnv()
	return c
}

// ApplyEnv overrides fields from DB_* environment variables.
func (c *Config) ApplyEnv() {
	if v, err := strconv.ParseBool(os.Getenv("DB_ENABLED")); err == nil {
		c.Enabled = v
	}
	c.Host = getEnv("DB_HOST", c.Host)
	if port, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
		c.Port = port
	}
	c.User = getEnv("DB_USER", c.User)
	c.Password = getEnv("DB_PASSWORD", c.Password)
	c.Database = getEnv("DB_NAME", c.Database)
	c.SSLMode = getEnv("DB_SSLMODE", c.SSLMode)
	if n, err := strconv.Atoi(os.Getenv("DB_MAX_CONNS")); err == nil {
		c.MaxConns = n
	}
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Database, c.SSLMode,
	)
	if c.MaxConns > 0 {
		dsn += fmt.Sprintf("&pool_max_conns=%d", c.MaxConns)
	}
	return dsn
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
