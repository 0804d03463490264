package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig 数据库配置（master 库；租户库通过 conn_descriptor 直连）
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN returns the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// ServerDSN is the same target without a database name. Provisioning uses it
// to issue CREATE DATABASE before the tenant database exists.
func (c *DatabaseConfig) ServerDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.SSLMode)
}

// TenantDSN is the connection descriptor stored in the master directory for a
// freshly provisioned tenant database.
func (c *DatabaseConfig) TenantDSN(dbName string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, dbName, c.SSLMode)
}

// Config bizadmin（HTTP admin API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Master DatabaseConfig
	Redis  struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Auth struct {
		// JWTSecret only recovers the developer identity from tokens the
		// gateway already validated; it is not an access-control mechanism here.
		JWTSecret string
	}
	Provision struct {
		// Wait bounds how long tenant creation blocks before answering
		// "still provisioning" and continuing in the background.
		Wait       time.Duration
		WebhookURL string
	}
	Tenant struct {
		MaxConns int
		MaxIdle  int
	}
}

func Load() *Config {
	// Optional .env for local dev; env vars win.
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Master.Host = getEnv("MASTER_DB_HOST", "localhost")
	cfg.Master.Port = parseInt(getEnv("MASTER_DB_PORT", "5432"), 5432)
	cfg.Master.User = getEnv("MASTER_DB_USER", "postgres")
	cfg.Master.Password = getEnv("MASTER_DB_PASSWORD", "postgres")
	cfg.Master.Database = getEnv("MASTER_DB_NAME", "bizadmin_master")
	cfg.Master.SSLMode = getEnv("MASTER_DB_SSLMODE", "disable")
	cfg.Master.MaxConns = parseInt(getEnv("MASTER_DB_MAX_CONNS", "10"), 10)
	cfg.Master.MaxIdle = parseInt(getEnv("MASTER_DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", "")

	cfg.Provision.Wait = time.Duration(parseInt(getEnv("PROVISION_WAIT_SECONDS", "10"), 10)) * time.Second
	cfg.Provision.WebhookURL = getEnv("PROVISION_WEBHOOK_URL", "")

	cfg.Tenant.MaxConns = parseInt(getEnv("TENANT_DB_MAX_CONNS", "5"), 5)
	cfg.Tenant.MaxIdle = parseInt(getEnv("TENANT_DB_MAX_IDLE", "2"), 2)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
