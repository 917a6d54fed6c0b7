package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvConfig struct {
	Postgres struct {
		Host     string
		Database string
		Username string
		Password string
		Port     string
	}
	JWT struct {
		SecretKey string
		Expire    int
	}
	CORS struct {
		AllowDomains string
	}
	Redis struct {
		Password string
		Database int
		Host     string
		Port     string
	}
	RabbitMQ struct {
		Host     string
		Port     string
		Username string
		Password string
	}
	Minio struct {
		Endpoint     string
		RootUser     string
		RootPassword string
		UseSSL       bool
	}
	Upload struct {
		Bucket              string        // Bucket for originals and derived assets
		SinglePartThreshold int64         // Files at or below this size skip multipart
		ChunkSize           int64         // Server-decided chunk size for multipart
		SessionTTL          time.Duration // Upload sessions past this with no activity get reaped
		URLTTL              time.Duration // Lifetime of presigned upload URLs
		DownloadURLTTL      time.Duration // Lifetime of presigned download URLs
	}
	Worker struct {
		MaxAttempts   int
		BackoffBase   time.Duration
		LeaseTTL      time.Duration
		SweepInterval time.Duration
	}
	StyleProcessor struct {
		URL        string
		Timeout    time.Duration
		SigningKey string
	}
	Grafana struct {
		OTLPEndpoint string
		ServiceName  string
	}
	Environment struct {
		Mode  string
		Group string
	}
	DomainName string
}

func LoadEnvConfig() *EnvConfig {
	var config EnvConfig

	// Postgres
	config.Postgres.Host = os.Getenv("PGPOOL_HOST")
	config.Postgres.Database = os.Getenv("PGPOOL_DB")
	config.Postgres.Username = os.Getenv("PGPOOL_USER")
	config.Postgres.Password = os.Getenv("PGPOOL_PASSWORD")
	config.Postgres.Port = os.Getenv("PGPOOL_PORT")
	if config.Postgres.Port == "" {
		config.Postgres.Port = "5432"
	}

	// JWT
	config.JWT.SecretKey = os.Getenv("JWT_SECRET_KEY")
	config.JWT.Expire = envInt("JWT_EXPIRE", 3600*24*7)

	config.CORS.AllowDomains = os.Getenv("ALLOWED_DOMAINS")

	// Redis
	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	config.Redis.Database = envInt("REDIS_DB", 0)
	config.Redis.Host = envString("REDIS_HOST", "localhost")
	config.Redis.Port = envString("REDIS_PORT", "6379")

	// RabbitMQ
	config.RabbitMQ.Host = envString("RABBITMQ_HOST", "localhost")
	config.RabbitMQ.Port = envString("RABBITMQ_PORT", "5672")
	config.RabbitMQ.Username = envString("RABBITMQ_USER", "guest")
	config.RabbitMQ.Password = envString("RABBITMQ_PASSWORD", "guest")

	// MinIO
	config.Minio.Endpoint = os.Getenv("MINIO_ENDPOINT")
	config.Minio.RootUser = os.Getenv("MINIO_ROOT_USER")
	config.Minio.RootPassword = os.Getenv("MINIO_ROOT_PASSWORD")
	config.Minio.UseSSL = envBool("MINIO_USE_SSL", false)

	// Upload
	config.Upload.Bucket = envString("UPLOAD_BUCKET", "media-assets")
	config.Upload.SinglePartThreshold = envInt64("UPLOAD_SINGLE_PART_THRESHOLD", 10*1024*1024)
	config.Upload.ChunkSize = envInt64("UPLOAD_CHUNK_SIZE", 10*1024*1024)
	config.Upload.SessionTTL = envDuration("UPLOAD_SESSION_TTL", 24*time.Hour)
	config.Upload.URLTTL = envDuration("UPLOAD_URL_TTL", time.Hour)
	config.Upload.DownloadURLTTL = envDuration("DOWNLOAD_URL_TTL", 15*time.Minute)

	// Worker
	config.Worker.MaxAttempts = envInt("WORKER_MAX_ATTEMPTS", 3)
	config.Worker.BackoffBase = envDuration("WORKER_BACKOFF_BASE", 2*time.Second)
	config.Worker.LeaseTTL = envDuration("WORKER_LEASE_TTL", 5*time.Minute)
	config.Worker.SweepInterval = envDuration("WORKER_SWEEP_INTERVAL", 10*time.Minute)

	// Style processor collaborator
	config.StyleProcessor.URL = envString("STYLE_PROCESSOR_URL", "http://localhost:8090")
	config.StyleProcessor.Timeout = envDuration("STYLE_PROCESSOR_TIMEOUT", 2*time.Minute)
	config.StyleProcessor.SigningKey = os.Getenv("STYLE_PROCESSOR_SIGNING_KEY")

	// Grafana/OpenTelemetry
	grafanaEndpoint := os.Getenv("GRAFANA_OTLP_ENDPOINT")
	// Remove protocol for OpenTelemetry client to avoid duplicate protocols
	grafanaEndpoint = strings.TrimPrefix(grafanaEndpoint, "https://")
	grafanaEndpoint = strings.TrimPrefix(grafanaEndpoint, "http://")
	config.Grafana.OTLPEndpoint = grafanaEndpoint
	config.Grafana.ServiceName = envString("SERVICE_NAME", "mosaic-media-service")

	config.Environment.Mode = envString("DEPLOY_ENV", "development")
	config.Environment.Group = envString("GROUP_NAME", "local")
	config.DomainName = envString("DOMAIN_NAME", "localhost:8080")

	return &config
}

func envString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
