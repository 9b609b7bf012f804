package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Queue struct {
	Concurrency    int
	MaxRetry       int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	PublishTimeout time.Duration
	RefreshTimeout time.Duration
}

type Config struct {
	TiktokClientKey    string
	TiktokClientSecret string
	TiktokRedirectURI  string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	PostgresURI        string
	RedisURI           string
	FrontendURL        string
	R2                 R2
	Queue              Queue
	PresignTTL         time.Duration
	SecretKey          string
	CookieName         string
}

func LoadConfig() *Config {
	return &Config{
		TiktokClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
		TiktokRedirectURI:  getEnv("TIKTOK_REDIRECT_URI", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		RedisURI:           getEnv("REDIS_URI", ""),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		Queue: Queue{
			Concurrency:    getEnvInt("QUEUE_CONCURRENCY", 10),
			MaxRetry:       getEnvInt("QUEUE_MAX_RETRY", 5),
			BackoffBase:    getEnvDuration("QUEUE_BACKOFF_BASE", 10*time.Second),
			BackoffCap:     getEnvDuration("QUEUE_BACKOFF_CAP", 10*time.Minute),
			PublishTimeout: getEnvDuration("QUEUE_PUBLISH_TIMEOUT", 10*time.Minute),
			RefreshTimeout: getEnvDuration("QUEUE_REFRESH_TIMEOUT", 30*time.Second),
		},
		PresignTTL: getEnvDuration("PRESIGN_TTL", 15*time.Minute),
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postbridge_session"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
