package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// StaffPasswordHash is the bcrypt hash checked when staff request a token.
	StaffPasswordHash string
	TokenTTL          time.Duration

	// RedisURL is optional: without it events are only broadcast in-process.
	RedisURL string

	R2 R2Config

	RateLimitRPS   float64
	RateLimitBurst int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
// requireDatabase is false for `serve --memory`.
func Load(requireDatabase bool) (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" && requireDatabase {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	ttl := 12 * time.Hour
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL environment variable: %w", err)
		}
	}

	rps := 20.0
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err = strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS environment variable %q", v)
		}
	}
	burst, err := intEnv("RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, err
	}
	if burst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", burst)
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		JWTSecretKey:      jwtKey,
		ServerPort:        port,
		StaffPasswordHash: os.Getenv("STAFF_PASSWORD_HASH"),
		TokenTTL:          ttl,
		RedisURL:          os.Getenv("REDIS_URL"),
		R2: R2Config{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
	}

	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return n, nil
}
