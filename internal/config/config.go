package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	Port   string
	AppEnv string

	DatabaseURL string

	JWTSecret string
	JWTTTL    time.Duration

	CaseNumberPrefix      string
	StrictTransitions     bool
	ResponseSLA           time.Duration
	StatsCacheTTL         time.Duration
	CaseNumberMaxAttempts int

	RedisAddr string
	RedisPass string
	RedisDB   int

	StorageProvider string // supabase | s3
	SupabaseURL     string
	SupabaseKey     string
	SupabaseBucket  string
	S3Bucket        string

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

// Load reads .env (if present) and builds Config with sensible defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:   getEnv("PORT", "3000"),
		AppEnv: getEnv("APP_ENV", "dev"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
		JWTTTL:    getEnvDuration("JWT_TTL", 7*24*time.Hour),

		CaseNumberPrefix:      getEnv("CASE_NUMBER_PREFIX", "SLLS"),
		StrictTransitions:     getEnvBool("CASE_STRICT_TRANSITIONS", false),
		ResponseSLA:           getEnvDuration("RESPONSE_SLA", 48*time.Hour),
		StatsCacheTTL:         getEnvDuration("STATS_CACHE_TTL", 30*time.Second),
		CaseNumberMaxAttempts: getEnvInt("CASE_NUMBER_MAX_ATTEMPTS", 3),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisPass: os.Getenv("REDIS_PASSWORD"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		StorageProvider: getEnv("STORAGE_PROVIDER", "supabase"),
		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseKey:     os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseBucket:  os.Getenv("SUPABASE_BUCKET"),
		S3Bucket:        os.Getenv("S3_BUCKET"),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "case-activities"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// IsProduction reports whether internal error detail must be hidden.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
