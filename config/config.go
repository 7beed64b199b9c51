package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/luantaraschi/petichat-definitive/storage"
)

// Config holds process configuration shared by the server, worker and CLI
type Config struct {
	Environment string
	Port        string
	LogMode     string

	DatabaseURL string
	RedisURL    string

	JWTSecret string
	JWTTTL    time.Duration

	AllowedOrigins []string

	// AI
	AIProvider           string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbeddingModel string

	// Storage and export
	Storage    storage.StorageConfig
	ChromePath string

	// Worker
	IngestSourcesFile  string
	AbandonedDraftAge  time.Duration
	MaintenanceSpec    string
	ShutdownTimeout    time.Duration
	EmbeddingRateLimit float64

	GenerateConcurrency  int
	IngestConcurrency    int
	EmbeddingConcurrency int
}

// Load reads .env (when present) and the environment
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Println("No .env file found, using system environment variables")
		}
	}

	environment := getEnv("ENVIRONMENT", "development")
	return &Config{
		Environment:    environment,
		Port:           getEnv("PORT", "8080"),
		LogMode:        getEnv("LOG_MODE", environment),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTTTL:         getEnvDuration("JWT_TTL", 24*time.Hour),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		AIProvider:           strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4-turbo-preview"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:         firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_AI_API_KEY")),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),

		Storage: storage.StorageConfig{
			Type:         storage.StorageType(getEnv("STORAGE_TYPE", "local")),
			LocalPath:    getEnv("STORAGE_LOCAL_PATH", "./storage/files"),
			S3Bucket:     getEnv("AWS_S3_BUCKET", ""),
			S3Region:     getEnv("AWS_REGION", "us-east-1"),
			AWSAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
			AWSSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			PresignTTL:   getEnvDuration("STORAGE_PRESIGN_TTL", 15*time.Minute),
		},
		ChromePath: getEnv("CHROME_PATH", ""),

		IngestSourcesFile:  getEnv("INGEST_SOURCES_FILE", "config/ingest_sources.yaml"),
		AbandonedDraftAge:  getEnvDuration("ABANDONED_DRAFT_AGE", 30*24*time.Hour),
		MaintenanceSpec:    getEnv("MAINTENANCE_CRON", "0 3 * * *"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		EmbeddingRateLimit: getEnvFloat("EMBEDDING_RATE_LIMIT", 5),

		GenerateConcurrency:  getEnvInt("GENERATE_CONCURRENCY", 2),
		IngestConcurrency:    getEnvInt("INGEST_CONCURRENCY", 1),
		EmbeddingConcurrency: getEnvInt("EMBEDDING_CONCURRENCY", 3),
	}
}

// IsProduction reports whether the process runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate reports missing required settings. Entrypoints exit 1 on error.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		missing = append(missing, "JWT_SECRET (min 32 chars)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Storage.Type == storage.StorageTypeS3 && c.Storage.S3Bucket == "" {
		return errors.New("AWS_S3_BUCKET environment variable is required for S3 storage")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[WARN] invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
