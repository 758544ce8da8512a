package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	DriveBackend   string // "minio" or "local"
	DriveEndpoint  string
	DriveAccessKey string
	DriveSecretKey string
	DriveBucket    string
	DriveUseSSL    bool
	DriveLocalPath string
	DriveRoot      string

	DBPath string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	EmbeddingBaseURL   string
	EmbeddingAPIKey    string
	EmbeddingModelName string

	AutoMetaMode   string
	ScanInterval   time.Duration
	StabilityDelay time.Duration

	SimThreshold        float64
	CandidateMultiplier int

	APIPort   string
	LogLevel  slog.Level
	LogFormat string // "json" or "text"
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent, it is loaded
// automatically; environment variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Walk up toward the project root looking for a .env next to go.mod.
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		DriveBackend:       getEnv("DRIVE_BACKEND", "minio"),
		DriveEndpoint:      getEnv("DRIVE_ENDPOINT", "localhost:9000"),
		DriveAccessKey:     getEnv("DRIVE_ACCESS_KEY", ""),
		DriveSecretKey:     getEnv("DRIVE_SECRET_KEY", ""),
		DriveBucket:        getEnv("DRIVE_BUCKET", "clipdex"),
		DriveLocalPath:     getEnv("DRIVE_LOCAL_PATH", ""),
		DriveRoot:          getEnv("DRIVE_ROOT", "videos"),
		DBPath:             getEnv("DB_PATH", "./data/clipdex.db"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "clips"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "dummy-key"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		AutoMetaMode:       getEnv("AUTO_META_MODE", "derive"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	useSSL, err := parseBool("DRIVE_USE_SSL", "false")
	if err != nil {
		return nil, err
	}
	cfg.DriveUseSSL = useSSL

	switch cfg.DriveBackend {
	case "minio":
		if cfg.DriveAccessKey == "" || cfg.DriveSecretKey == "" {
			return nil, fmt.Errorf("DRIVE_ACCESS_KEY and DRIVE_SECRET_KEY are required for the minio backend")
		}
	case "local":
		if cfg.DriveLocalPath == "" {
			return nil, fmt.Errorf("DRIVE_LOCAL_PATH is required for the local backend")
		}
	default:
		return nil, fmt.Errorf("DRIVE_BACKEND must be \"minio\" or \"local\", got %q", cfg.DriveBackend)
	}

	switch cfg.AutoMetaMode {
	case "write", "derive", "off":
	default:
		return nil, fmt.Errorf("AUTO_META_MODE must be \"write\", \"derive\", or \"off\", got %q", cfg.AutoMetaMode)
	}

	// QDRANT_VECTOR_SIZE must match the output dimension of the embeddings
	// model. If it changes the collection must be rebuilt.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	cfg.ScanInterval, err = parseDuration("SCAN_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	cfg.StabilityDelay, err = parseDuration("STABILITY_DELAY", "2s")
	if err != nil {
		return nil, err
	}

	cfg.SimThreshold, err = parseFloat("SIM_THRESHOLD", "0.35")
	if err != nil {
		return nil, err
	}
	cfg.CandidateMultiplier, err = parseInt("SEARCH_CANDIDATE_MULTIPLIER", "4")
	if err != nil {
		return nil, err
	}
	if cfg.CandidateMultiplier <= 0 {
		return nil, fmt.Errorf("SEARCH_CANDIDATE_MULTIPLIER must be greater than 0")
	}

	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LOG_FORMAT must be \"json\" or \"text\", got %q", cfg.LogFormat)
	}

	// Create the data directory if it doesn't exist.
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func parseFloat(key, defaultValue string) (float64, error) {
	f, err := strconv.ParseFloat(getEnv(key, defaultValue), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}

func parseInt(key, defaultValue string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func parseBool(key, defaultValue string) (bool, error) {
	b, err := strconv.ParseBool(getEnv(key, defaultValue))
	if err != nil {
		return false, fmt.Errorf("%s must be a valid boolean: %w", key, err)
	}
	return b, nil
}
