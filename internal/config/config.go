package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Engine carries the analysis settings. The API turns them into an
// engine.Config per request.
type Engine struct {
	DuplicateThreshold     float64
	NearDuplicateThreshold float64
	WindowDays             int
	Strategy               string
	ThemesFile             string
	MaxFeatures            int
	NgramMax               int
	EmbeddingDim           int
	Parallelism            int
	Timezone               string
	AlertLimit             int

	GeminiAPIKey       string
	GeminiModel        string
	EmbeddingCacheSize int
	EmbeddingCacheTTL  time.Duration
}

// Worker holds configuration for the Kafka -> Elasticsearch worker.
type Worker struct {
	Common
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
	CommitInterval   time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Engine
	BindAddr        string
	DefaultPage     int
	MaxPage         int
	WindowFetchSize int
	MaxAnalyzePosts int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "posts"),
	}
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:           loadCommon(),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "posts_raw"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "posts-worker"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 10),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 3),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
		CommitInterval:   getDuration("WORKER_COMMIT_INTERVAL", "2s"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadEngine reads the analysis settings.
func LoadEngine() (*Engine, error) {
	c := &Engine{
		DuplicateThreshold:     getFloat("ENGINE_DUPLICATE_THRESHOLD", 0.85),
		NearDuplicateThreshold: getFloat("ENGINE_NEAR_DUPLICATE_THRESHOLD", 0.70),
		WindowDays:             getInt("ENGINE_WINDOW_DAYS", 30),
		Strategy:               strings.ToLower(getEnv("ENGINE_FINGERPRINT_STRATEGY", "lexical")),
		ThemesFile:             getEnv("ENGINE_THEMES_FILE", ""),
		MaxFeatures:            getInt("ENGINE_MAX_FEATURES", 5000),
		NgramMax:               getInt("ENGINE_NGRAM_MAX", 3),
		EmbeddingDim:           getInt("ENGINE_EMBEDDING_DIM", 256),
		Parallelism:            getInt("ENGINE_PARALLELISM", 4),
		Timezone:               getEnv("ENGINE_TIMEZONE", "UTC"),
		AlertLimit:             getInt("ENGINE_ALERT_LIMIT", 50),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		EmbeddingCacheSize:     getInt("EMBEDDING_CACHE_SIZE", 50000),
		EmbeddingCacheTTL:      getDuration("EMBEDDING_CACHE_TTL", "168h"),
	}

	if c.NearDuplicateThreshold <= 0 || c.NearDuplicateThreshold > 1 {
		return nil, fmt.Errorf("ENGINE_NEAR_DUPLICATE_THRESHOLD must be in (0,1]")
	}
	if c.DuplicateThreshold <= c.NearDuplicateThreshold || c.DuplicateThreshold > 1 {
		return nil, fmt.Errorf("ENGINE_DUPLICATE_THRESHOLD must be above ENGINE_NEAR_DUPLICATE_THRESHOLD and at most 1")
	}
	if c.WindowDays < 0 || c.WindowDays > 30 {
		return nil, fmt.Errorf("ENGINE_WINDOW_DAYS must be between 0 and 30")
	}
	if c.Strategy != "lexical" && c.Strategy != "embedding" {
		return nil, fmt.Errorf("ENGINE_FINGERPRINT_STRATEGY must be lexical or embedding")
	}
	if c.MaxFeatures < 0 {
		return nil, fmt.Errorf("ENGINE_MAX_FEATURES cannot be negative")
	}
	if c.NgramMax <= 0 {
		return nil, fmt.Errorf("ENGINE_NGRAM_MAX must be positive")
	}
	if c.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("ENGINE_EMBEDDING_DIM must be positive")
	}
	if c.Parallelism <= 0 {
		return nil, fmt.Errorf("ENGINE_PARALLELISM must be positive")
	}
	if c.AlertLimit < 0 {
		return nil, fmt.Errorf("ENGINE_ALERT_LIMIT cannot be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return nil, fmt.Errorf("ENGINE_TIMEZONE: %w", err)
	}

	return c, nil
}

// Location resolves Timezone. LoadEngine has already checked it.
func (c Engine) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	eng, err := LoadEngine()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:          loadCommon(),
		Engine:          *eng,
		BindAddr:        getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:     getInt("API_PAGE_SIZE", 20),
		MaxPage:         getInt("API_MAX_PAGE_SIZE", 100),
		WindowFetchSize: getInt("API_WINDOW_FETCH_SIZE", 5000),
		MaxAnalyzePosts: getInt("API_MAX_ANALYZE_POSTS", 10000),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.WindowFetchSize <= 0 {
		return nil, fmt.Errorf("API_WINDOW_FETCH_SIZE must be positive")
	}
	if c.MaxAnalyzePosts <= 0 {
		return nil, fmt.Errorf("API_MAX_ANALYZE_POSTS must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "1488h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
