package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"docqa/internal/rag"
	"docqa/internal/text"
)

var ErrMissingRequired = errors.New("missing required configuration")

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderCohere = "cohere"

	VectorWeaviate = "weaviate"
	VectorQdrant   = "qdrant"
	VectorPgvector = "pgvector"
	VectorMemory   = "memory"

	BlobMinio = "minio"
	BlobDisk  = "disk"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docqa"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docqa"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort        int      `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath      string   `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB   int64    `envconfig:"MAX_UPLOAD_SIZE_MB" default:"10"`
	AllowedExtensions []string `envconfig:"ALLOWED_EXTENSIONS" default:".txt,.md,.pdf,.xlsx,.docx,.odt,.rtf"`

	// Chunking
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"100"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"20"`

	// Retrieval
	SearchTopK           int     `envconfig:"SEARCH_TOP_K" default:"5"`
	SearchScoreThreshold float32 `envconfig:"SEARCH_SCORE_THRESHOLD" default:"0"`
	MaxContextTokens     int     `envconfig:"MAX_CONTEXT_TOKENS" default:"2000"`
	MaxOutputTokens      int     `envconfig:"MAX_OUTPUT_TOKENS" default:"512"`

	// Providers
	EmbeddingProvider  string  `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	GenerationProvider string  `envconfig:"GENERATION_PROVIDER" default:"gemini"`
	VectorProvider     string  `envconfig:"VECTOR_PROVIDER" default:"weaviate"`
	EmbeddingDimension int     `envconfig:"EMBEDDING_DIMENSION" default:"768"`
	EmbeddingModel     string  `envconfig:"EMBEDDING_MODEL"`
	GenerationModel    string  `envconfig:"GENERATION_MODEL"`
	EmbedBatchSize     int     `envconfig:"EMBED_BATCH_SIZE" default:"64"`
	EmbedConcurrency   int     `envconfig:"EMBED_CONCURRENCY" default:"4"`
	MaxInputTokens     int     `envconfig:"MAX_INPUT_TOKENS" default:"2048"`
	ProviderRPS        float64 `envconfig:"PROVIDER_RPS" default:"0"`
	GeminiAPIKey       string  `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey       string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL      string  `envconfig:"OPENAI_BASE_URL"`
	CohereAPIKey       string  `envconfig:"COHERE_API_KEY"`
	CohereBaseURL      string  `envconfig:"COHERE_BASE_URL"`

	// Retry
	ProviderRetryAttempts  int `envconfig:"PROVIDER_RETRY_ATTEMPTS" default:"3"`
	ProviderRetryBaseMS    int `envconfig:"PROVIDER_RETRY_BASE_MS" default:"200"`
	ProviderTimeoutSeconds int `envconfig:"PROVIDER_TIMEOUT_SECONDS" default:"30"`

	// Vector backends
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	QdrantURL      string `envconfig:"QDRANT_URL" default:"http://qdrant:6333"`
	QdrantAPIKey   string `envconfig:"QDRANT_API_KEY"`

	// Blob storage
	BlobProvider   string `envconfig:"BLOB_PROVIDER" default:"disk"`
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"minio:9000"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"assets"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Async ingestion
	NSQLookupd           string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost             string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP             string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableIngestWorker   bool   `envconfig:"ENABLE_INGEST_WORKER" default:"true"`
	IngestionConcurrency int    `envconfig:"INGESTION_CONCURRENCY" default:"4"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Missing .env files are fine, the shell may provide everything.
	_ = godotenv.Load(".env")
	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func invalid(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s", rag.ErrConfiguration, name, fmt.Sprintf(format, args...))
}

// Validate fails fast on anything the service cannot start with.
func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	if err := text.ValidateChunking(c.ChunkSize, c.ChunkOverlap); err != nil {
		return fmt.Errorf("CHUNK_SIZE/CHUNK_OVERLAP: %w", err)
	}

	if c.SearchTopK < 1 {
		return invalid("SEARCH_TOP_K", "must be at least 1")
	}
	if c.SearchScoreThreshold < -1 || c.SearchScoreThreshold > 1 {
		return invalid("SEARCH_SCORE_THRESHOLD", "must be between -1 and 1")
	}
	if c.MaxContextTokens < 1 {
		return invalid("MAX_CONTEXT_TOKENS", "must be at least 1")
	}
	if c.MaxOutputTokens < 1 {
		return invalid("MAX_OUTPUT_TOKENS", "must be at least 1")
	}

	if !oneOf(c.EmbeddingProvider, ProviderGemini, ProviderOpenAI, ProviderCohere) {
		return invalid("EMBEDDING_PROVIDER", "%q is not one of gemini, openai, cohere", c.EmbeddingProvider)
	}
	if !oneOf(c.GenerationProvider, ProviderGemini, ProviderOpenAI, ProviderCohere) {
		return invalid("GENERATION_PROVIDER", "%q is not one of gemini, openai, cohere", c.GenerationProvider)
	}
	if !oneOf(c.VectorProvider, VectorWeaviate, VectorQdrant, VectorPgvector, VectorMemory) {
		return invalid("VECTOR_PROVIDER", "%q is not one of weaviate, qdrant, pgvector, memory", c.VectorProvider)
	}
	if c.EmbeddingDimension < 1 {
		return invalid("EMBEDDING_DIMENSION", "must be positive")
	}

	// Gemini keys may also come from the settings row, the others cannot.
	uses := func(p string) bool { return c.EmbeddingProvider == p || c.GenerationProvider == p }
	if uses(ProviderOpenAI) && c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
	}
	if uses(ProviderCohere) && c.CohereAPIKey == "" {
		return fmt.Errorf("%w: COHERE_API_KEY", ErrMissingRequired)
	}

	if c.ProviderRetryAttempts < 1 {
		return invalid("PROVIDER_RETRY_ATTEMPTS", "must be at least 1")
	}
	if c.ProviderTimeoutSeconds < 1 {
		return invalid("PROVIDER_TIMEOUT_SECONDS", "must be at least 1")
	}

	switch c.BlobProvider {
	case BlobDisk:
		if c.UploadDir == "" {
			return fmt.Errorf("%w: UPLOAD_DIR", ErrMissingRequired)
		}
	case BlobMinio:
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("%w: MINIO_ACCESS_KEY/MINIO_SECRET_KEY", ErrMissingRequired)
		}
	default:
		return invalid("BLOB_PROVIDER", "%q is not one of minio, disk", c.BlobProvider)
	}

	for _, ext := range c.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return invalid("ALLOWED_EXTENSIONS", "entry %q must start with a dot", ext)
		}
	}
	return nil
}
