package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"docqa/internal/adapter/memory"
	"docqa/internal/adapter/pgvector"
	"docqa/internal/adapter/qdrant"
	wstore "docqa/internal/adapter/weaviate"
	"docqa/internal/blob"
	"docqa/internal/config"
	"docqa/internal/provider"
)

type Dependencies struct {
	DB          *sql.DB
	Index       provider.VectorIndex
	Blobs       blob.Store
	NSQProducer *nsq.Producer
}

// Pinger is implemented by vector backends that run as a separate server.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	db, err := OpenDB(ctx, cfg, retryDelay)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("migrations applied successfully")

	index, err := NewVectorIndex(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if p, ok := index.(Pinger); ok {
		if err := PingWithRetry(ctx, p, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			db.Close()
			return nil, fmt.Errorf("vector backend %s unreachable: %w", cfg.VectorProvider, err)
		}
	}
	slog.Info("vector backend ready", "provider", cfg.VectorProvider)

	blobs, err := NewBlobStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	// Consumers querying lookupd fail until a topic exists.
	createTopics(cfg.NSQDHTTP)

	return &Dependencies{
		DB:          db,
		Index:       index,
		Blobs:       blobs,
		NSQProducer: producer,
	}, nil
}

func OpenDB(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// NewVectorIndex builds the backend named by VECTOR_PROVIDER. The pgvector
// backend shares the service database.
func NewVectorIndex(ctx context.Context, cfg *config.Config, db *sql.DB) (provider.VectorIndex, error) {
	policy := RetryPolicy(cfg)
	switch cfg.VectorProvider {
	case config.VectorWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		return wstore.NewStore(client, policy), nil
	case config.VectorQdrant:
		return qdrant.NewStore(qdrant.Config{URL: cfg.QdrantURL, APIKey: cfg.QdrantAPIKey, Policy: policy}), nil
	case config.VectorPgvector:
		store, err := pgvector.NewStore(ctx, db, policy)
		if err != nil {
			return nil, fmt.Errorf("pgvector store error: %w", err)
		}
		return store, nil
	case config.VectorMemory:
		slog.Warn("using in-memory vector index, vectors are lost on restart")
		return memory.NewIndex(), nil
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.VectorProvider)
	}
}

func NewBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobProvider {
	case config.BlobMinio:
		store, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio store error: %w", err)
		}
		return store, nil
	case config.BlobDisk:
		return blob.NewDiskStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown blob provider %q", cfg.BlobProvider)
	}
}

// PingWithRetry waits for a backend to answer.
func PingWithRetry(ctx context.Context, p Pinger, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = p.Ping(ctx); err == nil {
			return nil
		}
		slog.Warn("backend not ready, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIngestAsset)
	}()
}
