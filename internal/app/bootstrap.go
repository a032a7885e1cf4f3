package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"lumen/ingest/internal/adapter/gemini"
	wstore "lumen/ingest/internal/adapter/weaviate"
	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/config"
	"lumen/ingest/internal/queue"
	"lumen/ingest/internal/storage"
	"lumen/ingest/internal/vector"
)

// Dependencies holds every external system handle the app wires against.
type Dependencies struct {
	DB          *sql.DB
	VectorStore *wstore.Store
	NSQProducer *nsq.Producer
	Commands    cache.Commands
	Broadcaster *cache.Broadcaster
	Blobs       *storage.ObjectStore
	Embedder    *gemini.Embedder
}

// Bootstrap connects to Postgres, Redis, Weaviate, MinIO, NSQ and Gemini,
// runs migrations and makes sure schema, bucket and topics exist.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	db, err := openDatabase(cfg, retryDelay)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, cfg.MigrationPath); err != nil {
		return nil, err
	}

	wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	if err := ensureSchemaWithRetry(ctx, vector.NewWeaviateClientAdapter(wClient), cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("weaviate schema: %w", err)
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer: %w", err)
	}
	queue.CreateTopics(cfg.NSQDHTTP,
		config.TopicDocumentIngest,
		config.TopicDocumentExtract,
		config.TopicDocumentOCR,
		config.TopicDocumentChunkEmbed,
		config.TopicDocumentDelete,
	)

	// Pub/sub connections cannot be shared with regular commands, so the
	// broadcaster gets its own client.
	commandClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	pubsubClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	if err := commandClient.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable at startup, cache will degrade to misses", "error", err)
	}

	minioClient, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if err := storage.EnsureBucket(ctx, minioClient, cfg.S3Bucket); err != nil {
		return nil, fmt.Errorf("minio bucket: %w", err)
	}

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Dependencies{
		DB:          db,
		VectorStore: wstore.NewStore(wClient),
		NSQProducer: producer,
		Commands:    cache.NewCommands(commandClient),
		Broadcaster: cache.NewBroadcaster(pubsubClient),
		Blobs:       storage.New(minioClient, cfg.S3Bucket),
		Embedder:    embedder,
	}, nil
}

func openDatabase(cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

func ensureSchemaWithRetry(ctx context.Context, client vector.SchemaClient, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = vector.EnsureSchema(ctx, client); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
