package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nsqio/go-nsq"
	"github.com/panjf2000/ants/v2"

	"lumen/ingest/features/document"
	"lumen/ingest/features/job"
	"lumen/ingest/features/plan"
	"lumen/ingest/features/stats"
	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/config"
	"lumen/ingest/internal/middleware"
	"lumen/ingest/internal/queue"
	"lumen/ingest/internal/worker"
	"lumen/ingest/internal/ws"
)

// ProgressBus publishes worker progress and feeds gateway subscriptions.
// *cache.Broadcaster satisfies it.
type ProgressBus interface {
	PublishJobUpdate(ctx context.Context, jobID string, ev cache.Event)
	Subscribe(ctx context.Context, channel string) (<-chan cache.Event, func())
}

// BlobStore is the full object storage surface the app needs: uploads
// write, extraction reads, deletion removes. *storage.ObjectStore
// satisfies it.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// App wires repositories, services, HTTP routes and the pipeline
// consumers. Consumers are plain nsq.Handlers; Run connects them.
type App struct {
	Handler http.Handler

	Router        nsq.Handler
	TextExtractor nsq.Handler
	ChunkEmbedder nsq.Handler
	Deleter       nsq.Handler

	cfg  *config.Config
	pool *ants.Pool
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore worker.VectorStore,
	taskPub queue.Publisher,
	commands cache.Commands,
	bus ProgressBus,
	blobs BlobStore,
	embedder worker.Embedder,
) (*App, error) {
	state := cache.NewJobState(commands)
	plans := plan.NewPostgresResolver(db)

	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, state)

	docRepo := document.NewPostgresRepo(db)
	chunkRepo := document.NewChunkRepo(db)
	docService := document.NewService(docRepo, jobRepo, blobs, state, taskPub, plans)
	docHandler := document.NewHandler(docService, cfg.MaxUploadSizeMB<<20)

	statsHandler := stats.NewHandler(docRepo, jobRepo, chunkRepo)

	gateway := ws.NewGateway(jobService, bus, []byte(cfg.AuthSecret))
	wsTokens := ws.NewTokenHandler([]byte(cfg.AuthSecret))

	pool, err := ants.NewPool(cfg.EmbedPoolSize)
	if err != nil {
		return nil, fmt.Errorf("embed pool: %w", err)
	}

	auth := middleware.Auth([]byte(cfg.AuthSecret))
	route := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(auth(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /documents/upload", route(docHandler.Upload))
	mux.Handle("GET /documents", route(docHandler.List))
	mux.Handle("GET /documents/{id}/status", route(docHandler.Status))
	mux.Handle("POST /documents/{id}/reingest", route(docHandler.Reingest))
	mux.Handle("DELETE /documents/{id}", route(docHandler.Delete))
	mux.Handle("GET /stats", route(statsHandler.GetStats))
	mux.Handle("GET /ws-token", route(wsTokens.Issue))
	mux.Handle("GET /ws/progress", gateway)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:       mux,
		Router:        worker.NewRouterConsumer(jobRepo, docRepo, state, bus, taskPub, plans, cfg.MaxAttempts),
		TextExtractor: worker.NewTextExtractConsumer(jobRepo, docRepo, state, bus, taskPub, blobs, cfg.MaxAttempts),
		ChunkEmbedder: worker.NewChunkEmbedConsumer(jobRepo, docRepo, chunkRepo, state, bus, plans, embedder, vecStore, pool, cfg.MaxAttempts),
		Deleter:       worker.NewDeleteConsumer(jobRepo, docRepo, chunkRepo, state, blobs, vecStore),
		cfg:           cfg,
		pool:          pool,
	}, nil
}

// Run connects the pipeline consumers, serves HTTP and tears everything
// down when ctx ends.
func (a *App) Run(ctx context.Context) error {
	consumers, err := a.startConsumers()
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range consumers {
			c.Stop()
		}
		a.pool.Release()
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) startConsumers() ([]*nsq.Consumer, error) {
	touch := a.cfg.TouchInterval()
	stages := []struct {
		topic   string
		handler nsq.Handler
	}{
		{config.TopicDocumentIngest, a.Router},
		{config.TopicDocumentExtract, a.TextExtractor},
		{config.TopicDocumentChunkEmbed, a.ChunkEmbedder},
		{config.TopicDocumentDelete, a.Deleter},
	}

	var consumers []*nsq.Consumer
	for _, s := range stages {
		c, err := queue.NewConsumer(
			s.topic,
			config.ChannelPipeline,
			a.cfg.WorkerConcurrency,
			a.cfg.MaxAttempts,
			a.cfg.NSQLookupd,
			queue.WithTouch(s.handler, touch),
		)
		if err != nil {
			for _, started := range consumers {
				started.Stop()
			}
			return nil, fmt.Errorf("consumer %s: %w", s.topic, err)
		}
		consumers = append(consumers, c)
	}
	return consumers, nil
}
