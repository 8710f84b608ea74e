package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facereg/internal/activity"
	"github.com/your-org/facereg/internal/analyzer"
	"github.com/your-org/facereg/internal/api"
	"github.com/your-org/facereg/internal/api/ws"
	"github.com/your-org/facereg/internal/config"
	"github.com/your-org/facereg/internal/engine"
	"github.com/your-org/facereg/internal/fingerprint"
	"github.com/your-org/facereg/internal/gallery"
	"github.com/your-org/facereg/internal/observability"
	"github.com/your-org/facereg/internal/queue"
	"github.com/your-org/facereg/internal/storage"
	"github.com/your-org/facereg/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting face registration service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database, cfg.Matching.EmbeddingDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Rebuild the in-memory gallery and fingerprint index from storage
	identities, err := db.LoadIdentities(context.Background())
	if err != nil {
		slog.Error("load identities", "error", err)
		os.Exit(1)
	}
	gal := gallery.New(db, gallery.NewRandomCodeGenerator())
	gal.Load(identities)
	observability.GalleryIdentities.Set(float64(gal.Size()))

	prints := fingerprint.NewIndex()
	snapshot, err := db.LoadFingerprints(context.Background())
	if err != nil {
		slog.Error("load fingerprints", "error", err)
		os.Exit(1)
	}
	prints.Load(snapshot)

	slog.Info("gallery loaded", "identities", gal.Size(), "fingerprints", prints.Len())

	// Connect to MinIO
	images, err := storage.NewImageStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := images.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Resolution engine
	eng := engine.New(gal, prints, db, cfg.Matching.DefaultThreshold)
	eng.SetPublisher(producer)

	// External face analyzer
	faces := analyzer.NewClient(cfg.Analyzer)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Consume resolution outcomes and broadcast them via WebSocket
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create detection consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeDetections(ctx, "api-detections", func(ctx context.Context, msg jetstream.Msg) error {
		var notice engine.Notice
		if err := json.Unmarshal(msg.Data(), &notice); err != nil {
			return err
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:            string(notice.Outcome),
			IdentityID:      notice.IdentityID,
			DisplayCode:     notice.DisplayCode,
			Confidence:      notice.Confidence,
			TotalDetections: notice.TotalDetections,
			EventID:         notice.EventID,
			OccurredAt:      notice.OccurredAt.Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		slog.Warn("start detection consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		DB:       db,
		Images:   images,
		Producer: producer,
		Hub:      hub,
		Engine:   eng,
		Analyzer: faces,
		Activity: activity.NewLog(db),
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
