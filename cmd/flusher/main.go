// Command flusher drains the temp-answer outbox on an interval without
// serving the HTTP API. Useful as a sidecar when the main process only
// accumulates snapshots.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/taskform/internal/config"
	"example.com/taskform/internal/outbox"
	"example.com/taskform/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	executor, cleanup, err := buildExecutor(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build executor: %v", err)
	}
	defer cleanup()

	var opts []outbox.Option
	if cfg.OutboxStorageKey != "" {
		opts = append(opts, outbox.WithStorageKey(cfg.OutboxStorageKey))
	}
	sync := outbox.NewService(db, executor, opts...)

	runner := outbox.NewRunner(sync, cfg.FlushInterval, log.Default())
	go runner.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddress, Handler: mux}
	go func() {
		log.Printf("flusher metrics on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownCh

	cancel()
	server.Close()
	runner.Wait()
}

func buildExecutor(ctx context.Context, cfg config.Config) (outbox.Executor, func(), error) {
	switch cfg.OutboxExecutor {
	case config.ExecutorKafka:
		exec := outbox.NewKafkaExecutor(cfg.KafkaBrokers, cfg.KafkaTopic)
		return exec, func() { exec.Close() }, nil
	case config.ExecutorPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return outbox.NewPostgresExecutor(pool), pool.Close, nil
	default:
		exec := outbox.NewGraphQLExecutor(cfg.GraphQLEndpoint, cfg.GraphQLAPIKey, cfg.GraphQLTimeout)
		return exec, func() {}, nil
	}
}
