package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/taskform/internal/api"
	"example.com/taskform/internal/auth"
	"example.com/taskform/internal/config"
	"example.com/taskform/internal/domain"
	"example.com/taskform/internal/outbox"
	"example.com/taskform/internal/store"
	httptransport "example.com/taskform/internal/transport/http"
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
	if cfg.OutboxDocument != "" {
		opts = append(opts, outbox.WithDocument(cfg.OutboxDocument))
	}
	sync := outbox.NewService(db, executor, opts...)

	runner := outbox.NewRunner(sync, cfg.FlushInterval, log.Default())
	go runner.Start(ctx)

	service := domain.NewService(db, sync, cfg.MaxParseDepth)

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	skipper := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, skipper)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address: cfg.HTTPAddress,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("taskform listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

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
