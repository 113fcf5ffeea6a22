package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/sop-rag/internal/adapters/http"
	"github.com/kirillkom/sop-rag/internal/bootstrap"
	"github.com/kirillkom/sop-rag/internal/observability/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(httpadapter.Deps{
		Query:     app.QueryUC,
		Ingestor:  app.IngestUC,
		Remover:   app.RemoveUC,
		Documents: app.Documents,
		Cache:     app.Cache,
		Index:     app.Index,
		Metrics:   metrics.NewHTTPMetrics(),
		Logger:    app.Logger,
		RateLimit: httpadapter.RateLimitConfig{
			RPS:   app.Config.APIRateLimitRPS,
			Burst: app.Config.APIRateLimitBurst,
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config.APIPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		app.Logger.Info("api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	app.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("shutdown failed", "error", err)
	}
}
