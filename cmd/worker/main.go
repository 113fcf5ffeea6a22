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

	"github.com/kirillkom/sop-rag/internal/bootstrap"
	"github.com/kirillkom/sop-rag/internal/observability/metrics"
)

// processTimeout bounds one document run so a hung extraction cannot pin a
// worker slot forever.
const processTimeout = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics()
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config.WorkerMetricsPort),
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("metrics server failed", "error", err)
		}
	}()

	app.Logger.Info("worker consuming", "subject", app.Config.NATSSubject)
	err = app.Queue.SubscribeDocumentUploaded(ctx, func(msgCtx context.Context, documentID string) error {
		runCtx, cancel := context.WithTimeout(msgCtx, processTimeout)
		defer cancel()

		return workerMetrics.ObserveProcessing(func() error {
			if err := app.ProcessUC.ProcessByID(runCtx, documentID); err != nil {
				return err
			}
			doc, lookupErr := app.Documents.GetByID(runCtx, documentID)
			if lookupErr == nil {
				workerMetrics.AddChunksIndexed(doc.ChunkCount)
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error("subscription ended", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
