// Package nats moves document-processing events between the API and workers.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	defaultSubject = "documents.process"
	queueGroup     = "processors"
)

type Queue struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func New(url, subject string, logger *slog.Logger) (*Queue, error) {
	if subject == "" {
		subject = defaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("sop-rag"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	return &Queue{conn: conn, subject: subject, logger: logger}, nil
}

func (q *Queue) PublishDocumentUploaded(_ context.Context, documentID string) error {
	if err := q.conn.Publish(q.subject, []byte(documentID)); err != nil {
		return fmt.Errorf("publish document %s: %w", documentID, err)
	}
	// Flush so the publisher learns about a dead broker now, not on shutdown.
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("flush document %s: %w", documentID, err)
	}
	return nil
}

// SubscribeDocumentUploaded consumes document IDs in a queue group so that
// concurrent workers split the load. It blocks until ctx is done.
func (q *Queue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		documentID := string(msg.Data)
		if err := handler(ctx, documentID); err != nil {
			q.logger.Error("document processing failed",
				"document_id", documentID,
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", q.subject, err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		q.logger.Warn("nats drain failed", "error", err)
	}
	return ctx.Err()
}

func (q *Queue) Close() {
	if err := q.conn.Drain(); err != nil {
		q.logger.Warn("nats close drain failed", "error", err)
	}
	q.conn.Close()
}
