package audit

import (
	"context"
	"log/slog"
)

// Sink receives entries fanned out from the recorder, e.g. the Kafka
// monitoring stream.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Worker drains the audit feed into a sink. It keeps stream publishing off
// the decision path and testable without wiring a broker.
type Worker struct {
	sink   Sink
	inbox  <-chan Entry
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Entry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run consumes until the context is cancelled. Publish failures are logged
// and skipped; the durable store already holds the entry.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.WarnContext(ctx, "audit stream publish failed",
					"request_id", entry.Request.ID,
					"error", err,
				)
			}
		}
	}
}
