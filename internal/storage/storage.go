package storage

import (
	"context"

	"escrowScope/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// EventSink receives decoded events and the logs that failed to decode.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.TypedEvent) error
	PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error
}
