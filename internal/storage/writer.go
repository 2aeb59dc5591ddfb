package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"escrowScope/internal/model"
)

// JSONLWriter writes one JSON value per line to a file it keeps open.
type JSONLWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func NewJSONLWriter(path string, appendMode bool) (*JSONLWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &JSONLWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *JSONLWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// JSONLEventSink writes typed events and decode errors to two JSONL files.
type JSONLEventSink struct {
	events *JSONLWriter
	errors *JSONLWriter
}

func NewJSONLEventSink(eventsPath, errorsPath string) (*JSONLEventSink, error) {
	events, err := NewJSONLWriter(eventsPath, false)
	if err != nil {
		return nil, err
	}
	errs, err := NewJSONLWriter(errorsPath, false)
	if err != nil {
		events.Close()
		return nil, err
	}
	return &JSONLEventSink{events: events, errors: errs}, nil
}

func (s *JSONLEventSink) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	for _, ev := range events {
		if err := s.events.Write(ev); err != nil {
			return fmt.Errorf("write typed event: %w", err)
		}
	}
	return nil
}

func (s *JSONLEventSink) PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error {
	for _, rec := range errs {
		if err := s.errors.Write(rec); err != nil {
			return fmt.Errorf("write decode error: %w", err)
		}
	}
	return nil
}

// Close flushes both files. Later calls are no-ops.
func (s *JSONLEventSink) Close() error {
	errEvents := s.events.Close()
	errErrors := s.errors.Close()
	s.events, s.errors = nil, nil
	if errEvents != nil {
		return errEvents
	}
	return errErrors
}
