package escrow

import (
	"errors"
	"fmt"
)

// Error kinds returned by the decoders. Match with errors.Is.
var (
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrTopicCountMismatch  = errors.New("topic count mismatch")
	ErrTruncatedData       = errors.New("truncated data")
	ErrInvalidLength       = errors.New("invalid length")
	ErrUpstreamQueryFailed = errors.New("upstream query failed")
	ErrUnknownSchema       = errors.New("unknown schema")
)

// DecodeError describes why a log could not be decoded as Event.
type DecodeError struct {
	Kind   error
	Event  string
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("decode %s: %v: %s", e.Event, e.Kind, e.Detail)
}

func (e *DecodeError) Unwrap() error { return e.Kind }

func decodeErr(kind error, event string, format string, args ...interface{}) error {
	return &DecodeError{Kind: kind, Event: event, Detail: fmt.Sprintf(format, args...)}
}

// KindName returns a short label for err's kind, or "" if err is not a
// decode error.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrTopicCountMismatch):
		return "topic_count_mismatch"
	case errors.Is(err, ErrTruncatedData):
		return "truncated_data"
	case errors.Is(err, ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, ErrUpstreamQueryFailed):
		return "upstream_query_failed"
	case errors.Is(err, ErrUnknownSchema):
		return "unknown_schema"
	}
	return ""
}
