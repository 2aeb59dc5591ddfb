package escrow

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"escrowScope/internal/model"
)

// BatchPolicy decides what a batch decode does with a bad log.
type BatchPolicy int

const (
	// FailFast aborts the batch on the first decode error.
	FailFast BatchPolicy = iota
	// SkipInvalid drops undecodable logs and reports them as failures.
	SkipInvalid
)

// BatchOptions configures DecodeBatch.
type BatchOptions struct {
	Policy  BatchPolicy
	Workers int
}

// Decoded pairs a log with its decoded event. Index is the log's position
// in the batch.
type Decoded struct {
	Index  int
	Log    model.RawLog
	Schema *Schema
	Event  model.Event
}

// Failure is a log that could not be decoded under SkipInvalid.
type Failure struct {
	Index int
	Log   model.RawLog
	Err   error
}

// DecodeBatch decodes logs concurrently and returns results in input order.
// Logs without topics or whose topic0 the decoder does not know are skipped
// silently. Under FailFast the returned error is the one of the lowest failing
// index, regardless of worker scheduling.
func DecodeBatch(ctx context.Context, d *Decoder, logs []model.RawLog, opts BatchOptions) ([]Decoded, []Failure, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*Decoded, len(logs))
	errs := make([]error, len(logs))

	// Lowest index that failed so far; later logs are not worth decoding
	// under FailFast, earlier ones still are.
	var firstFailed atomic.Int64
	firstFailed.Store(math.MaxInt64)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range logs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if opts.Policy == FailFast && int64(i) > firstFailed.Load() {
				return nil
			}
			raw := logs[i]
			if len(raw.Topics) == 0 || !d.CanDecode(raw.Topics[0]) {
				return nil
			}
			ev, s, err := d.Decode(raw)
			if err != nil {
				errs[i] = err
				if opts.Policy == FailFast {
					lowerFirstFailed(&firstFailed, int64(i))
				}
				return nil
			}
			results[i] = &Decoded{Index: i, Log: raw, Schema: s, Event: ev}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if opts.Policy == FailFast {
		if idx := firstFailed.Load(); idx != math.MaxInt64 {
			return nil, nil, errs[idx]
		}
	}

	decoded := make([]Decoded, 0, len(logs))
	var failures []Failure
	for i := range logs {
		if errs[i] != nil {
			failures = append(failures, Failure{Index: i, Log: logs[i], Err: errs[i]})
			continue
		}
		if results[i] != nil {
			decoded = append(decoded, *results[i])
		}
	}
	return decoded, failures, nil
}

func lowerFirstFailed(v *atomic.Int64, idx int64) {
	for {
		cur := v.Load()
		if idx >= cur || v.CompareAndSwap(cur, idx) {
			return
		}
	}
}
