package indexer

import "fmt"

// BlockRange is an inclusive block range of a log query.
type BlockRange struct {
	From uint64
	To   uint64
}

// Halve splits r into two non-empty halves. A single-block range cannot be
// split and returns ok=false.
func (r BlockRange) Halve() (left, right BlockRange, ok bool) {
	if r.From >= r.To {
		return r, BlockRange{}, false
	}
	mid := r.From + (r.To-r.From)/2
	return BlockRange{From: r.From, To: mid}, BlockRange{From: mid + 1, To: r.To}, true
}

// SplitRange cuts [from, to] into consecutive ranges of at most batchSize
// blocks, the unit the runner fetches and checkpoints.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	var ranges []BlockRange
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}
