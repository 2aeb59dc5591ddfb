// Package filter matches decoded events against per-field candidate sets and
// translates the indexed part of those sets into log query topic filters.
package filter

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"escrowScope/internal/escrow"
	"escrowScope/internal/model"
)

// Filters maps a field name to the 32-byte words accepted for it.
// Candidates are OR-matched. A missing or empty entry does not constrain.
type Filters map[string][]common.Hash

// With returns a copy of f with field constrained to values.
func (f Filters) With(field string, values ...common.Hash) Filters {
	out := make(Filters, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[field] = append([]common.Hash(nil), values...)
	return out
}

// Fields returns the constrained field names in sorted order.
func (f Filters) Fields() []string {
	names := make([]string, 0, len(f))
	for name, values := range f {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (f Filters) String() string {
	parts := make([]string, 0, len(f))
	for _, name := range f.Fields() {
		parts = append(parts, fmt.Sprintf("%s=%d", name, len(f[name])))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Matches reports whether every constrained field of ev holds one of its
// candidate words. A constraint on a field ev does not carry never matches.
func Matches(ev model.Event, f Filters) bool {
	for name, candidates := range f {
		if len(candidates) == 0 {
			continue
		}
		word, ok := ev.Word(name)
		if !ok || !contains(candidates, word) {
			return false
		}
	}
	return true
}

// TopicFilters builds the topics of a log query for s: topic0 first, then
// one OR-set per indexed position. Unconstrained positions are nil and
// trailing nils are dropped. Constraints on data fields are left for
// Matches to apply after decoding.
func TopicFilters(s *escrow.Schema, f Filters) ([][]common.Hash, error) {
	for name := range f {
		if !s.HasField(name) {
			return nil, fmt.Errorf("filter on unknown field %s for %s", name, s.Signature())
		}
	}

	indexed := s.IndexedFields()
	topics := make([][]common.Hash, 1+len(indexed))
	topics[0] = []common.Hash{s.Topic()}
	for i, field := range indexed {
		if values := f[field.Name]; len(values) > 0 {
			topics[i+1] = append([]common.Hash(nil), values...)
		}
	}

	end := len(topics)
	for end > 1 && topics[end-1] == nil {
		end--
	}
	return topics[:end], nil
}

// MatchTopics applies a log query topic filter to a log's topics the way an
// RPC node does: positions are ANDed, candidates within a position ORed, and
// an empty position matches anything.
func MatchTopics(topics []common.Hash, query [][]common.Hash) bool {
	if len(query) > len(topics) {
		return false
	}
	for i, candidates := range query {
		if len(candidates) == 0 {
			continue
		}
		if !contains(candidates, topics[i]) {
			return false
		}
	}
	return true
}

// Addresses converts addresses into candidate words.
func Addresses(addrs ...common.Address) []common.Hash {
	out := make([]common.Hash, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, model.AddressWord(addr))
	}
	return out
}

// Uints converts unsigned integers into candidate words.
func Uints(values ...uint64) []common.Hash {
	out := make([]common.Hash, 0, len(values))
	for _, v := range values {
		out = append(out, model.UintWord(v))
	}
	return out
}

// Bigs converts big integers into candidate words.
func Bigs(values ...*big.Int) []common.Hash {
	out := make([]common.Hash, 0, len(values))
	for _, v := range values {
		out = append(out, model.BigWord(v))
	}
	return out
}

func contains(candidates []common.Hash, word common.Hash) bool {
	for _, c := range candidates {
		if c == word {
			return true
		}
	}
	return false
}
