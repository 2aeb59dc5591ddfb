package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"escrowScope/internal/model"
)

// Pack lays values out the way the contract emits them: indexed fields as
// topics after topic0, static fields in head slots, and dynamic fields as an
// offset pointer in their head slot with length and zero-padded payload in
// the tail.
func Pack(s *Schema, v Values) ([]common.Hash, []byte, error) {
	topics := []common.Hash{s.topic}
	for _, f := range s.IndexedFields() {
		word, ok := v.Word(f.Name)
		if !ok {
			return nil, nil, fmt.Errorf("pack %s: missing indexed field %s", s.Name, f.Name)
		}
		topics = append(topics, word)
	}

	fields := s.DataFields()
	head := make([]byte, 0, len(fields)*wordSize)
	var tail []byte
	for _, f := range fields {
		if f.Dynamic() {
			payload := v.Bytes(f.Name)
			offset := uint64(len(fields)*wordSize + len(tail))
			head = append(head, model.UintWord(offset).Bytes()...)
			tail = append(tail, model.UintWord(uint64(len(payload))).Bytes()...)
			tail = append(tail, common.RightPadBytes(payload, paddedLen(len(payload)))...)
			continue
		}
		word, ok := v.Word(f.Name)
		if !ok {
			return nil, nil, fmt.Errorf("pack %s: missing field %s", s.Name, f.Name)
		}
		head = append(head, word.Bytes()...)
	}
	return topics, append(head, tail...), nil
}

// Encode packs a decoded event back into topics and data using schema s.
func Encode(s *Schema, ev model.Event) ([]common.Hash, []byte, error) {
	if ev.EventName() != s.Record {
		return nil, nil, fmt.Errorf("encode %s: record %s does not match schema", s.Name, ev.EventName())
	}
	var v Values
	if s.flatten != nil {
		var ok bool
		v, ok = s.flatten(ev)
		if !ok {
			return nil, nil, fmt.Errorf("encode %s: unexpected record type %T", s.Name, ev)
		}
	} else {
		v = flattenWords(ev, s)
	}
	return Pack(s, v)
}

func paddedLen(n int) int {
	return (n + wordSize - 1) / wordSize * wordSize
}
