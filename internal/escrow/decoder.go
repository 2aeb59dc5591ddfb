package escrow

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"escrowScope/internal/model"
)

// Unpack checks raw against the layout of s and returns its field values.
func Unpack(s *Schema, raw model.RawLog) (Values, error) {
	if len(raw.Topics) == 0 {
		return Values{}, decodeErr(ErrTopicCountMismatch, s.Name, "log has no topics")
	}
	if raw.Topics[0] != s.topic {
		return Values{}, decodeErr(ErrSchemaMismatch, s.Name, "topic0 %s is not %s", raw.Topics[0].Hex(), s.signature)
	}

	indexed := s.IndexedFields()
	if len(raw.Topics)-1 != len(indexed) {
		return Values{}, decodeErr(ErrTopicCountMismatch, s.Name, "expected %d topics, got %d", len(indexed)+1, len(raw.Topics))
	}

	v := NewValues()
	for i, f := range indexed {
		word := raw.Topics[i+1]
		if err := checkWord(s, f, word); err != nil {
			return Values{}, err
		}
		v.SetWord(f.Name, word)
	}

	for slot, f := range s.DataFields() {
		if f.Dynamic() {
			payload, err := ExtractDynamic(raw.Data, uint32(slot))
			if err != nil {
				return Values{}, withEvent(err, s.Name, f.Name)
			}
			v.SetBytes(f.Name, payload)
			continue
		}
		word, err := readWord(raw.Data, uint64(slot)*wordSize)
		if err != nil {
			return Values{}, withEvent(err, s.Name, f.Name)
		}
		if err := checkWord(s, f, word); err != nil {
			return Values{}, err
		}
		v.SetWord(f.Name, word)
	}
	return v, nil
}

// DecodeWith decodes raw using one specific schema.
func DecodeWith(s *Schema, raw model.RawLog) (model.Event, error) {
	v, err := Unpack(s, raw)
	if err != nil {
		return nil, err
	}
	return s.build(v), nil
}

// Decode decodes raw as an instance of the event with the given signature.
// When several schema versions share the signature, the one whose indexed
// field count matches the log's topics is used.
func Decode(raw model.RawLog, signature string) (model.Event, error) {
	candidates, err := LookupSignature(signature)
	if err != nil {
		return nil, err
	}
	s := selectSchema(candidates, raw)
	return DecodeWith(s, raw)
}

func selectSchema(candidates []*Schema, raw model.RawLog) *Schema {
	for _, s := range candidates {
		if len(raw.Topics) == len(s.IndexedFields())+1 {
			return s
		}
	}
	return candidates[0]
}

func checkWord(s *Schema, f Field, word common.Hash) error {
	switch f.Kind() {
	case KindUint:
		bits := f.Bits()
		if bits >= 256 {
			return nil
		}
		if word.Big().BitLen() > bits {
			return decodeErr(ErrSchemaMismatch, s.Name, "%s overflows %s", f.Name, f.Type)
		}
	case KindBool:
		if word != (common.Hash{}) && word != model.BoolWord(true) {
			return decodeErr(ErrSchemaMismatch, s.Name, "%s is not a bool word", f.Name)
		}
	}
	return nil
}

func withEvent(err error, event, field string) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return &DecodeError{Kind: de.Kind, Event: event, Detail: fmt.Sprintf("%s: %s", field, de.Detail)}
	}
	return err
}

// DecoderConfig selects which schemas a Decoder accepts. Empty means all.
type DecoderConfig struct {
	Keys []string
}

// Decoder dispatches logs to schemas by topic0.
type Decoder struct {
	byTopic map[common.Hash][]*Schema
}

// NewDecoder builds a decoder over the configured schemas.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	selected := schemas
	if len(cfg.Keys) > 0 {
		selected = make([]*Schema, 0, len(cfg.Keys))
		for _, key := range cfg.Keys {
			s, err := LookupKey(key)
			if err != nil {
				return nil, err
			}
			selected = append(selected, s)
		}
	}

	byTopic := make(map[common.Hash][]*Schema)
	for _, s := range selected {
		byTopic[s.topic] = append(byTopic[s.topic], s)
	}
	return &Decoder{byTopic: byTopic}, nil
}

// CanDecode checks if topic0 belongs to a configured schema.
func (d *Decoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.byTopic[topic0]
	return ok
}

// Decode converts raw into an event and reports the schema used.
func (d *Decoder) Decode(raw model.RawLog) (model.Event, *Schema, error) {
	if len(raw.Topics) == 0 {
		return nil, nil, decodeErr(ErrTopicCountMismatch, "", "log has no topics")
	}
	candidates, ok := d.byTopic[raw.Topics[0]]
	if !ok {
		return nil, nil, decodeErr(ErrSchemaMismatch, "", "unsupported topic0 %s", raw.Topics[0].Hex())
	}
	s := selectSchema(candidates, raw)
	ev, err := DecodeWith(s, raw)
	if err != nil {
		return nil, s, err
	}
	return ev, s, nil
}

// TypedEvent wraps a decoded event with the coordinates of its log.
func TypedEvent(chainID uint64, raw model.RawLog, timestamp uint64, s *Schema, ev model.Event) model.TypedEvent {
	var raw0 string
	if len(raw.Topics) > 0 {
		raw0 = raw.Topics[0].Hex()
	}
	return model.TypedEvent{
		ChainID:     chainID,
		BlockNumber: raw.BlockNumber,
		BlockHash:   raw.BlockHash.Hex(),
		TxHash:      raw.TxHash.Hex(),
		LogIndex:    raw.LogIndex,
		Address:     raw.Address.Hex(),
		EventName:   ev.EventName(),
		Signature:   s.Signature(),
		Timestamp:   timestamp,
		Decoded:     ev,
		Raw:         &model.RawLogRef{Topic0: raw0, Data: hexutil.Encode(raw.Data)},
	}
}
