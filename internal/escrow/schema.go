package escrow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"escrowScope/internal/model"
)

// Kind is how a field's bytes are interpreted.
type Kind uint8

const (
	KindUint Kind = iota
	KindAddress
	KindBytes32
	KindBool
	KindBytes
)

// Field is one event parameter in declaration order.
type Field struct {
	Name    string
	Type    string
	Indexed bool
}

// Kind derives the interpretation from the Solidity type.
func (f Field) Kind() Kind {
	switch {
	case f.Type == "address":
		return KindAddress
	case f.Type == "bool":
		return KindBool
	case f.Type == "bytes":
		return KindBytes
	case strings.HasPrefix(f.Type, "bytes"):
		return KindBytes32
	default:
		return KindUint
	}
}

// Bits is the declared width of an unsigned integer field.
func (f Field) Bits() int {
	if f.Kind() != KindUint {
		return 256
	}
	bits, err := strconv.Atoi(strings.TrimPrefix(f.Type, "uint"))
	if err != nil || bits <= 0 {
		return 256
	}
	return bits
}

// Dynamic reports whether the field is encoded in the tail of the data blob.
func (f Field) Dynamic() bool { return f.Kind() == KindBytes }

// Schema declares the layout of one event version. Field order is the
// Solidity declaration order; indexed fields map to topics[1:] and the rest
// occupy consecutive 32-byte head slots of the data blob.
type Schema struct {
	Key     string
	Name    string
	Record  string
	Fields  []Field
	build   func(Values) model.Event
	flatten func(model.Event) (Values, bool)

	signature string
	topic     common.Hash
}

func newSchema(s Schema) *Schema {
	types := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		types = append(types, f.Type)
	}
	s.signature = fmt.Sprintf("%s(%s)", s.Name, strings.Join(types, ","))
	s.topic = crypto.Keccak256Hash([]byte(s.signature))
	return &s
}

// Signature is the canonical event signature, e.g. "Activate(uint256,bytes32)".
func (s *Schema) Signature() string { return s.signature }

// Topic is keccak256 of the signature, carried in topics[0].
func (s *Schema) Topic() common.Hash { return s.topic }

// IndexedFields returns the fields carried in topics[1:], in order.
func (s *Schema) IndexedFields() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Indexed {
			out = append(out, f)
		}
	}
	return out
}

// DataFields returns the fields packed into the data blob, in order.
func (s *Schema) DataFields() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !f.Indexed {
			out = append(out, f)
		}
	}
	return out
}

// TopicPosition returns the topic index of an indexed field, or -1.
func (s *Schema) TopicPosition(name string) int {
	pos := 1
	for _, f := range s.Fields {
		if !f.Indexed {
			continue
		}
		if f.Name == name {
			return pos
		}
		pos++
	}
	return -1
}

// HasField reports whether name is declared by the schema.
func (s *Schema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Schema keys.
const (
	KeyRegister          = "register"
	KeyRegisterLegacy    = "register-legacy"
	KeyActivate          = "activate"
	KeyOfferActivated    = "offer-activated"
	KeyOfferTakerUpdated = "offer-taker-updated"
	KeyLock              = "lock"
	KeyUnlock            = "unlock"
	KeyBridgeEvent       = "bridge-event"
	KeyTokenAllowList    = "token-allow-list-updated"
)

var offerFields = []Field{
	{Name: "offer_id", Type: "uint256", Indexed: true},
	{Name: "maker", Type: "address", Indexed: true},
	{Name: "maker_intmax_address", Type: "bytes32"},
	{Name: "asset_id", Type: "uint256"},
	{Name: "amount", Type: "uint256"},
	{Name: "counterparty", Type: "address"},
	{Name: "counterparty_token", Type: "address"},
	{Name: "counterparty_amount", Type: "uint256"},
}

func buildOffer(v Values) model.Event {
	return model.OfferRegistered{
		OfferID:            v.Big("offer_id"),
		Maker:              v.Address("maker"),
		MakerIntmaxAddress: v.Hash("maker_intmax_address"),
		AssetID:            v.Big("asset_id"),
		Amount:             v.Big("amount"),
		Counterparty:       v.Address("counterparty"),
		CounterpartyToken:  v.Address("counterparty_token"),
		CounterpartyAmount: v.Big("counterparty_amount"),
	}
}

func flattenWords(ev model.Event, s *Schema) Values {
	v := NewValues()
	for _, f := range s.Fields {
		if w, ok := ev.Word(f.Name); ok {
			v.SetWord(f.Name, w)
		}
	}
	return v
}

// All schemas the decoders understand.
var schemas = []*Schema{
	newSchema(Schema{
		Key:    KeyRegister,
		Name:   "Register",
		Record: model.EventOfferRegistered,
		Fields: offerFields,
		build:  buildOffer,
	}),
	// Early offer manager deployments packed the taker into the bytes32 slot
	// and had no separate maker intmax address.
	newSchema(Schema{
		Key:    KeyRegisterLegacy,
		Name:   "Register",
		Record: model.EventOfferRegistered,
		Fields: []Field{
			{Name: "offer_id", Type: "uint256", Indexed: true},
			{Name: "maker", Type: "address", Indexed: true},
			{Name: "counterparty", Type: "bytes32"},
			{Name: "asset_id", Type: "uint256"},
			{Name: "amount", Type: "uint256"},
			{Name: "counterparty_token", Type: "address"},
			{Name: "counterparty_amount", Type: "uint256"},
		},
		build: buildOffer,
	}),
	newSchema(Schema{
		Key:    KeyLock,
		Name:   "Lock",
		Record: model.EventOfferRegistered,
		Fields: offerFields,
		build:  buildOffer,
	}),
	newSchema(Schema{
		Key:    KeyActivate,
		Name:   "Activate",
		Record: model.EventOfferActivated,
		Fields: []Field{
			{Name: "offer_id", Type: "uint256", Indexed: true},
			{Name: "taker_reference", Type: "bytes32", Indexed: true},
		},
		build: func(v Values) model.Event {
			return model.OfferActivated{OfferID: v.Big("offer_id"), TakerReference: v.Hash("taker_reference")}
		},
	}),
	newSchema(Schema{
		Key:    KeyOfferActivated,
		Name:   "OfferActivated",
		Record: model.EventOfferActivated,
		Fields: []Field{
			{Name: "offer_id", Type: "uint256", Indexed: true},
			{Name: "taker_reference", Type: "bytes32", Indexed: true},
		},
		build: func(v Values) model.Event {
			return model.OfferActivated{OfferID: v.Big("offer_id"), TakerReference: v.Hash("taker_reference")}
		},
	}),
	newSchema(Schema{
		Key:    KeyOfferTakerUpdated,
		Name:   "OfferTakerUpdated",
		Record: model.EventOfferTakerUpdated,
		Fields: []Field{
			{Name: "offer_id", Type: "uint256", Indexed: true},
			{Name: "taker_intmax_address", Type: "bytes32", Indexed: true},
		},
		build: func(v Values) model.Event {
			return model.OfferTakerUpdated{OfferID: v.Big("offer_id"), TakerIntmaxAddress: v.Hash("taker_intmax_address")}
		},
	}),
	newSchema(Schema{
		Key:    KeyUnlock,
		Name:   "Unlock",
		Record: model.EventOfferUnlocked,
		Fields: []Field{
			{Name: "offer_id", Type: "uint256", Indexed: true},
		},
		build: func(v Values) model.Event {
			return model.OfferUnlocked{OfferID: v.Big("offer_id")}
		},
	}),
	newSchema(Schema{
		Key:    KeyBridgeEvent,
		Name:   "BridgeEvent",
		Record: model.EventBridgeDeposit,
		Fields: []Field{
			{Name: "leaf_type", Type: "uint8"},
			{Name: "origin_network", Type: "uint32"},
			{Name: "origin_address", Type: "address"},
			{Name: "destination_network", Type: "uint32"},
			{Name: "destination_address", Type: "address"},
			{Name: "amount", Type: "uint256"},
			{Name: "metadata", Type: "bytes"},
			{Name: "deposit_count", Type: "uint32"},
		},
		build: func(v Values) model.Event {
			return model.BridgeDeposit{
				LeafType:           uint8(v.Uint64("leaf_type")),
				OriginNetwork:      uint32(v.Uint64("origin_network")),
				OriginAddress:      v.Address("origin_address"),
				DestinationNetwork: uint32(v.Uint64("destination_network")),
				DestinationAddress: v.Address("destination_address"),
				Amount:             v.Big("amount"),
				Metadata:           v.Bytes("metadata"),
				DepositCount:       uint32(v.Uint64("deposit_count")),
			}
		},
		flatten: func(ev model.Event) (Values, bool) {
			deposit, ok := ev.(model.BridgeDeposit)
			if !ok {
				return Values{}, false
			}
			v := NewValues()
			for _, name := range []string{"leaf_type", "origin_network", "origin_address", "destination_network", "destination_address", "amount", "deposit_count"} {
				w, _ := deposit.Word(name)
				v.SetWord(name, w)
			}
			v.SetBytes("metadata", deposit.Metadata)
			return v, true
		},
	}),
	newSchema(Schema{
		Key:    KeyTokenAllowList,
		Name:   "TokenAllowListUpdated",
		Record: model.EventAllowListUpdated,
		Fields: []Field{
			{Name: "token", Type: "address", Indexed: true},
			{Name: "is_allowed", Type: "bool"},
		},
		build: func(v Values) model.Event {
			return model.AllowListUpdated{Token: v.Address("token"), IsAllowed: v.Bool("is_allowed")}
		},
	}),
}

// Schemas returns every known schema.
func Schemas() []*Schema {
	out := make([]*Schema, len(schemas))
	copy(out, schemas)
	return out
}

// LookupKey returns the schema registered under key.
func LookupKey(key string) (*Schema, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range schemas {
		if s.Key == key {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, key)
}

// LookupSignature returns the schemas declaring signature. Versions that
// differ only in which fields are indexed share a signature.
func LookupSignature(signature string) ([]*Schema, error) {
	signature = strings.ReplaceAll(strings.TrimSpace(signature), " ", "")
	var out []*Schema
	for _, s := range schemas {
		if s.signature == signature {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, signature)
	}
	return out, nil
}
