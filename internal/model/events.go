package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event names shared by decoded records and the schema table.
const (
	EventOfferRegistered   = "OfferRegistered"
	EventOfferActivated    = "OfferActivated"
	EventOfferTakerUpdated = "OfferTakerUpdated"
	EventOfferUnlocked     = "OfferUnlocked"
	EventBridgeDeposit     = "BridgeDeposit"
	EventAllowListUpdated  = "AllowListUpdated"
)

// Event is a decoded contract event.
//
// Word returns the named field as a 32-byte ABI word so values of any type
// can be compared the same way a topic filter compares them. Dynamic fields
// are reported as the keccak256 of their contents, which is what the chain
// stores when such a field is indexed.
type Event interface {
	EventName() string
	Word(field string) (common.Hash, bool)
}

// OfferRegistered is emitted when a maker escrows an asset for a counterparty.
type OfferRegistered struct {
	OfferID            *big.Int       `json:"offer_id"`
	Maker              common.Address `json:"maker"`
	MakerIntmaxAddress common.Hash    `json:"maker_intmax_address"`
	AssetID            *big.Int       `json:"asset_id"`
	Amount             *big.Int       `json:"amount"`
	Counterparty       common.Address `json:"counterparty"`
	CounterpartyToken  common.Address `json:"counterparty_token"`
	CounterpartyAmount *big.Int       `json:"counterparty_amount"`
}

func (OfferRegistered) EventName() string { return EventOfferRegistered }

func (e OfferRegistered) Word(field string) (common.Hash, bool) {
	switch field {
	case "offer_id":
		return BigWord(e.OfferID), true
	case "maker":
		return AddressWord(e.Maker), true
	case "maker_intmax_address":
		return e.MakerIntmaxAddress, true
	case "asset_id":
		return BigWord(e.AssetID), true
	case "amount":
		return BigWord(e.Amount), true
	case "counterparty":
		return AddressWord(e.Counterparty), true
	case "counterparty_token":
		return AddressWord(e.CounterpartyToken), true
	case "counterparty_amount":
		return BigWord(e.CounterpartyAmount), true
	}
	return common.Hash{}, false
}

// OfferActivated is emitted when the taker side of an offer is settled.
type OfferActivated struct {
	OfferID        *big.Int    `json:"offer_id"`
	TakerReference common.Hash `json:"taker_reference"`
}

func (OfferActivated) EventName() string { return EventOfferActivated }

func (e OfferActivated) Word(field string) (common.Hash, bool) {
	switch field {
	case "offer_id":
		return BigWord(e.OfferID), true
	case "taker_reference":
		return e.TakerReference, true
	}
	return common.Hash{}, false
}

// OfferTakerUpdated is emitted when the maker reassigns the intended taker.
type OfferTakerUpdated struct {
	OfferID            *big.Int    `json:"offer_id"`
	TakerIntmaxAddress common.Hash `json:"taker_intmax_address"`
}

func (OfferTakerUpdated) EventName() string { return EventOfferTakerUpdated }

func (e OfferTakerUpdated) Word(field string) (common.Hash, bool) {
	switch field {
	case "offer_id":
		return BigWord(e.OfferID), true
	case "taker_intmax_address":
		return e.TakerIntmaxAddress, true
	}
	return common.Hash{}, false
}

// OfferUnlocked is emitted by the reverse offer manager on release.
type OfferUnlocked struct {
	OfferID *big.Int `json:"offer_id"`
}

func (OfferUnlocked) EventName() string { return EventOfferUnlocked }

func (e OfferUnlocked) Word(field string) (common.Hash, bool) {
	if field == "offer_id" {
		return BigWord(e.OfferID), true
	}
	return common.Hash{}, false
}

// BridgeDeposit is a cross-chain bridge deposit leaf.
type BridgeDeposit struct {
	LeafType           uint8          `json:"leaf_type"`
	OriginNetwork      uint32         `json:"origin_network"`
	OriginAddress      common.Address `json:"origin_address"`
	DestinationNetwork uint32         `json:"destination_network"`
	DestinationAddress common.Address `json:"destination_address"`
	Amount             *big.Int       `json:"amount"`
	Metadata           hexutil.Bytes  `json:"metadata"`
	DepositCount       uint32         `json:"deposit_count"`
}

func (BridgeDeposit) EventName() string { return EventBridgeDeposit }

func (e BridgeDeposit) Word(field string) (common.Hash, bool) {
	switch field {
	case "leaf_type":
		return UintWord(uint64(e.LeafType)), true
	case "origin_network":
		return UintWord(uint64(e.OriginNetwork)), true
	case "origin_address":
		return AddressWord(e.OriginAddress), true
	case "destination_network":
		return UintWord(uint64(e.DestinationNetwork)), true
	case "destination_address":
		return AddressWord(e.DestinationAddress), true
	case "amount":
		return BigWord(e.Amount), true
	case "metadata":
		return crypto.Keccak256Hash(e.Metadata), true
	case "deposit_count":
		return UintWord(uint64(e.DepositCount)), true
	}
	return common.Hash{}, false
}

// AllowListUpdated toggles a token's membership in a contract allow-list.
type AllowListUpdated struct {
	Token     common.Address `json:"token"`
	IsAllowed bool           `json:"is_allowed"`
}

func (AllowListUpdated) EventName() string { return EventAllowListUpdated }

func (e AllowListUpdated) Word(field string) (common.Hash, bool) {
	switch field {
	case "token":
		return AddressWord(e.Token), true
	case "is_allowed":
		return BoolWord(e.IsAllowed), true
	}
	return common.Hash{}, false
}

// BigWord left-pads an unsigned integer to 32 bytes. A nil value is zero.
func BigWord(v *big.Int) common.Hash {
	if v == nil {
		return common.Hash{}
	}
	return common.BigToHash(v)
}

// UintWord left-pads v to 32 bytes.
func UintWord(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

// AddressWord places addr in the low 20 bytes of a word.
func AddressWord(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// BoolWord encodes true as 1 and false as 0.
func BoolWord(v bool) common.Hash {
	if v {
		return UintWord(1)
	}
	return common.Hash{}
}
