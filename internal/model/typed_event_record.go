package model

import (
	"encoding/json"
	"fmt"
)

// TypedEventRecord is the JSON representation read back by the aggregator.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Signature   string          `json:"signature"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// DecodePayload unmarshals Decoded into the record type named by EventName.
func (r TypedEventRecord) DecodePayload() (Event, error) {
	var ev Event
	switch r.EventName {
	case EventOfferRegistered:
		ev = &OfferRegistered{}
	case EventOfferActivated:
		ev = &OfferActivated{}
	case EventOfferTakerUpdated:
		ev = &OfferTakerUpdated{}
	case EventOfferUnlocked:
		ev = &OfferUnlocked{}
	case EventBridgeDeposit:
		ev = &BridgeDeposit{}
	case EventAllowListUpdated:
		ev = &AllowListUpdated{}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", r.EventName)
	}
	if err := json.Unmarshal(r.Decoded, ev); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", r.EventName, err)
	}
	return deref(ev), nil
}

func deref(ev Event) Event {
	switch typed := ev.(type) {
	case *OfferRegistered:
		return *typed
	case *OfferActivated:
		return *typed
	case *OfferTakerUpdated:
		return *typed
	case *OfferUnlocked:
		return *typed
	case *BridgeDeposit:
		return *typed
	case *AllowListUpdated:
		return *typed
	}
	return ev
}
