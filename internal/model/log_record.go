package model

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RawLog is a chain log as returned by the log source. Topics[0] is the
// event signature hash for non-anonymous events.
type RawLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	TxIndex     uint64
	LogIndex    uint64
	Removed     bool
}

// LogRecord is the normalized representation of a chain log for storage.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
	IngestedAt  string   `json:"ingested_at"`
}

// NewLogRecord renders a RawLog with the hex encodings used on disk.
func NewLogRecord(chainID uint64, raw RawLog, timestamp uint64, ingestedAt string) LogRecord {
	topics := make([]string, 0, len(raw.Topics))
	for _, topic := range raw.Topics {
		topics = append(topics, topic.Hex())
	}

	return LogRecord{
		ChainID:     chainID,
		BlockNumber: raw.BlockNumber,
		BlockHash:   raw.BlockHash.Hex(),
		TxHash:      raw.TxHash.Hex(),
		TxIndex:     raw.TxIndex,
		LogIndex:    raw.LogIndex,
		Address:     raw.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(raw.Data),
		Removed:     raw.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt,
	}
}

// RawLog parses the hex fields back into a RawLog.
func (lr LogRecord) RawLog() (RawLog, error) {
	if !common.IsHexAddress(lr.Address) {
		return RawLog{}, fmt.Errorf("invalid address: %s", lr.Address)
	}

	topics := make([]common.Hash, 0, len(lr.Topics))
	for _, topic := range lr.Topics {
		b, err := hexutil.Decode(topic)
		if err != nil {
			return RawLog{}, fmt.Errorf("invalid topic %q: %w", topic, err)
		}
		if len(b) != common.HashLength {
			return RawLog{}, fmt.Errorf("topic length %d", len(b))
		}
		topics = append(topics, common.BytesToHash(b))
	}

	data := []byte{}
	if lr.Data != "" && lr.Data != "0x" {
		var err error
		data, err = hexutil.Decode(lr.Data)
		if err != nil {
			return RawLog{}, fmt.Errorf("invalid data: %w", err)
		}
	}

	return RawLog{
		Address:     common.HexToAddress(lr.Address),
		Topics:      topics,
		Data:        data,
		BlockNumber: lr.BlockNumber,
		BlockHash:   common.HexToHash(lr.BlockHash),
		TxHash:      common.HexToHash(lr.TxHash),
		TxIndex:     lr.TxIndex,
		LogIndex:    lr.LogIndex,
		Removed:     lr.Removed,
	}, nil
}

// MarshalJSON ensures LogRecord is encoded with stable field names.
func (lr LogRecord) MarshalJSON() ([]byte, error) {
	type Alias LogRecord
	return json.Marshal(Alias(lr))
}

// UnmarshalJSON decodes a LogRecord from JSON.
func (lr *LogRecord) UnmarshalJSON(data []byte) error {
	type Alias LogRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*lr = LogRecord(a)
	return nil
}
