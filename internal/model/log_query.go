package model

import "github.com/ethereum/go-ethereum/common"

// LogQuery selects logs from the raw log source. Topics follows the
// eth_getLogs convention: one OR-set per topic position, nil for any.
type LogQuery struct {
	Addresses []common.Address
	Topics    [][]common.Hash
	FromBlock uint64
	ToBlock   uint64
}
