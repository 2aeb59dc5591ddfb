package model

import "time"

// AllowListSnapshot is the folded allow-list of a contract at a block height.
type AllowListSnapshot struct {
	ChainID    uint64    `json:"chain_id"`
	Contract   string    `json:"contract"`
	FromBlock  uint64    `json:"from_block"`
	ToBlock    uint64    `json:"to_block"`
	Tokens     []string  `json:"tokens"`
	ComputedAt time.Time `json:"computed_at"`
}
