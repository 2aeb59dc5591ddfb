package aggregate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"escrowScope/internal/model"
)

// Accumulator collects allow-list changes for one contract until flushed.
// Base is the allow-list as of BaseBlock; only changes after BaseBlock are
// folded onto it.
type Accumulator struct {
	ChainID    uint64
	Contract   string
	Base       []common.Address
	BaseBlock  uint64
	Changes    []AllowListChange
	FirstBlock uint64
	LastBlock  uint64
}

func NewAccumulator(chainID uint64, contract string, base []common.Address, baseBlock uint64) *Accumulator {
	return &Accumulator{
		ChainID:   chainID,
		Contract:  contract,
		Base:      base,
		BaseBlock: baseBlock,
	}
}

// Covers reports whether block is already folded into Base.
func (a *Accumulator) Covers(block uint64) bool {
	return a.BaseBlock > 0 && block <= a.BaseBlock
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.EventName != model.EventAllowListUpdated {
		return nil
	}
	ev, err := record.DecodePayload()
	if err != nil {
		return fmt.Errorf("decode allow list update: %w", err)
	}
	update, ok := ev.(model.AllowListUpdated)
	if !ok {
		return fmt.Errorf("unexpected payload %T", ev)
	}

	if len(a.Changes) == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if record.BlockNumber > a.LastBlock {
		a.LastBlock = record.BlockNumber
	}
	a.Changes = append(a.Changes, ChangeFromEvent(update, record.BlockNumber, record.LogIndex))
	return nil
}

// Snapshot folds the collected changes onto Base.
func (a *Accumulator) Snapshot() model.AllowListSnapshot {
	tokens := FoldAllowListFrom(a.Base, a.Changes)
	hexTokens := make([]string, 0, len(tokens))
	for _, token := range tokens {
		hexTokens = append(hexTokens, token.Hex())
	}
	return model.AllowListSnapshot{
		ChainID:   a.ChainID,
		Contract:  a.Contract,
		FromBlock: a.FirstBlock,
		ToBlock:   a.LastBlock,
		Tokens:    hexTokens,
	}
}
