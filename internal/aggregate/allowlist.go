package aggregate

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"escrowScope/internal/model"
)

// AllowListChange is one TokenAllowListUpdated event with its chain position.
type AllowListChange struct {
	Token       common.Address
	IsAllowed   bool
	BlockNumber uint64
	LogIndex    uint64
}

// ChangeFromEvent tags a decoded allow-list event with its log position.
func ChangeFromEvent(ev model.AllowListUpdated, blockNumber, logIndex uint64) AllowListChange {
	return AllowListChange{
		Token:       ev.Token,
		IsAllowed:   ev.IsAllowed,
		BlockNumber: blockNumber,
		LogIndex:    logIndex,
	}
}

// FoldAllowList replays changes in (block, log index) order starting from an
// empty set and returns the allowed tokens sorted by address bytes. The last
// change for a token decides its membership.
func FoldAllowList(changes []AllowListChange) []common.Address {
	return FoldAllowListFrom(nil, changes)
}

// FoldAllowListFrom is FoldAllowList starting from the members of base.
// changes must all be newer than the state base describes.
func FoldAllowListFrom(base []common.Address, changes []AllowListChange) []common.Address {
	ordered := make([]AllowListChange, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	set := make(map[common.Address]struct{}, len(base))
	for _, token := range base {
		set[token] = struct{}{}
	}
	for _, change := range ordered {
		if change.IsAllowed {
			set[change.Token] = struct{}{}
		} else {
			delete(set, change.Token)
		}
	}

	out := make([]common.Address, 0, len(set))
	for token := range set {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
