package aggregate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowScope/internal/model"
)

const allowListContract = "0x1111111111111111111111111111111111111111"

type memorySnapshotStore struct {
	snapshots []model.AllowListSnapshot
}

func (s *memorySnapshotStore) LatestAllowList(ctx context.Context, chainID uint64, contract string, atOrBefore uint64) (*model.AllowListSnapshot, error) {
	var latest *model.AllowListSnapshot
	for i := range s.snapshots {
		snap := s.snapshots[i]
		if snap.ChainID != chainID || !strings.EqualFold(snap.Contract, contract) || snap.ToBlock > atOrBefore {
			continue
		}
		if latest == nil || snap.ToBlock > latest.ToBlock {
			latest = &snap
		}
	}
	return latest, nil
}

func (s *memorySnapshotStore) InsertAllowListSnapshots(ctx context.Context, snapshots []model.AllowListSnapshot) error {
	s.snapshots = append(s.snapshots, snapshots...)
	return nil
}

func allowListLine(t *testing.T, token common.Address, allowed bool, block, index uint64) string {
	t.Helper()
	ev := model.TypedEvent{
		ChainID:     1,
		BlockNumber: block,
		LogIndex:    index,
		Address:     allowListContract,
		EventName:   model.EventAllowListUpdated,
		Signature:   "TokenAllowListUpdated(address,bool)",
		Decoded:     model.AllowListUpdated{Token: token, IsAllowed: allowed},
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return string(data)
}

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "typed.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestAggregatorRun(t *testing.T) {
	input := writeLines(t,
		allowListLine(t, tokenA, false, 20, 0),
		allowListLine(t, tokenA, true, 10, 0),
		allowListLine(t, tokenB, true, 15, 1),
		`{"event_name":"OfferActivated","block_number":16,"decoded":{"offer_id":1}}`,
		`not json`,
		"",
	)

	store := &memorySnapshotStore{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "aggregate.json")}
	agg := NewAggregator(Config{StateStore: state}, store, nil)
	agg.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, agg.Run(context.Background(), input))

	require.Len(t, store.snapshots, 1)
	snap := store.snapshots[0]
	assert.Equal(t, uint64(1), snap.ChainID)
	assert.Equal(t, uint64(10), snap.FromBlock)
	assert.Equal(t, uint64(20), snap.ToBlock)
	assert.Equal(t, []string{tokenB.Hex()}, snap.Tokens)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), snap.ComputedAt)

	progress, err := state.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Progress{ContractKey(1, allowListContract): 20}, progress)
}

func TestAggregatorResumesFromSnapshot(t *testing.T) {
	first := writeLines(t,
		allowListLine(t, tokenA, true, 10, 0),
		allowListLine(t, tokenB, true, 11, 0),
	)
	store := &memorySnapshotStore{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "aggregate.json")}

	require.NoError(t, NewAggregator(Config{StateStore: state}, store, nil).Run(context.Background(), first))
	require.Len(t, store.snapshots, 1)

	// Old lines are replayed alongside the new ones and must be ignored.
	second := writeLines(t,
		allowListLine(t, tokenA, true, 10, 0),
		allowListLine(t, tokenB, true, 11, 0),
		allowListLine(t, tokenA, false, 30, 0),
		allowListLine(t, tokenC, true, 31, 0),
	)
	require.NoError(t, NewAggregator(Config{StateStore: state}, store, nil).Run(context.Background(), second))

	require.Len(t, store.snapshots, 2)
	snap := store.snapshots[1]
	assert.Equal(t, uint64(30), snap.FromBlock)
	assert.Equal(t, uint64(31), snap.ToBlock)
	assert.Equal(t, []string{tokenB.Hex(), tokenC.Hex()}, snap.Tokens)
}

func TestAggregatorRecomputeIgnoresLaterSnapshots(t *testing.T) {
	store := &memorySnapshotStore{snapshots: []model.AllowListSnapshot{
		{ChainID: 1, Contract: allowListContract, FromBlock: 1, ToBlock: 50, Tokens: []string{tokenC.Hex()}},
	}}
	input := writeLines(t, allowListLine(t, tokenA, true, 10, 0))

	require.NoError(t, NewAggregator(Config{RecomputeFrom: 5}, store, nil).Run(context.Background(), input))

	require.Len(t, store.snapshots, 2)
	assert.Equal(t, []string{tokenA.Hex()}, store.snapshots[1].Tokens)
}

func TestAggregatorRecomputeReplaysSinceBaseSnapshot(t *testing.T) {
	store := &memorySnapshotStore{}
	ctx := context.Background()

	require.NoError(t, NewAggregator(Config{}, store, nil).Run(ctx, writeLines(t,
		allowListLine(t, tokenA, true, 10, 0),
	)))

	full := writeLines(t,
		allowListLine(t, tokenA, true, 10, 0),
		allowListLine(t, tokenC, true, 20, 0),
		allowListLine(t, tokenB, true, 40, 0),
	)
	require.NoError(t, NewAggregator(Config{RecomputeFrom: 11}, store, nil).Run(ctx, full))
	require.Len(t, store.snapshots, 2)
	assert.Equal(t, []string{tokenA.Hex(), tokenB.Hex(), tokenC.Hex()}, store.snapshots[1].Tokens)

	// Refolding from block 30 starts at the snapshot ending at 10, so the
	// token allowed at block 20 is replayed rather than lost.
	require.NoError(t, NewAggregator(Config{RecomputeFrom: 30}, store, nil).Run(ctx, full))
	require.Len(t, store.snapshots, 3)
	snap := store.snapshots[2]
	assert.Equal(t, uint64(20), snap.FromBlock)
	assert.Equal(t, uint64(40), snap.ToBlock)
	assert.Equal(t, []string{tokenA.Hex(), tokenB.Hex(), tokenC.Hex()}, snap.Tokens)
}

func TestAggregatorRecomputeWithoutSnapshotFoldsWholeInput(t *testing.T) {
	store := &memorySnapshotStore{}
	input := writeLines(t,
		allowListLine(t, tokenA, true, 10, 0),
		allowListLine(t, tokenB, true, 40, 0),
	)

	require.NoError(t, NewAggregator(Config{}, store, nil).Run(context.Background(), input))
	require.Len(t, store.snapshots, 1)
	require.Equal(t, uint64(40), store.snapshots[0].ToBlock)

	require.NoError(t, NewAggregator(Config{RecomputeFrom: 30}, store, nil).Run(context.Background(), input))
	require.Len(t, store.snapshots, 2)
	assert.Equal(t, uint64(40), store.snapshots[1].ToBlock)
	assert.Equal(t, store.snapshots[0].Tokens, store.snapshots[1].Tokens)
	assert.Equal(t, []string{tokenA.Hex(), tokenB.Hex()}, store.snapshots[1].Tokens)
}

func TestAggregatorTracksProgressPerContract(t *testing.T) {
	const otherContract = "0x2222222222222222222222222222222222222222"
	store := &memorySnapshotStore{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "aggregate.json")}
	ctx := context.Background()

	require.NoError(t, NewAggregator(Config{StateStore: state}, store, nil).Run(ctx, writeLines(t,
		allowListLine(t, tokenA, true, 50, 0),
	)))

	// A second contract first seen now has history below the first
	// contract's progress; none of it may be skipped.
	other := allowListLine(t, tokenB, true, 5, 0)
	other = strings.Replace(other, allowListContract, otherContract, 1)
	require.NoError(t, NewAggregator(Config{StateStore: state}, store, nil).Run(ctx, writeLines(t,
		allowListLine(t, tokenA, true, 50, 0),
		other,
	)))

	require.Len(t, store.snapshots, 2)
	snap := store.snapshots[1]
	assert.Equal(t, otherContract, snap.Contract)
	assert.Equal(t, []string{tokenB.Hex()}, snap.Tokens)

	progress, err := state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Progress{
		ContractKey(1, allowListContract): 50,
		ContractKey(1, otherContract):     5,
	}, progress)
}

func TestAggregatorRequiresStore(t *testing.T) {
	err := NewAggregator(Config{}, nil, nil).Run(context.Background(), "missing.jsonl")
	assert.Error(t, err)
}

func TestFileStateStoreMissing(t *testing.T) {
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "none.json")}
	progress, err := state.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, progress)
}
