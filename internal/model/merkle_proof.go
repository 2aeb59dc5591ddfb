package model

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ExitTreeDepth is the number of sibling hashes in a bridge exit proof.
const ExitTreeDepth = 32

// MerkleProofResponse is the body returned by the bridge proof service.
type MerkleProofResponse struct {
	Proof ExitMerkleProof `json:"proof"`
}

// ExitMerkleProof proves a deposit leaf against the bridge exit roots.
type ExitMerkleProof struct {
	MerkleProof    [ExitTreeDepth]common.Hash
	MainExitRoot   common.Hash
	RollupExitRoot common.Hash
}

type exitMerkleProofJSON struct {
	MerkleProof    []common.Hash `json:"merkle_proof"`
	MainExitRoot   *common.Hash  `json:"main_exit_root"`
	RollupExitRoot *common.Hash  `json:"rollup_exit_root"`
}

// MarshalJSON writes every word as 0x-prefixed hex.
func (p ExitMerkleProof) MarshalJSON() ([]byte, error) {
	main, rollup := p.MainExitRoot, p.RollupExitRoot
	return json.Marshal(exitMerkleProofJSON{
		MerkleProof:    p.MerkleProof[:],
		MainExitRoot:   &main,
		RollupExitRoot: &rollup,
	})
}

// UnmarshalJSON requires exactly ExitTreeDepth proof words and both roots.
func (p *ExitMerkleProof) UnmarshalJSON(data []byte) error {
	var raw exitMerkleProofJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.MerkleProof) != ExitTreeDepth {
		return fmt.Errorf("merkle_proof: expected %d words, got %d", ExitTreeDepth, len(raw.MerkleProof))
	}
	if raw.MainExitRoot == nil {
		return fmt.Errorf("main_exit_root is required")
	}
	if raw.RollupExitRoot == nil {
		return fmt.Errorf("rollup_exit_root is required")
	}

	copy(p.MerkleProof[:], raw.MerkleProof)
	p.MainExitRoot = *raw.MainExitRoot
	p.RollupExitRoot = *raw.RollupExitRoot
	return nil
}
