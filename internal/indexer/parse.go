package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"escrowScope/internal/escrow"
)

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseTopic0 converts string topic0 hashes into common.Hash.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0: %s", input)
		}
		if len(data) != 32 {
			return nil, fmt.Errorf("invalid topic0 length: %s", input)
		}
		topics = append(topics, common.BytesToHash(data))
	}
	return topics, nil
}

// SchemaTopics resolves schema keys into their topic0 hashes.
func SchemaTopics(keys []string) ([]common.Hash, error) {
	seen := make(map[common.Hash]struct{}, len(keys))
	topics := make([]common.Hash, 0, len(keys))
	for _, key := range keys {
		s, err := escrow.LookupKey(key)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[s.Topic()]; ok {
			continue
		}
		seen[s.Topic()] = struct{}{}
		topics = append(topics, s.Topic())
	}
	return topics, nil
}
