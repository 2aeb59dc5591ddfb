package filter

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowScope/internal/escrow"
	"escrowScope/internal/model"
)

var (
	makerA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	makerB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	tokenC = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func offer(id int64, maker common.Address) model.OfferRegistered {
	return model.OfferRegistered{
		OfferID:            big.NewInt(id),
		Maker:              maker,
		AssetID:            big.NewInt(3),
		Amount:             big.NewInt(100),
		CounterpartyToken:  tokenC,
		CounterpartyAmount: big.NewInt(1),
	}
}

func TestMatchesEmptyFilters(t *testing.T) {
	assert.True(t, Matches(offer(1, makerA), nil))
	assert.True(t, Matches(offer(1, makerA), Filters{}))
	assert.True(t, Matches(offer(1, makerA), Filters{"maker": nil}))
	assert.True(t, Matches(model.AllowListUpdated{Token: tokenC}, Filters{"maker": {}}))
}

func TestMatchesSingleCandidate(t *testing.T) {
	f := Filters{}.With("maker", Addresses(makerA)...)

	assert.True(t, Matches(offer(1, makerA), f))
	assert.False(t, Matches(offer(1, makerB), f))
}

func TestMatchesOrAcrossCandidates(t *testing.T) {
	f := Filters{"offer_id": Uints(1, 2)}

	assert.True(t, Matches(offer(1, makerA), f))
	assert.True(t, Matches(offer(2, makerA), f))
	assert.False(t, Matches(offer(3, makerA), f))
}

func TestMatchesAndAcrossFields(t *testing.T) {
	f := Filters{
		"offer_id": Bigs(big.NewInt(1)),
		"maker":    Addresses(makerB),
	}

	assert.False(t, Matches(offer(1, makerA), f))
	assert.True(t, Matches(offer(1, makerB), f))
}

func TestMatchesUnknownField(t *testing.T) {
	f := Filters{"origin_address": Addresses(makerA)}
	assert.False(t, Matches(offer(1, makerA), f))
}

func TestMatchesBridgeDeposit(t *testing.T) {
	deposit := model.BridgeDeposit{OriginAddress: makerA, Amount: big.NewInt(0), Metadata: []byte{0x01}}

	assert.True(t, Matches(deposit, Filters{"origin_address": Addresses(makerB, makerA)}))
	assert.False(t, Matches(deposit, Filters{"origin_address": Addresses(makerB)}))
	assert.True(t, Matches(deposit, Filters{"amount": Uints(0)}))
}

func TestWithDoesNotMutate(t *testing.T) {
	base := Filters{"maker": Addresses(makerA)}
	next := base.With("offer_id", Uints(1)...)

	assert.Len(t, base, 1)
	assert.Len(t, next, 2)
	assert.Equal(t, []string{"maker", "offer_id"}, next.Fields())
	assert.Equal(t, "{maker=1,offer_id=1}", next.String())
}

func TestTopicFilters(t *testing.T) {
	register, err := escrow.LookupKey(escrow.KeyRegister)
	require.NoError(t, err)

	topics, err := TopicFilters(register, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]common.Hash{{register.Topic()}}, topics)

	topics, err = TopicFilters(register, Filters{"maker": Addresses(makerA, makerB)})
	require.NoError(t, err)
	require.Len(t, topics, 3)
	assert.Nil(t, topics[1])
	assert.Equal(t, Addresses(makerA, makerB), topics[2])

	topics, err = TopicFilters(register, Filters{"offer_id": Uints(7)})
	require.NoError(t, err)
	assert.Equal(t, [][]common.Hash{{register.Topic()}, Uints(7)}, topics)

	// Data fields are not translated.
	topics, err = TopicFilters(register, Filters{"counterparty": Addresses(makerB)})
	require.NoError(t, err)
	assert.Len(t, topics, 1)

	_, err = TopicFilters(register, Filters{"origin_address": Addresses(makerB)})
	assert.Error(t, err)
}

func TestMatchTopics(t *testing.T) {
	register, err := escrow.LookupKey(escrow.KeyRegister)
	require.NoError(t, err)
	logTopics := []common.Hash{register.Topic(), model.UintWord(7), model.AddressWord(makerA)}

	query, err := TopicFilters(register, Filters{"maker": Addresses(makerA)})
	require.NoError(t, err)
	assert.True(t, MatchTopics(logTopics, query))

	query, err = TopicFilters(register, Filters{"maker": Addresses(makerB)})
	require.NoError(t, err)
	assert.False(t, MatchTopics(logTopics, query))

	assert.True(t, MatchTopics(logTopics, nil))
	assert.False(t, MatchTopics(logTopics[:1], [][]common.Hash{nil, nil}))
}
