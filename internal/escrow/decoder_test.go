package escrow

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowScope/internal/model"
)

var (
	contractAddr = common.HexToAddress("0x007c969728eE4f068ceCF3405D65a037dB5BeEa1")
	makerAddr    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	takerAddr    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func packArgs(t *testing.T, types []string, values ...interface{}) []byte {
	t.Helper()
	args := make(abi.Arguments, 0, len(types))
	for _, typ := range types {
		abiType, err := abi.NewType(typ, "", nil)
		require.NoError(t, err)
		args = append(args, abi.Argument{Type: abiType})
	}
	data, err := args.Pack(values...)
	require.NoError(t, err)
	return data
}

func buildRawLog(topic0 common.Hash, data []byte, indexed ...common.Hash) model.RawLog {
	return model.RawLog{
		Address:     contractAddr,
		Topics:      append([]common.Hash{topic0}, indexed...),
		Data:        data,
		BlockNumber: 12345,
		TxHash:      common.HexToHash("0xdef"),
		LogIndex:    1,
	}
}

func mustSchema(t *testing.T, key string) *Schema {
	t.Helper()
	s, err := LookupKey(key)
	require.NoError(t, err)
	return s
}

func TestSchemaSignatures(t *testing.T) {
	want := map[string]string{
		KeyRegister:          "Register(uint256,address,bytes32,uint256,uint256,address,address,uint256)",
		KeyRegisterLegacy:    "Register(uint256,address,bytes32,uint256,uint256,address,uint256)",
		KeyActivate:          "Activate(uint256,bytes32)",
		KeyOfferActivated:    "OfferActivated(uint256,bytes32)",
		KeyOfferTakerUpdated: "OfferTakerUpdated(uint256,bytes32)",
		KeyLock:              "Lock(uint256,address,bytes32,uint256,uint256,address,address,uint256)",
		KeyUnlock:            "Unlock(uint256)",
		KeyBridgeEvent:       "BridgeEvent(uint8,uint32,address,uint32,address,uint256,bytes,uint32)",
		KeyTokenAllowList:    "TokenAllowListUpdated(address,bool)",
	}
	require.Len(t, Schemas(), len(want))

	for key, sig := range want {
		s := mustSchema(t, key)
		assert.Equal(t, sig, s.Signature(), key)
		assert.Equal(t, crypto.Keccak256Hash([]byte(sig)), s.Topic(), key)
	}
}

func TestDecodeLegacyRegister(t *testing.T) {
	sig := "Register(uint256,address,bytes32,uint256,uint256,address,uint256)"
	data := packArgs(t,
		[]string{"bytes32", "uint256", "uint256", "address", "uint256"},
		[32]byte(model.AddressWord(takerAddr)),
		big.NewInt(3),
		big.NewInt(100),
		common.Address{},
		big.NewInt(1),
	)
	raw := buildRawLog(crypto.Keccak256Hash([]byte(sig)), data,
		model.UintWord(7),
		model.AddressWord(makerAddr),
	)

	ev, err := Decode(raw, sig)
	require.NoError(t, err)

	offer, ok := ev.(model.OfferRegistered)
	require.True(t, ok, "decoded type %T", ev)
	assert.Equal(t, int64(7), offer.OfferID.Int64())
	assert.Equal(t, makerAddr, offer.Maker)
	assert.Equal(t, takerAddr, offer.Counterparty)
	assert.Equal(t, int64(3), offer.AssetID.Int64())
	assert.Equal(t, int64(100), offer.Amount.Int64())
	assert.Equal(t, common.Address{}, offer.CounterpartyToken)
	assert.Equal(t, int64(1), offer.CounterpartyAmount.Int64())
}

func TestDecodeRegister(t *testing.T) {
	s := mustSchema(t, KeyRegister)
	intmax := crypto.Keccak256Hash([]byte("maker intmax"))
	token := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	amount, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	data := packArgs(t,
		[]string{"bytes32", "uint256", "uint256", "address", "address", "uint256"},
		[32]byte(intmax),
		big.NewInt(1),
		amount,
		takerAddr,
		token,
		big.NewInt(5),
	)
	raw := buildRawLog(s.Topic(), data, model.UintWord(42), model.AddressWord(makerAddr))

	ev, err := DecodeWith(s, raw)
	require.NoError(t, err)
	offer := ev.(model.OfferRegistered)
	assert.Equal(t, int64(42), offer.OfferID.Int64())
	assert.Equal(t, intmax, offer.MakerIntmaxAddress)
	assert.Equal(t, 0, amount.Cmp(offer.Amount))
	assert.Equal(t, takerAddr, offer.Counterparty)
	assert.Equal(t, token, offer.CounterpartyToken)
	assert.Equal(t, int64(5), offer.CounterpartyAmount.Int64())

	topics, packed, err := Encode(s, offer)
	require.NoError(t, err)
	assert.Equal(t, raw.Topics, topics)
	assert.Equal(t, data, packed)
}

func TestDecodeActivate(t *testing.T) {
	s := mustSchema(t, KeyActivate)
	taker := crypto.Keccak256Hash([]byte("taker"))
	raw := buildRawLog(s.Topic(), nil, model.UintWord(9), taker)

	ev, err := Decode(raw, "Activate(uint256,bytes32)")
	require.NoError(t, err)
	assert.Equal(t, model.OfferActivated{OfferID: big.NewInt(9), TakerReference: taker}, ev)
}

func TestDecodeAllowListUpdated(t *testing.T) {
	s := mustSchema(t, KeyTokenAllowList)
	token := common.HexToAddress("0x1234567890123456789012345678901234567890")

	ev, err := DecodeWith(s, buildRawLog(s.Topic(), packArgs(t, []string{"bool"}, true), model.AddressWord(token)))
	require.NoError(t, err)
	assert.Equal(t, model.AllowListUpdated{Token: token, IsAllowed: true}, ev)

	ev, err = DecodeWith(s, buildRawLog(s.Topic(), packArgs(t, []string{"bool"}, false), model.AddressWord(token)))
	require.NoError(t, err)
	assert.Equal(t, model.AllowListUpdated{Token: token, IsAllowed: false}, ev)
}

func bridgeEventData(t *testing.T, metadata []byte) []byte {
	return packArgs(t,
		[]string{"uint8", "uint32", "address", "uint32", "address", "uint256", "bytes", "uint32"},
		uint8(1),
		uint32(0),
		makerAddr,
		uint32(1),
		takerAddr,
		big.NewInt(0),
		metadata,
		uint32(37980),
	)
}

func TestDecodeBridgeEvent(t *testing.T) {
	s := mustSchema(t, KeyBridgeEvent)
	metadata := common.FromHex("0x22334455667788")
	data := bridgeEventData(t, metadata)

	// Metadata offset points just past the eight head slots.
	require.Equal(t, model.UintWord(256).Bytes(), data[192:224])

	ev, err := DecodeWith(s, buildRawLog(s.Topic(), data))
	require.NoError(t, err)
	deposit := ev.(model.BridgeDeposit)
	assert.Equal(t, uint8(1), deposit.LeafType)
	assert.Equal(t, uint32(0), deposit.OriginNetwork)
	assert.Equal(t, makerAddr, deposit.OriginAddress)
	assert.Equal(t, uint32(1), deposit.DestinationNetwork)
	assert.Equal(t, takerAddr, deposit.DestinationAddress)
	assert.Equal(t, 0, deposit.Amount.Sign())
	assert.Equal(t, metadata, []byte(deposit.Metadata))
	assert.Equal(t, uint32(37980), deposit.DepositCount)
}

func TestBridgeEventRoundTrip(t *testing.T) {
	s := mustSchema(t, KeyBridgeEvent)
	for _, metadata := range [][]byte{
		{},
		{0x01},
		common.FromHex("0x22334455667788"),
		make([]byte, 32),
		make([]byte, 97),
	} {
		data := bridgeEventData(t, metadata)
		raw := buildRawLog(s.Topic(), data)

		ev, err := DecodeWith(s, raw)
		require.NoError(t, err)

		topics, packed, err := Encode(s, ev)
		require.NoError(t, err)
		assert.Equal(t, raw.Topics, topics)
		assert.Equal(t, data, packed, "metadata length %d", len(metadata))
	}
}

func TestDecodeErrors(t *testing.T) {
	register := mustSchema(t, KeyRegister)
	bridge := mustSchema(t, KeyBridgeEvent)
	allow := mustSchema(t, KeyTokenAllowList)
	activate := mustSchema(t, KeyActivate)

	fullBridge := bridgeEventData(t, []byte{0xaa, 0xbb})
	badLeaf := common.CopyBytes(fullBridge)
	badLeaf[30] = 0x01

	tests := []struct {
		name   string
		schema *Schema
		raw    model.RawLog
		kind   error
	}{
		{
			name:   "wrong topic0",
			schema: register,
			raw:    buildRawLog(activate.Topic(), nil, model.UintWord(1), model.UintWord(2)),
			kind:   ErrSchemaMismatch,
		},
		{
			name:   "no topics",
			schema: register,
			raw:    model.RawLog{},
			kind:   ErrTopicCountMismatch,
		},
		{
			name:   "missing indexed topic",
			schema: register,
			raw:    buildRawLog(register.Topic(), make([]byte, 6*32), model.UintWord(1)),
			kind:   ErrTopicCountMismatch,
		},
		{
			name:   "extra topic",
			schema: activate,
			raw:    buildRawLog(activate.Topic(), nil, model.UintWord(1), model.UintWord(2), model.UintWord(3)),
			kind:   ErrTopicCountMismatch,
		},
		{
			name:   "short static data",
			schema: register,
			raw:    buildRawLog(register.Topic(), make([]byte, 6*32-1), model.UintWord(1), model.AddressWord(makerAddr)),
			kind:   ErrTruncatedData,
		},
		{
			name:   "short dynamic payload",
			schema: bridge,
			raw:    buildRawLog(bridge.Topic(), fullBridge[:9*32+1]),
			kind:   ErrTruncatedData,
		},
		{
			name:   "uint8 overflow",
			schema: bridge,
			raw:    buildRawLog(bridge.Topic(), badLeaf),
			kind:   ErrSchemaMismatch,
		},
		{
			name:   "bool out of range",
			schema: allow,
			raw:    buildRawLog(allow.Topic(), model.UintWord(2).Bytes(), model.AddressWord(makerAddr)),
			kind:   ErrSchemaMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeWith(tc.schema, tc.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.schema.Name, de.Event)
		})
	}
}

func TestDecodeUnknownSignature(t *testing.T) {
	_, err := Decode(model.RawLog{}, "Transfer(address,address,uint256)")
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

func TestDecoderDispatch(t *testing.T) {
	decoder, err := NewDecoder(DecoderConfig{Keys: []string{KeyActivate, KeyTokenAllowList}})
	require.NoError(t, err)

	activate := mustSchema(t, KeyActivate)
	register := mustSchema(t, KeyRegister)
	assert.True(t, decoder.CanDecode(activate.Topic()))
	assert.False(t, decoder.CanDecode(register.Topic()))

	raw := buildRawLog(activate.Topic(), nil, model.UintWord(3), common.Hash{})
	ev, s, err := decoder.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, activate, s)
	assert.Equal(t, model.EventOfferActivated, ev.EventName())

	typed := TypedEvent(56, raw, 1700000000, s, ev)
	assert.Equal(t, "Activate(uint256,bytes32)", typed.Signature)
	assert.Equal(t, uint64(12345), typed.BlockNumber)
	assert.Equal(t, activate.Topic().Hex(), typed.Raw.Topic0)

	_, _, err = decoder.Decode(buildRawLog(register.Topic(), nil))
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = NewDecoder(DecoderConfig{Keys: []string{"swap"}})
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

func TestDecodeBatch(t *testing.T) {
	decoder, err := NewDecoder(DecoderConfig{})
	require.NoError(t, err)

	activate := mustSchema(t, KeyActivate)
	logs := make([]model.RawLog, 0, 20)
	for i := 0; i < 20; i++ {
		raw := buildRawLog(activate.Topic(), nil, model.UintWord(uint64(i)), common.Hash{})
		raw.LogIndex = uint64(i)
		logs = append(logs, raw)
	}
	// Unknown topic0 is skipped, not failed.
	logs = append(logs, buildRawLog(crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")), nil))
	bad := buildRawLog(activate.Topic(), nil, model.UintWord(99))

	decoded, failures, err := DecodeBatch(context.Background(), decoder, logs, BatchOptions{Workers: 4})
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, decoded, 20)
	for i, d := range decoded {
		assert.Equal(t, int64(i), d.Event.(model.OfferActivated).OfferID.Int64())
	}

	withBad := append(append([]model.RawLog{}, logs...), bad)
	_, _, err = DecodeBatch(context.Background(), decoder, withBad, BatchOptions{Policy: FailFast})
	assert.ErrorIs(t, err, ErrTopicCountMismatch)

	decoded, failures, err = DecodeBatch(context.Background(), decoder, withBad, BatchOptions{Policy: SkipInvalid})
	require.NoError(t, err)
	assert.Len(t, decoded, 20)
	require.Len(t, failures, 1)
	assert.Equal(t, "topic_count_mismatch", KindName(failures[0].Err))
}

func TestDecodeBatchSkipsLogsWithoutTopics(t *testing.T) {
	decoder, err := NewDecoder(DecoderConfig{})
	require.NoError(t, err)

	activate := mustSchema(t, KeyActivate)
	logs := []model.RawLog{
		{Address: contractAddr, BlockNumber: 1, Data: model.UintWord(7).Bytes()},
		buildRawLog(activate.Topic(), nil, model.UintWord(1), common.Hash{}),
		{Address: contractAddr, BlockNumber: 2},
	}

	for _, policy := range []BatchPolicy{FailFast, SkipInvalid} {
		decoded, failures, err := DecodeBatch(context.Background(), decoder, logs, BatchOptions{Policy: policy})
		require.NoError(t, err)
		assert.Empty(t, failures)
		require.Len(t, decoded, 1)
		assert.Equal(t, 1, decoded[0].Index)
	}
}

func TestDecodeBatchFailFastReportsLowestIndex(t *testing.T) {
	decoder, err := NewDecoder(DecoderConfig{Keys: []string{KeyActivate, KeyRegister}})
	require.NoError(t, err)

	activate := mustSchema(t, KeyActivate)
	register := mustSchema(t, KeyRegister)
	logs := make([]model.RawLog, 0, 64)
	for i := 0; i < 64; i++ {
		logs = append(logs, buildRawLog(activate.Topic(), nil, model.UintWord(uint64(i)), common.Hash{}))
	}
	logs[3] = buildRawLog(activate.Topic(), nil, model.UintWord(3))
	truncated := buildRawLog(register.Topic(), make([]byte, 6*32-1), model.UintWord(1), model.AddressWord(makerAddr))
	logs[1] = truncated
	logs[40] = truncated
	logs[63] = truncated

	for run := 0; run < 20; run++ {
		_, _, err := DecodeBatch(context.Background(), decoder, logs, BatchOptions{Policy: FailFast, Workers: 8})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTruncatedData)
	}

	// Moving the truncated log after the topic mismatch flips the reported kind.
	logs[1] = buildRawLog(activate.Topic(), nil, model.UintWord(1), common.Hash{})
	for run := 0; run < 20; run++ {
		_, _, err := DecodeBatch(context.Background(), decoder, logs, BatchOptions{Policy: FailFast, Workers: 8})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTopicCountMismatch)
	}
}
