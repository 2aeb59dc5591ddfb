// Package query fetches contract logs from a raw log source, decodes them and
// applies field filters, or folds them into derived state.
package query

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"escrowScope/internal/aggregate"
	"escrowScope/internal/escrow"
	"escrowScope/internal/filter"
	"escrowScope/internal/model"
)

// DefaultAllowListWindow is how many blocks back from head TokenAllowList
// scans when no window is given.
const DefaultAllowListWindow = 9900

// LogSource is the raw log capability the service depends on.
type LogSource interface {
	FetchLogs(ctx context.Context, q model.LogQuery) ([]model.RawLog, error)
	LatestBlock(ctx context.Context) (uint64, error)
}

// EventQuery selects decoded events of one signature from one contract.
type EventQuery struct {
	Contract  common.Address
	Signature string
	Filters   filter.Filters
	FromBlock uint64
	ToBlock   uint64
}

// Match is a decoded log that passed the filters.
type Match struct {
	Log    model.RawLog
	Schema *escrow.Schema
	Event  model.Event
}

// Service runs event queries against a LogSource.
type Service struct {
	source LogSource
	logger *zap.Logger
}

func NewService(source LogSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, logger: logger}
}

// Events fetches, decodes and filters logs for q. Constraints on indexed
// fields are sent to the source as topic filters and every constraint is
// checked again on the decoded event. The first undecodable log fails the
// query.
func (s *Service) Events(ctx context.Context, q EventQuery) ([]Match, error) {
	candidates, err := escrow.LookupSignature(q.Signature)
	if err != nil {
		return nil, err
	}
	topics, err := topicsFor(candidates, q.Filters)
	if err != nil {
		return nil, err
	}

	logs, err := s.source.FetchLogs(ctx, model.LogQuery{
		Addresses: []common.Address{q.Contract},
		Topics:    topics,
		FromBlock: q.FromBlock,
		ToBlock:   q.ToBlock,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", escrow.ErrUpstreamQueryFailed, err)
	}

	matches := make([]Match, 0, len(logs))
	for _, raw := range logs {
		if raw.Removed {
			continue
		}
		ev, err := escrow.Decode(raw, q.Signature)
		if err != nil {
			return nil, fmt.Errorf("block %d log %d: %w", raw.BlockNumber, raw.LogIndex, err)
		}
		if !filter.Matches(ev, q.Filters) {
			continue
		}
		matches = append(matches, Match{Log: raw, Schema: schemaFor(candidates, raw), Event: ev})
	}

	s.logger.Debug("events query",
		zap.String("signature", q.Signature),
		zap.String("contract", q.Contract.Hex()),
		zap.Stringer("filters", q.Filters),
		zap.Uint64("from", q.FromBlock),
		zap.Uint64("to", q.ToBlock),
		zap.Int("fetched", len(logs)),
		zap.Int("matched", len(matches)),
	)
	return matches, nil
}

// topicsFor translates filters for a single schema. Schema versions sharing
// a signature may index different fields, so only topic0 is sent for them.
func topicsFor(candidates []*escrow.Schema, f filter.Filters) ([][]common.Hash, error) {
	if len(candidates) == 1 {
		return filter.TopicFilters(candidates[0], f)
	}
	for name := range f {
		known := false
		for _, s := range candidates {
			known = known || s.HasField(name)
		}
		if !known {
			return nil, fmt.Errorf("filter on unknown field %s for %s", name, candidates[0].Signature())
		}
	}
	return [][]common.Hash{{candidates[0].Topic()}}, nil
}

func schemaFor(candidates []*escrow.Schema, raw model.RawLog) *escrow.Schema {
	for _, s := range candidates {
		if len(raw.Topics) == len(s.IndexedFields())+1 {
			return s
		}
	}
	return candidates[0]
}

// OfferQuery selects offer registrations.
type OfferQuery struct {
	Contract       common.Address
	SchemaKey      string
	OfferIDs       []*big.Int
	Makers         []common.Address
	Counterparties []common.Address
	FromBlock      uint64
	ToBlock        uint64
}

// Offers returns the registrations matching q. SchemaKey picks the event
// version and defaults to the current Register layout.
func (s *Service) Offers(ctx context.Context, q OfferQuery) ([]model.OfferRegistered, error) {
	key := q.SchemaKey
	if key == "" {
		key = escrow.KeyRegister
	}
	schema, err := escrow.LookupKey(key)
	if err != nil {
		return nil, err
	}
	if schema.Record != model.EventOfferRegistered {
		return nil, fmt.Errorf("schema %s does not describe offer registrations", key)
	}

	f := filter.Filters{}
	if len(q.OfferIDs) > 0 {
		f = f.With("offer_id", filter.Bigs(q.OfferIDs...)...)
	}
	if len(q.Makers) > 0 {
		f = f.With("maker", filter.Addresses(q.Makers...)...)
	}
	if len(q.Counterparties) > 0 {
		f = f.With("counterparty", filter.Addresses(q.Counterparties...)...)
	}

	matches, err := s.Events(ctx, EventQuery{
		Contract:  q.Contract,
		Signature: schema.Signature(),
		Filters:   f,
		FromBlock: q.FromBlock,
		ToBlock:   q.ToBlock,
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.OfferRegistered, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Event.(model.OfferRegistered))
	}
	return out, nil
}

// BridgeQuery selects bridge deposits.
type BridgeQuery struct {
	Contract        common.Address
	OriginAddresses []common.Address
	FromBlock       uint64
	ToBlock         uint64
}

// BridgeDeposits returns deposits from the given origin addresses. The origin
// is not indexed, so the contract's whole deposit stream for the range is
// fetched and narrowed after decoding.
func (s *Service) BridgeDeposits(ctx context.Context, q BridgeQuery) ([]model.BridgeDeposit, error) {
	schema, err := escrow.LookupKey(escrow.KeyBridgeEvent)
	if err != nil {
		return nil, err
	}
	f := filter.Filters{}
	if len(q.OriginAddresses) > 0 {
		f = f.With("origin_address", filter.Addresses(q.OriginAddresses...)...)
	}

	matches, err := s.Events(ctx, EventQuery{
		Contract:  q.Contract,
		Signature: schema.Signature(),
		Filters:   f,
		FromBlock: q.FromBlock,
		ToBlock:   q.ToBlock,
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.BridgeDeposit, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Event.(model.BridgeDeposit))
	}
	return out, nil
}

// TokenAllowList folds the contract's allow-list updates over the trailing
// window blocks ending at the current head. A zero window uses
// DefaultAllowListWindow.
func (s *Service) TokenAllowList(ctx context.Context, contract common.Address, window uint64) (model.AllowListSnapshot, error) {
	if window == 0 {
		window = DefaultAllowListWindow
	}
	latest, err := s.source.LatestBlock(ctx)
	if err != nil {
		return model.AllowListSnapshot{}, fmt.Errorf("%w: %w", escrow.ErrUpstreamQueryFailed, err)
	}
	var from uint64
	if latest > window {
		from = latest - window
	}
	return s.TokenAllowListRange(ctx, contract, from, latest)
}

// TokenAllowListRange folds the allow-list updates in [from, to].
func (s *Service) TokenAllowListRange(ctx context.Context, contract common.Address, from, to uint64) (model.AllowListSnapshot, error) {
	schema, err := escrow.LookupKey(escrow.KeyTokenAllowList)
	if err != nil {
		return model.AllowListSnapshot{}, err
	}
	matches, err := s.Events(ctx, EventQuery{
		Contract:  contract,
		Signature: schema.Signature(),
		FromBlock: from,
		ToBlock:   to,
	})
	if err != nil {
		return model.AllowListSnapshot{}, err
	}

	changes := make([]aggregate.AllowListChange, 0, len(matches))
	for _, m := range matches {
		changes = append(changes, aggregate.ChangeFromEvent(m.Event.(model.AllowListUpdated), m.Log.BlockNumber, m.Log.LogIndex))
	}
	tokens := aggregate.FoldAllowList(changes)

	hexTokens := make([]string, 0, len(tokens))
	for _, token := range tokens {
		hexTokens = append(hexTokens, token.Hex())
	}
	return model.AllowListSnapshot{
		Contract:  contract.Hex(),
		FromBlock: from,
		ToBlock:   to,
		Tokens:    hexTokens,
	}, nil
}
