package statesync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Ethernal-Tech/starkex-infrastructure/codec"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrMissingPages      = errors.New("missing memory pages")
	ErrStateRootMismatch = errors.New("state root mismatch")
	ErrInvalidAddress    = errors.New("invalid contract address")
)

type ServiceConfig struct {
	Perpetual  string                 `json:"perpetual"`
	Registry   string                 `json:"registry"`
	Verifiers  []string               `json:"verifiers"`
	Collateral *codec.CollateralAsset `json:"collateralAsset,omitempty"`
}

// Service syncs the perpetual state updates of a block range. It collects memory pages, page
// mappings and state transition facts, then decodes the on-chain data of every transition.
type Service struct {
	chain                    ChainReader
	db                       Database
	collateral               *codec.CollateralAsset
	pageCollector            *PageCollector
	pageMappingCollector     *PageMappingCollector
	stateTransitionCollector *StateTransitionCollector
	logger                   hclog.Logger
}

var _ indexer.DataSyncService = (*Service)(nil)

func NewService(chain ChainReader, db Database, config ServiceConfig, logger hclog.Logger) (*Service, error) {
	perpetual, err := parseAddress(config.Perpetual)
	if err != nil {
		return nil, fmt.Errorf("perpetual: %w", err)
	}

	registry, err := parseAddress(config.Registry)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	verifiers := make([]ethcommon.Address, len(config.Verifiers))

	for i, verifier := range config.Verifiers {
		if verifiers[i], err = parseAddress(verifier); err != nil {
			return nil, fmt.Errorf("verifier %d: %w", i, err)
		}
	}

	return &Service{
		chain:                    chain,
		db:                       db,
		collateral:               config.Collateral,
		pageCollector:            NewPageCollector(chain, registry, logger.Named("pages")),
		pageMappingCollector:     NewPageMappingCollector(chain, verifiers, logger.Named("mappings")),
		stateTransitionCollector: NewStateTransitionCollector(chain, perpetual, logger.Named("transitions")),
		logger:                   logger,
	}, nil
}

func (s *Service) Sync(ctx context.Context, blocks indexer.BlockRange) error {
	pages, err := s.pageCollector.Collect(ctx, blocks)
	if err != nil {
		return fmt.Errorf("failed to collect pages: %w", err)
	}

	mappings, err := s.pageMappingCollector.Collect(ctx, blocks)
	if err != nil {
		return fmt.Errorf("failed to collect page mappings: %w", err)
	}

	transitions, err := s.stateTransitionCollector.Collect(ctx, blocks)
	if err != nil {
		return fmt.Errorf("failed to collect state transitions: %w", err)
	}

	err = s.db.OpenStateTx().
		AddPages(pages).
		AddPageMappings(mappings).
		AddStateTransitions(transitions).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to store collected data: %w", err)
	}

	updates, err := s.buildStateUpdates(ctx, transitions)
	if err != nil {
		return err
	}

	if err := s.db.OpenStateTx().AddStateUpdates(updates).Execute(); err != nil {
		return fmt.Errorf("failed to store state updates: %w", err)
	}

	s.logger.Info("State synced", "blocks", blocks,
		"pages", len(pages), "mappings", len(mappings), "transitions", len(transitions))

	return nil
}

func (s *Service) DiscardAfter(ctx context.Context, blockNumber uint64) error {
	if err := s.db.OpenStateTx().DeleteStateDataAfter(blockNumber).Execute(); err != nil {
		return fmt.Errorf("failed to discard state data after %d: %w", blockNumber, err)
	}

	return nil
}

func (s *Service) buildStateUpdates(
	ctx context.Context, transitions []StateTransitionRecord,
) ([]StateUpdateRecord, error) {
	if len(transitions) == 0 {
		return nil, nil
	}

	previous, err := s.db.GetLastStateUpdate()
	if err != nil {
		return nil, fmt.Errorf("failed to get last state update: %w", err)
	}

	updates := make([]StateUpdateRecord, 0, len(transitions))

	for _, transition := range transitions {
		pages, err := s.loadPages(transition.FactHash)
		if err != nil {
			return nil, err
		}

		data, err := codec.DecodeOnChainData(pages, s.collateral)
		if err != nil {
			return nil, fmt.Errorf("failed to decode on-chain data of fact %s: %w", transition.FactHash, err)
		}

		if err := checkStateContinuity(previous, &data.OldState); err != nil {
			return nil, fmt.Errorf("fact %s: %w", transition.FactHash, err)
		}

		timestamp, err := s.chain.GetBlockTimestamp(ctx, transition.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to get timestamp of block %d: %w", transition.BlockNumber, err)
		}

		update := newStateUpdateRecord(previous, transition, timestamp, data)
		updates = append(updates, update)
		previous = &update
	}

	return updates, nil
}

// loadPages returns the pages of the most recent mapping of the fact ordered by page index
func (s *Service) loadPages(factHash indexer.Hash) ([]string, error) {
	mappings, err := s.db.GetPageMappings(factHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get page mappings of fact %s: %w", factHash, err)
	}

	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: no mapping for fact %s", ErrMissingPages, factHash)
	}

	latest := mappings[len(mappings)-1].BlockNumber
	mappings = slices.DeleteFunc(mappings, func(m PageMappingRecord) bool {
		return m.BlockNumber != latest
	})

	slices.SortStableFunc(mappings, func(a, b PageMappingRecord) int {
		return cmp.Compare(a.PageIndex, b.PageIndex)
	})

	pages := make([]string, 0, len(mappings))

	for i, mapping := range mappings {
		if i > 0 && mappings[i-1].PageIndex == mapping.PageIndex {
			continue
		}

		page, err := s.db.GetPage(mapping.PageHash)
		if err != nil {
			return nil, fmt.Errorf("failed to get page %s: %w", mapping.PageHash, err)
		}

		if page == nil {
			return nil, fmt.Errorf("%w: page %s of fact %s", ErrMissingPages, mapping.PageHash, factHash)
		}

		pages = append(pages, page.Data)
	}

	return pages, nil
}

func checkStateContinuity(previous *StateUpdateRecord, oldState *codec.State) error {
	if previous == nil {
		return nil
	}

	if previous.PositionRoot != oldState.PositionRoot || previous.OrderRoot != oldState.OrderRoot {
		return fmt.Errorf("%w: previous update %d has roots (%s, %s), transition starts from (%s, %s)",
			ErrStateRootMismatch, previous.ID, previous.PositionRoot, previous.OrderRoot,
			oldState.PositionRoot, oldState.OrderRoot)
	}

	return nil
}

func newStateUpdateRecord(
	previous *StateUpdateRecord, transition StateTransitionRecord, timestamp uint64, data *codec.OnChainData,
) StateUpdateRecord {
	id := uint64(1)
	if previous != nil {
		id = previous.ID + 1
	}

	forcedActions := make([]ForcedActionRecord, len(data.ForcedActions))
	for i, action := range data.ForcedActions {
		forcedActions[i] = newForcedActionRecord(action)
	}

	return StateUpdateRecord{
		ID:            id,
		BlockNumber:   transition.BlockNumber,
		FactHash:      transition.FactHash,
		Timestamp:     timestamp,
		PositionRoot:  data.NewState.PositionRoot,
		OrderRoot:     data.NewState.OrderRoot,
		Positions:     data.Positions,
		Prices:        data.NewState.OraclePrices,
		ForcedActions: forcedActions,
	}
}

func parseAddress(value string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(value) {
		return ethcommon.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, value)
	}

	return ethcommon.HexToAddress(value), nil
}
