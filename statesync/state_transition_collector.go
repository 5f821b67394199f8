package statesync

import (
	"cmp"
	"context"
	"slices"

	"github.com/Ethernal-Tech/starkex-infrastructure/ethereum"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
)

// StateTransitionCollector reads the state transition facts accepted by the perpetual contract
type StateTransitionCollector struct {
	chain     ChainReader
	perpetual ethcommon.Address
	logger    hclog.Logger
}

func NewStateTransitionCollector(
	chain ChainReader, perpetual ethcommon.Address, logger hclog.Logger,
) *StateTransitionCollector {
	return &StateTransitionCollector{
		chain:     chain,
		perpetual: perpetual,
		logger:    logger,
	}
}

// Collect returns the transitions of the block range in chain order
func (stc *StateTransitionCollector) Collect(
	ctx context.Context, blocks indexer.BlockRange,
) ([]StateTransitionRecord, error) {
	logs, err := stc.chain.GetLogsInRange(ctx, blocks, ethereum.LogFilter{
		Addresses: []ethcommon.Address{stc.perpetual},
		Topics:    [][]ethcommon.Hash{{topicStateTransitionFact}},
	})
	if err != nil {
		return nil, err
	}

	records := make([]StateTransitionRecord, 0, len(logs))

	for _, log := range logs {
		event, err := parseStateTransitionFactEvent(log)
		if err != nil {
			return nil, err
		}

		records = append(records, StateTransitionRecord(event))
	}

	slices.SortFunc(records, func(a, b StateTransitionRecord) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}

		return cmp.Compare(a.LogIndex, b.LogIndex)
	})

	stc.logger.Debug("State transitions collected", "blocks", blocks, "count", len(records))

	return records, nil
}
