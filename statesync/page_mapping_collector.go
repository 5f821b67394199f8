package statesync

import (
	"context"

	"github.com/Ethernal-Tech/starkex-infrastructure/ethereum"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
)

// PageMappingCollector reads which pages make up the fact of a verified program output
type PageMappingCollector struct {
	chain     ChainReader
	verifiers []ethcommon.Address
	logger    hclog.Logger
}

func NewPageMappingCollector(chain ChainReader, verifiers []ethcommon.Address, logger hclog.Logger) *PageMappingCollector {
	return &PageMappingCollector{
		chain:     chain,
		verifiers: verifiers,
		logger:    logger,
	}
}

func (pmc *PageMappingCollector) Collect(ctx context.Context, blocks indexer.BlockRange) ([]PageMappingRecord, error) {
	if len(pmc.verifiers) == 0 {
		return nil, nil
	}

	logs, err := pmc.chain.GetLogsInRange(ctx, blocks, ethereum.LogFilter{
		Addresses: pmc.verifiers,
		Topics:    [][]ethcommon.Hash{{topicMemoryPagesHashes}},
	})
	if err != nil {
		return nil, err
	}

	var records []PageMappingRecord

	for _, log := range logs {
		event, err := parseMemoryPagesHashesEvent(log)
		if err != nil {
			return nil, err
		}

		for i, pageHash := range event.PagesHashes {
			records = append(records, PageMappingRecord{
				BlockNumber: event.BlockNumber,
				FactHash:    event.FactHash,
				PageIndex:   uint64(i),
				PageHash:    pageHash,
			})
		}
	}

	pmc.logger.Debug("Page mappings collected", "blocks", blocks, "count", len(records))

	return records, nil
}
