package statesync

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Ethernal-Tech/starkex-infrastructure/ethereum"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentTxFetches = 10

var ErrPageHashMismatch = errors.New("memory page hash mismatch")

// ChainReader is the view of the chain needed to collect state data
type ChainReader interface {
	GetLogsInRange(ctx context.Context, blocks indexer.BlockRange, filter ethereum.LogFilter) ([]types.Log, error)
	GetTransactionInput(ctx context.Context, hash ethcommon.Hash) ([]byte, error)
	GetBlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// PageCollector reads the continuous memory pages registered in the block range.
// The content of a page comes from the calldata of the registering transaction.
type PageCollector struct {
	chain    ChainReader
	registry ethcommon.Address
	logger   hclog.Logger
}

func NewPageCollector(chain ChainReader, registry ethcommon.Address, logger hclog.Logger) *PageCollector {
	return &PageCollector{
		chain:    chain,
		registry: registry,
		logger:   logger,
	}
}

func (pc *PageCollector) Collect(ctx context.Context, blocks indexer.BlockRange) ([]PageRecord, error) {
	logs, err := pc.chain.GetLogsInRange(ctx, blocks, ethereum.LogFilter{
		Addresses: []ethcommon.Address{pc.registry},
		Topics:    [][]ethcommon.Hash{{topicMemoryPageFactContinuous}},
	})
	if err != nil {
		return nil, err
	}

	events := make([]memoryPageFactEvent, len(logs))

	for i, log := range logs {
		if events[i], err = parseMemoryPageFactEvent(log); err != nil {
			return nil, err
		}
	}

	records := make([]PageRecord, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTxFetches)

	for i, event := range events {
		g.Go(func() error {
			input, err := pc.chain.GetTransactionInput(gctx, event.TxHash)
			if err != nil {
				return err
			}

			values, err := unpackPageValues(input)
			if err != nil {
				return fmt.Errorf("transaction %s: %w", event.TxHash, err)
			}

			data, hash := encodePage(values)
			if hash != event.MemoryHash {
				return fmt.Errorf("%w: transaction %s registers %s, event has %s",
					ErrPageHashMismatch, event.TxHash, hash, event.MemoryHash)
			}

			records[i] = PageRecord{
				BlockNumber: event.BlockNumber,
				PageHash:    event.MemoryHash,
				Data:        data,
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	pc.logger.Debug("Pages collected", "blocks", blocks, "count", len(records))

	return records, nil
}

// encodePage returns the hex page content and its keccak256 memory hash
func encodePage(values []*big.Int) (string, indexer.Hash) {
	raw := make([]byte, len(values)*32)

	for i, value := range values {
		value.FillBytes(raw[i*32 : (i+1)*32])
	}

	var hash indexer.Hash

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(raw)
	copy(hash[:], hasher.Sum(nil))

	return fmt.Sprintf("%x", raw), hash
}
