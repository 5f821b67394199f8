package indexer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Ethernal-Tech/starkex-infrastructure/common"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

const DefaultSafeBlockDistance = 5

var (
	ErrBlockNotFound         = errors.New("block not found")
	ErrReorgBeyondFirstBlock = errors.New("reorg reaches the first block of the chain")
)

type BlockDownloaderConfig struct {
	// SafeBlockDistance is the number of most recent blocks downloaded on start
	SafeBlockDistance uint64 `json:"safeBlockDistance"`
}

// BlockDownloader follows the remote chain and keeps a hash linked copy of it in the block store.
// Every block number is processed by a single step, steps are executed one at a time.
type BlockDownloader struct {
	client   ChainClient
	db       BlockStore
	config   BlockDownloaderConfig
	jobQueue *common.JobQueue
	logger   hclog.Logger

	startLock   sync.Mutex
	lock        sync.Mutex
	started     bool
	lastKnown   uint64
	queueTip    uint64
	unsubscribe func()

	newBlockListeners listeners[Block]
	reorgListeners    listeners[ContinuousBlocks]
}

var (
	_ Service          = (*BlockDownloader)(nil)
	_ BlockEventSource = (*BlockDownloader)(nil)
)

func NewBlockDownloader(
	client ChainClient, db BlockStore, config BlockDownloaderConfig, logger hclog.Logger,
) *BlockDownloader {
	if config.SafeBlockDistance == 0 {
		config.SafeBlockDistance = DefaultSafeBlockDistance
	}

	return &BlockDownloader{
		client:   client,
		db:       db,
		config:   config,
		jobQueue: common.NewJobQueue(logger.Named("jobs")),
		logger:   logger,
	}
}

func (bd *BlockDownloader) Start(ctx context.Context) error {
	bd.startLock.Lock()
	defer bd.startLock.Unlock()

	bd.lock.Lock()

	if bd.started {
		bd.lock.Unlock()

		return nil
	}

	if err := bd.scheduleInitialSteps(ctx); err != nil {
		bd.lock.Unlock()

		return err
	}

	bd.lock.Unlock()

	unsubscribe, err := bd.client.SubscribeNewBlocks(ctx, func(number uint64) {
		bd.onNewRemoteBlock(ctx, number)
	})
	if err != nil {
		// queued steps are scheduled again by the next Start
		bd.jobQueue.Clear()

		return fmt.Errorf("failed to subscribe to new blocks: %w", err)
	}

	bd.lock.Lock()
	bd.started = true
	bd.unsubscribe = unsubscribe
	lastKnown, queueTip := bd.lastKnown, bd.queueTip
	bd.lock.Unlock()

	bd.jobQueue.Start()

	bd.logger.Info("Block downloader has been started", "lastKnown", lastKnown, "queueTip", queueTip)

	return nil
}

func (bd *BlockDownloader) scheduleInitialSteps(ctx context.Context) error {
	lastBlock, err := bd.db.GetLastBlock()
	if err != nil {
		return fmt.Errorf("failed to get last known block: %w", err)
	}

	if lastBlock != nil {
		bd.lastKnown = lastBlock.Number
	}

	bd.queueTip, err = bd.client.GetBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	queueStart := bd.lastKnown + 1
	if bd.queueTip+1 > bd.config.SafeBlockDistance {
		queueStart = max(queueStart, bd.queueTip+1-bd.config.SafeBlockDistance)
	}

	// a stale store continues from its last block and then jumps to the safe window
	if bd.lastKnown != 0 && bd.lastKnown+1 < queueStart {
		bd.addStep(ctx, bd.lastKnown+1)
	}

	for number := queueStart; number <= bd.queueTip; number++ {
		bd.addStep(ctx, number)
	}

	bd.logger.Debug("Initial steps scheduled",
		"lastKnown", bd.lastKnown, "queueTip", bd.queueTip, "queueStart", queueStart)

	return nil
}

func (bd *BlockDownloader) Close() error {
	bd.lock.Lock()
	unsubscribe := bd.unsubscribe
	bd.unsubscribe = nil
	bd.lock.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	bd.logger.Info("Closing block downloader")

	return bd.jobQueue.Close()
}

func (bd *BlockDownloader) GetStatus() BlockDownloaderStatus {
	bd.lock.Lock()
	defer bd.lock.Unlock()

	return BlockDownloaderStatus{
		Started:   bd.started,
		LastKnown: bd.lastKnown,
		QueueTip:  bd.queueTip,
	}
}

// GetKnownBlocks returns the validated blocks from from to the last known one, inclusive. Before Start
// it reads the last stored block, so a listener subscribed before Start sees each block exactly once.
func (bd *BlockDownloader) GetKnownBlocks(from uint64) ([]Block, error) {
	bd.lock.Lock()
	started, lastKnown := bd.started, bd.lastKnown
	bd.lock.Unlock()

	if !started {
		lastBlock, err := bd.db.GetLastBlock()
		if err != nil {
			return nil, fmt.Errorf("failed to get last known block: %w", err)
		}

		if lastBlock != nil {
			lastKnown = lastBlock.Number
		}
	}

	if lastKnown < from {
		return nil, nil
	}

	return bd.db.GetBlocksInRange(from, lastKnown)
}

func (bd *BlockDownloader) OnNewBlock(handler func(block Block)) func() {
	return bd.newBlockListeners.add(handler)
}

func (bd *BlockDownloader) OnReorg(handler func(blocks ContinuousBlocks)) func() {
	return bd.reorgListeners.add(handler)
}

func (bd *BlockDownloader) onNewRemoteBlock(ctx context.Context, number uint64) {
	bd.lock.Lock()
	defer bd.lock.Unlock()

	for next := bd.queueTip + 1; next <= number; next++ {
		bd.addStep(ctx, next)
		bd.queueTip = next
	}
}

func (bd *BlockDownloader) addStep(ctx context.Context, number uint64) {
	bd.jobQueue.Add(fmt.Sprintf("advance chain to %d", number), func() error {
		return bd.advanceChain(ctx, number)
	})
}

func (bd *BlockDownloader) advanceChain(ctx context.Context, number uint64) error {
	if number == 0 {
		return nil
	}

	var (
		candidate *ChainBlock
		parent    *Block
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		candidate, err = bd.getChainBlock(gctx, number)

		return err
	})
	g.Go(func() (err error) {
		parent, err = bd.getKnownBlock(gctx, number-1)

		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if candidate.ParentHash == parent.Hash {
		block := candidate.ToBlock()

		if err := bd.db.OpenTx().AddBlocks([]Block{block}).Execute(); err != nil {
			return fmt.Errorf("failed to store block %d: %w", number, err)
		}

		bd.setLastKnown(number)
		bd.logger.Debug("New block", "block", block)
		bd.newBlockListeners.publish(block)

		return nil
	}

	reorged, err := bd.findReorgedChain(ctx, *candidate)
	if err != nil {
		return err
	}

	first, _ := reorged.First()

	err = bd.db.OpenTx().
		DeleteAllBlocksAfter(first.Number - 1).
		AddBlocks(reorged.Blocks()).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to store reorged blocks from %d: %w", first.Number, err)
	}

	bd.setLastKnown(number)
	bd.logger.Info("Reorg occurred", "from", first.Number, "to", number, "depth", reorged.Len())
	bd.reorgListeners.publish(reorged)

	return nil
}

// findReorgedChain walks back from the candidate until it links to a known block
func (bd *BlockDownloader) findReorgedChain(ctx context.Context, candidate ChainBlock) (ContinuousBlocks, error) {
	chain := []Block{candidate.ToBlock()}
	current := candidate

	for {
		if current.Number <= 1 {
			return ContinuousBlocks{}, fmt.Errorf("%w: block %d", ErrReorgBeyondFirstBlock, current.Number)
		}

		var (
			previous    *ChainBlock
			knownParent *Block
		)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() (err error) {
			previous, err = bd.client.GetBlockByHash(gctx, current.ParentHash)
			if err == nil && previous == nil {
				err = fmt.Errorf("%w: %s", ErrBlockNotFound, current.ParentHash)
			}

			return err
		})
		g.Go(func() (err error) {
			knownParent, err = bd.getKnownBlock(gctx, current.Number-2)

			return err
		})

		if err := g.Wait(); err != nil {
			return ContinuousBlocks{}, err
		}

		if previous.Number+1 != current.Number {
			return ContinuousBlocks{}, fmt.Errorf(
				"parent of block %d has number %d", current.Number, previous.Number)
		}

		chain = append(chain, previous.ToBlock())

		if previous.ParentHash == knownParent.Hash {
			break
		}

		current = *previous
	}

	slices.Reverse(chain)

	return NewContinuousBlocks(chain)
}

// getKnownBlock reads the block from the store and downloads it when it is missing
func (bd *BlockDownloader) getKnownBlock(ctx context.Context, number uint64) (*Block, error) {
	block, err := bd.db.GetBlock(number)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d from store: %w", number, err)
	}

	if block != nil {
		return block, nil
	}

	chainBlock, err := bd.getChainBlock(ctx, number)
	if err != nil {
		return nil, err
	}

	downloaded := chainBlock.ToBlock()

	if err := bd.db.OpenTx().AddBlocks([]Block{downloaded}).Execute(); err != nil {
		return nil, fmt.Errorf("failed to store block %d: %w", number, err)
	}

	return &downloaded, nil
}

func (bd *BlockDownloader) getChainBlock(ctx context.Context, number uint64) (*ChainBlock, error) {
	block, err := bd.client.GetBlock(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}

	if block == nil {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, number)
	}

	return block, nil
}

func (bd *BlockDownloader) setLastKnown(number uint64) {
	bd.lock.Lock()
	defer bd.lock.Unlock()

	bd.lastKnown = number
}
