package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ethernal-Tech/starkex-infrastructure/common"
	"github.com/hashicorp/go-hclog"
)

const defaultSyncRetryDelay = time.Second * 5

type SyncSchedulerConfig struct {
	MaxBatchSize uint64 `json:"maxBatchSize"`
	// EarliestBlock is used as the last synced block of an empty store
	EarliestBlock uint64 `json:"earliestBlock"`
	// MaxBlockNumber stops the sync before batches that end after it. Zero means no limit.
	MaxBlockNumber uint64        `json:"maxBlockNumber"`
	RetryDelay     time.Duration `json:"retryDelay"`
}

// SyncScheduler hands contiguous block ranges of the validated chain to the data sync service,
// in order and exactly once, and rolls the service back when a reorg reaches synced blocks.
// The state machine lives in ReduceSyncState, effects are executed one at a time.
type SyncScheduler struct {
	db       SyncStatusStore
	source   BlockEventSource
	service  DataSyncService
	config   SyncSchedulerConfig
	jobQueue *common.JobQueue
	logger   hclog.Logger

	lock         sync.Mutex
	state        SyncState
	started      bool
	unsubscribes []func()
	isClosed     uint32
	closeCh      chan struct{}
}

var _ Service = (*SyncScheduler)(nil)

func NewSyncScheduler(
	db SyncStatusStore, source BlockEventSource, service DataSyncService,
	config SyncSchedulerConfig, logger hclog.Logger,
) *SyncScheduler {
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = DefaultMaxBatchSize
	}

	if config.RetryDelay == 0 {
		config.RetryDelay = defaultSyncRetryDelay
	}

	return &SyncScheduler{
		db:       db,
		source:   source,
		service:  service,
		config:   config,
		jobQueue: common.NewJobQueue(logger.Named("jobs")),
		logger:   logger,
		closeCh:  make(chan struct{}),
	}
}

func (s *SyncScheduler) Start(ctx context.Context) error {
	s.lock.Lock()

	if s.started {
		s.lock.Unlock()

		return nil
	}

	s.started = true
	s.lock.Unlock()

	lastSynced := s.config.EarliestBlock

	status, err := s.db.GetSyncStatus()
	if err != nil {
		return fmt.Errorf("failed to get sync status: %w", err)
	}

	if status != nil {
		lastSynced = status.LastSynced
	}

	if err := s.service.DiscardAfter(ctx, lastSynced); err != nil {
		return fmt.Errorf("failed to discard data after %d: %w", lastSynced, err)
	}

	knownBlocks, err := s.source.GetKnownBlocks(lastSynced)
	if err != nil {
		return fmt.Errorf("failed to get known blocks: %w", err)
	}

	s.jobQueue.Start()

	s.dispatch(ctx, ActionInitialized{LastSynced: lastSynced, KnownBlocks: continuousSuffix(knownBlocks)})

	unsubscribeNewBlock := s.source.OnNewBlock(func(block Block) {
		s.dispatch(ctx, ActionNewBlockFound{Block: block})
	})
	unsubscribeReorg := s.source.OnReorg(func(blocks ContinuousBlocks) {
		s.dispatch(ctx, ActionReorgOccurred{Blocks: blocks})
	})

	s.lock.Lock()
	s.unsubscribes = append(s.unsubscribes, unsubscribeNewBlock, unsubscribeReorg)
	s.lock.Unlock()

	s.logger.Info("Sync scheduler has been started", "lastSynced", lastSynced, "known", len(knownBlocks))

	return nil
}

func (s *SyncScheduler) Close() error {
	if !atomic.CompareAndSwapUint32(&s.isClosed, 0, 1) {
		return nil
	}

	s.logger.Info("Closing sync scheduler")

	s.lock.Lock()
	unsubscribes := s.unsubscribes
	s.unsubscribes = nil
	s.lock.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}

	close(s.closeCh)

	return s.jobQueue.Close()
}

// GetState returns a snapshot of the scheduler state
func (s *SyncScheduler) GetState() SyncState {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

func (s *SyncScheduler) dispatch(ctx context.Context, action SyncAction) {
	s.lock.Lock()

	state, effect := ReduceSyncState(s.state, action, s.config.MaxBatchSize)
	s.state = state

	s.lock.Unlock()

	s.logger.Debug("Action dispatched", "action", action, "remaining", state.Remaining)

	switch e := effect.(type) {
	case *SyncEffectSync:
		s.jobQueue.Add(fmt.Sprintf("sync %s", e.Blocks), func() error {
			s.executeSync(ctx, e.Blocks)

			return nil
		})
	case *SyncEffectDiscardAfter:
		s.jobQueue.Add(fmt.Sprintf("discard after %d", e.BlockNumber), func() error {
			s.executeDiscardAfter(ctx, e.BlockNumber)

			return nil
		})
	}
}

func (s *SyncScheduler) executeSync(ctx context.Context, blocks BlockRange) {
	if s.config.MaxBlockNumber > 0 && blocks.End()-1 > s.config.MaxBlockNumber {
		s.logger.Info("Sync stopped at max block number",
			"maxBlockNumber", s.config.MaxBlockNumber, "blocks", blocks)

		return
	}

	if err := s.sync(ctx, blocks); err != nil {
		s.logger.Error("Sync failed", "blocks", blocks, "err", err)

		if s.waitRetryDelay() {
			s.dispatch(ctx, ActionSyncFailed{Blocks: blocks})
		}

		return
	}

	s.logger.Info("Blocks synced", "blocks", blocks)

	s.dispatch(ctx, ActionSyncSucceeded{})
}

func (s *SyncScheduler) sync(ctx context.Context, blocks BlockRange) error {
	// removes leftovers of an interrupted sync of the same range
	if err := s.service.DiscardAfter(ctx, blocks.Start()-1); err != nil {
		return err
	}

	if err := s.service.Sync(ctx, blocks); err != nil {
		return err
	}

	return s.db.SetSyncStatus(&SyncStatus{LastSynced: blocks.End() - 1})
}

func (s *SyncScheduler) executeDiscardAfter(ctx context.Context, blockNumber uint64) {
	err := s.db.SetSyncStatus(&SyncStatus{LastSynced: blockNumber})
	if err == nil {
		err = s.service.DiscardAfter(ctx, blockNumber)
	}

	if err != nil {
		s.logger.Error("Discard failed", "blockNumber", blockNumber, "err", err)

		if s.waitRetryDelay() {
			s.dispatch(ctx, ActionDiscardAfterFailed{})
		}

		return
	}

	s.logger.Info("Data discarded", "after", blockNumber)

	s.dispatch(ctx, ActionDiscardAfterSucceeded{BlockNumber: blockNumber})
}

func (s *SyncScheduler) waitRetryDelay() bool {
	select {
	case <-s.closeCh:
		return false
	case <-time.After(s.config.RetryDelay):
		return true
	}
}

// continuousSuffix returns the longest continuous run of blocks that ends with the last block
func continuousSuffix(blocks []Block) ContinuousBlocks {
	start := len(blocks) - 1

	for start > 0 && blocks[start-1].Number+1 == blocks[start].Number {
		start--
	}

	if start < 0 {
		return ContinuousBlocks{}
	}

	return ContinuousBlocks{blocks: append([]Block(nil), blocks[start:]...)}
}
