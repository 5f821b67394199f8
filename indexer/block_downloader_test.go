package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type downloaderEvents struct {
	lock      sync.Mutex
	newBlocks []uint64
	reorgs    [][]Block
}

func (e *downloaderEvents) snapshot() ([]uint64, [][]Block) {
	e.lock.Lock()
	defer e.lock.Unlock()

	return append([]uint64(nil), e.newBlocks...), append([][]Block(nil), e.reorgs...)
}

func newTestDownloader(
	t *testing.T, chain *testChain, db *memoryDatabase,
) (*BlockDownloader, *ChainClientMock, *downloaderEvents) {
	t.Helper()

	client := newChainClientMock(chain)
	bd := NewBlockDownloader(client, db, BlockDownloaderConfig{}, hclog.NewNullLogger())
	events := &downloaderEvents{}

	bd.OnNewBlock(func(block Block) {
		events.lock.Lock()
		events.newBlocks = append(events.newBlocks, block.Number)
		events.lock.Unlock()
	})
	bd.OnReorg(func(blocks ContinuousBlocks) {
		events.lock.Lock()
		events.reorgs = append(events.reorgs, blocks.Blocks())
		events.lock.Unlock()
	})

	t.Cleanup(func() {
		_ = bd.Close()
	})

	return bd, client, events
}

func waitIdle(t *testing.T, bd *BlockDownloader) {
	t.Helper()

	require.Eventually(t, bd.jobQueue.IsIdle, time.Second*5, time.Millisecond*5)
}

func numbers(from, to uint64) []uint64 {
	result := make([]uint64, 0, to-from+1)

	for number := from; number <= to; number++ {
		result = append(result, number)
	}

	return result
}

func TestBlockDownloader_Start(t *testing.T) {
	t.Parallel()

	const head = uint64(13_000_000)

	t.Run("from scratch downloads the safe window", func(t *testing.T) {
		t.Parallel()

		db := newMemoryDatabase()
		bd, _, events := newTestDownloader(t, &testChain{head: head}, db)

		require.NoError(t, bd.Start(context.Background()))
		waitIdle(t, bd)

		newBlocks, reorgs := events.snapshot()
		require.Equal(t, numbers(head-4, head), newBlocks)
		require.Empty(t, reorgs)

		parent, err := db.GetBlock(head - 5)
		require.NoError(t, err)
		require.NotNil(t, parent)
		require.Equal(t, makeHash(head-5, 0), parent.Hash)
	})

	t.Run("from a distant past continues and jumps to the safe window", func(t *testing.T) {
		t.Parallel()

		db := newMemoryDatabase(makeBlocks(10_000_000, 10_000_000, 0)...)
		bd, _, events := newTestDownloader(t, &testChain{head: head}, db)

		require.NoError(t, bd.Start(context.Background()))
		waitIdle(t, bd)

		newBlocks, _ := events.snapshot()
		require.Equal(t, append([]uint64{10_000_001}, numbers(head-4, head)...), newBlocks)

		block, err := db.GetBlock(10_000_001)
		require.NoError(t, err)
		require.NotNil(t, block)
	})

	t.Run("from a recent past downloads the missing blocks", func(t *testing.T) {
		t.Parallel()

		db := newMemoryDatabase(makeBlocks(head-3, head-3, 0)...)
		bd, _, events := newTestDownloader(t, &testChain{head: head}, db)

		require.NoError(t, bd.Start(context.Background()))
		waitIdle(t, bd)

		newBlocks, _ := events.snapshot()
		require.Equal(t, numbers(head-2, head), newBlocks)
	})

	t.Run("from the present does nothing", func(t *testing.T) {
		t.Parallel()

		db := newMemoryDatabase(makeBlocks(head, head, 0)...)
		bd, client, events := newTestDownloader(t, &testChain{head: head}, db)

		require.NoError(t, bd.Start(context.Background()))
		waitIdle(t, bd)

		newBlocks, _ := events.snapshot()
		require.Empty(t, newBlocks)
		client.AssertNotCalled(t, "GetBlock", mock.Anything)
	})

	t.Run("from the future does nothing", func(t *testing.T) {
		t.Parallel()

		db := newMemoryDatabase(makeBlocks(head+2, head+2, 0)...)
		bd, _, events := newTestDownloader(t, &testChain{head: head}, db)

		require.NoError(t, bd.Start(context.Background()))
		waitIdle(t, bd)

		newBlocks, _ := events.snapshot()
		require.Empty(t, newBlocks)
		require.Equal(t, BlockDownloaderStatus{Started: true, LastKnown: head + 2, QueueTip: head}, bd.GetStatus())
	})

	t.Run("start is idempotent", func(t *testing.T) {
		t.Parallel()

		db := newMemoryDatabase(makeBlocks(head, head, 0)...)
		bd, client, _ := newTestDownloader(t, &testChain{head: head}, db)

		require.NoError(t, bd.Start(context.Background()))
		require.NoError(t, bd.Start(context.Background()))

		client.AssertNumberOfCalls(t, "GetBlockNumber", 1)
	})

	t.Run("block number error", func(t *testing.T) {
		t.Parallel()

		chain := &testChain{head: head}
		client := &ChainClientMock{chain: chain}
		client.On("GetBlockNumber").Return(errors.New("connection refused"))

		bd := NewBlockDownloader(client, newMemoryDatabase(), BlockDownloaderConfig{}, hclog.NewNullLogger())
		defer bd.Close()

		require.ErrorContains(t, bd.Start(context.Background()), "connection refused")
		require.False(t, bd.GetStatus().Started)
	})

	t.Run("subscribe error allows a restart", func(t *testing.T) {
		t.Parallel()

		chain := &testChain{head: head}
		client := &ChainClientMock{chain: chain}
		client.On("GetBlockNumber").Return(nil)
		client.On("GetBlock", mock.Anything).Return(nil)
		client.On("SubscribeNewBlocks").Return(errors.New("subscription closed")).Once()
		client.On("SubscribeNewBlocks").Return(nil)

		db := newMemoryDatabase(makeBlocks(head-3, head-3, 0)...)
		bd := NewBlockDownloader(client, db, BlockDownloaderConfig{}, hclog.NewNullLogger())
		defer bd.Close()

		require.ErrorContains(t, bd.Start(context.Background()), "subscription closed")
		require.False(t, bd.GetStatus().Started)
		require.Zero(t, bd.jobQueue.Len())

		require.NoError(t, bd.Start(context.Background()))
		require.True(t, bd.GetStatus().Started)
		client.AssertNumberOfCalls(t, "SubscribeNewBlocks", 2)

		chain.newBlock(head + 1)
		waitIdle(t, bd)

		require.Equal(t, uint64(head+1), bd.GetStatus().LastKnown)
	})
}

func TestBlockDownloader_NewBlocks(t *testing.T) {
	t.Parallel()

	t.Run("fills the gap up to the new head", func(t *testing.T) {
		t.Parallel()

		chain := &testChain{head: 1000}
		db := newMemoryDatabase(makeBlocks(1000, 1000, 0)...)
		bd, _, events := newTestDownloader(t, chain, db)

		require.NoError(t, bd.Start(context.Background()))

		chain.newBlock(1003)
		waitIdle(t, bd)

		newBlocks, _ := events.snapshot()
		require.Equal(t, []uint64{1001, 1002, 1003}, newBlocks)
		require.Equal(t, BlockDownloaderStatus{Started: true, LastKnown: 1003, QueueTip: 1003}, bd.GetStatus())

		known, err := bd.GetKnownBlocks(1001)
		require.NoError(t, err)
		require.Equal(t, makeBlocks(1001, 1003, 0), known)
	})

	t.Run("ignores blocks that are already queued", func(t *testing.T) {
		t.Parallel()

		chain := &testChain{head: 1000}
		db := newMemoryDatabase(makeBlocks(1000, 1000, 0)...)
		bd, _, events := newTestDownloader(t, chain, db)

		require.NoError(t, bd.Start(context.Background()))

		chain.newBlock(1001)
		bd.onNewRemoteBlock(context.Background(), 1001)
		bd.onNewRemoteBlock(context.Background(), 999)
		waitIdle(t, bd)

		newBlocks, _ := events.snapshot()
		require.Equal(t, []uint64{1001}, newBlocks)
	})

	t.Run("one block deep reorg", func(t *testing.T) {
		t.Parallel()

		chain := &testChain{head: 1001, forkAt: 1001}
		db := newMemoryDatabase(makeBlocks(1000, 1001, 0)...)
		bd, _, events := newTestDownloader(t, chain, db)

		require.NoError(t, bd.Start(context.Background()))

		chain.newBlock(1002)
		waitIdle(t, bd)

		newBlocks, reorgs := events.snapshot()
		require.Empty(t, newBlocks)
		require.Equal(t, [][]Block{makeBlocks(1001, 1002, 1)}, reorgs)

		records := db.records()
		require.NotEmpty(t, records)

		last := records[len(records)-1]
		require.Equal(t, ptr[uint64](1000), last.deleteAfter)
		require.Equal(t, makeBlocks(1001, 1002, 1), last.added)

		stored, err := db.GetBlocksInRange(1000, 1002)
		require.NoError(t, err)
		require.Equal(t, append(makeBlocks(1000, 1000, 0), makeBlocks(1001, 1002, 1)...), stored)
	})

	t.Run("three blocks deep reorg", func(t *testing.T) {
		t.Parallel()

		chain := &testChain{head: 1003, forkAt: 1001}
		db := newMemoryDatabase(makeBlocks(1000, 1003, 0)...)
		bd, _, events := newTestDownloader(t, chain, db)

		require.NoError(t, bd.Start(context.Background()))

		chain.newBlock(1004)
		waitIdle(t, bd)

		_, reorgs := events.snapshot()
		require.Equal(t, [][]Block{makeBlocks(1001, 1004, 1)}, reorgs)

		last := db.records()[len(db.records())-1]
		require.Equal(t, ptr[uint64](1000), last.deleteAfter)
		require.Equal(t, makeBlocks(1001, 1004, 1), last.added)
		require.Equal(t, uint64(1004), bd.GetStatus().LastKnown)
	})

	t.Run("failed step is healed by the next one", func(t *testing.T) {
		t.Parallel()

		chain := &testChain{head: 1000}
		db := newMemoryDatabase(makeBlocks(1000, 1000, 0)...)
		client := &ChainClientMock{chain: chain}
		client.On("GetBlockNumber").Return(nil)
		client.On("GetBlock", uint64(1001)).Return(errors.New("timeout")).Once()
		client.On("GetBlock", mock.Anything).Return(nil)
		client.On("SubscribeNewBlocks").Return(nil)

		bd := NewBlockDownloader(client, db, BlockDownloaderConfig{}, hclog.NewNullLogger())
		defer bd.Close()

		var (
			lock      sync.Mutex
			newBlocks []uint64
		)

		bd.OnNewBlock(func(block Block) {
			lock.Lock()
			newBlocks = append(newBlocks, block.Number)
			lock.Unlock()
		})

		require.NoError(t, bd.Start(context.Background()))

		chain.newBlock(1002)
		waitIdle(t, bd)

		lock.Lock()
		defer lock.Unlock()

		require.Equal(t, []uint64{1002}, newBlocks)

		block, err := db.GetBlock(1001)
		require.NoError(t, err)
		require.NotNil(t, block)
	})
}

func TestBlockDownloader_GetKnownBlocks(t *testing.T) {
	t.Parallel()

	db := newMemoryDatabase(makeBlocks(995, 1000, 0)...)
	bd, _, _ := newTestDownloader(t, &testChain{head: 1000}, db)

	known, err := bd.GetKnownBlocks(997)
	require.NoError(t, err)
	require.Equal(t, makeBlocks(997, 1000, 0), known, "stored blocks before start")

	require.NoError(t, bd.Start(context.Background()))

	known, err = bd.GetKnownBlocks(997)
	require.NoError(t, err)
	require.Equal(t, makeBlocks(997, 1000, 0), known)

	known, err = bd.GetKnownBlocks(1000)
	require.NoError(t, err)
	require.Equal(t, makeBlocks(1000, 1000, 0), known)

	known, err = bd.GetKnownBlocks(1001)
	require.NoError(t, err)
	require.Empty(t, known)
}
