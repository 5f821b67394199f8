package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](value T) *T {
	return &value
}

func requireSyncEffect(t *testing.T, effect SyncEffect, start, end uint64, known []Block) {
	t.Helper()

	sync, ok := effect.(*SyncEffectSync)
	require.True(t, ok, "expected sync effect, got %T", effect)
	requireRange(t, sync.Blocks, start, end, known)
}

func requireDiscardEffect(t *testing.T, effect SyncEffect, blockNumber uint64) {
	t.Helper()

	discard, ok := effect.(*SyncEffectDiscardAfter)
	require.True(t, ok, "expected discard effect, got %T", effect)
	require.Equal(t, blockNumber, discard.BlockNumber)
}

func TestReduceSyncState(t *testing.T) {
	t.Parallel()

	t.Run("initialized without known blocks", func(t *testing.T) {
		t.Parallel()

		state, effect := ReduceSyncState(SyncState{}, ActionInitialized{LastSynced: 1000}, DefaultMaxBatchSize)

		require.Nil(t, effect)
		require.False(t, state.IsProcessing)
		require.Nil(t, state.DiscardAfter)
		requireRange(t, state.Remaining, 1001, 1001, nil)
	})

	t.Run("initialized syncs the first batch", func(t *testing.T) {
		t.Parallel()

		state, effect := ReduceSyncState(SyncState{}, ActionInitialized{
			LastSynced:  1000,
			KnownBlocks: mustContinuous(t, makeBlocks(1001, 7001, 0)),
		}, DefaultMaxBatchSize)

		requireSyncEffect(t, effect, 1001, 7001, makeBlocks(1001, 7000, 0))
		require.True(t, state.IsProcessing)
		requireRange(t, state.Remaining, 7001, 7002, makeBlocks(7001, 7001, 0))
	})

	t.Run("initialized ignores already synced blocks", func(t *testing.T) {
		t.Parallel()

		_, effect := ReduceSyncState(SyncState{}, ActionInitialized{
			LastSynced:  1000,
			KnownBlocks: mustContinuous(t, makeBlocks(900, 1002, 0)),
		}, DefaultMaxBatchSize)

		requireSyncEffect(t, effect, 1001, 1003, makeBlocks(1001, 1002, 0))
	})

	t.Run("initialized with a gap before the known blocks", func(t *testing.T) {
		t.Parallel()

		_, effect := ReduceSyncState(SyncState{}, ActionInitialized{
			LastSynced:  1000,
			KnownBlocks: mustContinuous(t, makeBlocks(1500, 1501, 0)),
		}, DefaultMaxBatchSize)

		requireSyncEffect(t, effect, 1001, 1502, makeBlocks(1500, 1501, 0))
	})

	t.Run("initialized resets a pending discard", func(t *testing.T) {
		t.Parallel()

		state, effect := ReduceSyncState(SyncState{DiscardAfter: ptr[uint64](10)},
			ActionInitialized{LastSynced: 1000}, DefaultMaxBatchSize)

		require.Nil(t, effect)
		require.Nil(t, state.DiscardAfter)
	})

	t.Run("new block while processing", func(t *testing.T) {
		t.Parallel()

		state, effect := ReduceSyncState(SyncState{IsProcessing: true, Remaining: EmptyBlockRange(1501)},
			ActionNewBlockFound{Block: makeBlocks(1501, 1501, 0)[0]}, DefaultMaxBatchSize)

		require.Nil(t, effect)
		require.True(t, state.IsProcessing)
		requireRange(t, state.Remaining, 1501, 1502, makeBlocks(1501, 1501, 0))
	})

	t.Run("new block while idle", func(t *testing.T) {
		t.Parallel()

		state, effect := ReduceSyncState(SyncState{Remaining: EmptyBlockRange(1501)},
			ActionNewBlockFound{Block: makeBlocks(1501, 1501, 0)[0]}, DefaultMaxBatchSize)

		requireSyncEffect(t, effect, 1501, 1502, makeBlocks(1501, 1501, 0))
		require.True(t, state.IsProcessing)
		requireRange(t, state.Remaining, 1502, 1502, nil)
	})

	t.Run("sync succeeded continues with the next batch", func(t *testing.T) {
		t.Parallel()

		state := SyncState{IsProcessing: true, Remaining: mustRange(t, makeBlocks(7001, 7003, 0), 7001, 7004)}

		state, effect := ReduceSyncState(state, ActionSyncSucceeded{}, 2)

		requireSyncEffect(t, effect, 7001, 7003, makeBlocks(7001, 7002, 0))
		requireRange(t, state.Remaining, 7003, 7004, makeBlocks(7003, 7003, 0))
	})

	t.Run("sync succeeded with nothing remaining", func(t *testing.T) {
		t.Parallel()

		state, effect := ReduceSyncState(SyncState{IsProcessing: true, Remaining: EmptyBlockRange(7001)},
			ActionSyncSucceeded{}, DefaultMaxBatchSize)

		require.Nil(t, effect)
		require.False(t, state.IsProcessing)
	})

	t.Run("shallow reorg only replaces remaining blocks", func(t *testing.T) {
		t.Parallel()

		state := SyncState{IsProcessing: true, Remaining: mustRange(t, makeBlocks(1501, 1502, 0), 1501, 1503)}

		state, effect := ReduceSyncState(state, ActionReorgOccurred{
			Blocks: mustContinuous(t, makeBlocks(1502, 1503, 1)),
		}, DefaultMaxBatchSize)

		require.Nil(t, effect)
		require.Nil(t, state.DiscardAfter)
		requireRange(t, state.Remaining, 1501, 1504, append(makeBlocks(1501, 1501, 0), makeBlocks(1502, 1503, 1)...))
	})

	t.Run("deep reorg discards synced data", func(t *testing.T) {
		t.Parallel()

		state := SyncState{Remaining: EmptyBlockRange(1501)}

		state, effect := ReduceSyncState(state, ActionReorgOccurred{
			Blocks: mustContinuous(t, makeBlocks(1499, 1501, 1)),
		}, DefaultMaxBatchSize)

		requireDiscardEffect(t, effect, 1498)
		require.True(t, state.IsProcessing)
		require.Equal(t, ptr[uint64](1498), state.DiscardAfter)
		requireRange(t, state.Remaining, 1499, 1502, makeBlocks(1499, 1501, 1))
	})

	t.Run("reorg at the start of remaining discards", func(t *testing.T) {
		t.Parallel()

		state, effect := ReduceSyncState(SyncState{Remaining: EmptyBlockRange(1501)}, ActionReorgOccurred{
			Blocks: mustContinuous(t, makeBlocks(1501, 1501, 1)),
		}, DefaultMaxBatchSize)

		requireDiscardEffect(t, effect, 1500)
		require.Equal(t, ptr[uint64](1500), state.DiscardAfter)
	})

	t.Run("remembers bigger reorgs", func(t *testing.T) {
		t.Parallel()

		state := SyncState{IsProcessing: true, Remaining: EmptyBlockRange(1501), DiscardAfter: ptr[uint64](1490)}

		state, effect := ReduceSyncState(state, ActionReorgOccurred{
			Blocks: mustContinuous(t, makeBlocks(1495, 1501, 1)),
		}, DefaultMaxBatchSize)

		require.Nil(t, effect)
		require.Equal(t, ptr[uint64](1490), state.DiscardAfter)

		state, effect = ReduceSyncState(state, ActionReorgOccurred{
			Blocks: mustContinuous(t, makeBlocks(1480, 1501, 2)),
		}, DefaultMaxBatchSize)

		require.Nil(t, effect)
		require.Equal(t, ptr[uint64](1479), state.DiscardAfter)
		requireRange(t, state.Remaining, 1480, 1502, makeBlocks(1480, 1501, 2))
	})

	t.Run("reorg from the genesis block does not discard", func(t *testing.T) {
		t.Parallel()

		state, _ := ReduceSyncState(SyncState{IsProcessing: true, Remaining: EmptyBlockRange(1)},
			ActionReorgOccurred{Blocks: mustContinuous(t, makeBlocks(0, 1, 1))}, DefaultMaxBatchSize)

		require.Nil(t, state.DiscardAfter)
		requireRange(t, state.Remaining, 0, 2, makeBlocks(0, 1, 1))
	})

	t.Run("empty reorg is ignored", func(t *testing.T) {
		t.Parallel()

		initial := SyncState{Remaining: EmptyBlockRange(1501)}

		state, effect := ReduceSyncState(initial, ActionReorgOccurred{}, DefaultMaxBatchSize)

		require.Nil(t, effect)
		require.Equal(t, initial, state)
	})

	t.Run("discard succeeded continues with sync", func(t *testing.T) {
		t.Parallel()

		state := SyncState{
			IsProcessing: true,
			Remaining:    mustRange(t, makeBlocks(1499, 1501, 1), 1499, 1502),
			DiscardAfter: ptr[uint64](1498),
		}

		state, effect := ReduceSyncState(state, ActionDiscardAfterSucceeded{BlockNumber: 1498}, DefaultMaxBatchSize)

		require.Nil(t, state.DiscardAfter)
		requireSyncEffect(t, effect, 1499, 1502, makeBlocks(1499, 1501, 1))
	})

	t.Run("discard succeeded after a deeper reorg discards again", func(t *testing.T) {
		t.Parallel()

		state := SyncState{IsProcessing: true, Remaining: EmptyBlockRange(1480), DiscardAfter: ptr[uint64](1479)}

		state, effect := ReduceSyncState(state, ActionDiscardAfterSucceeded{BlockNumber: 1498}, DefaultMaxBatchSize)

		requireDiscardEffect(t, effect, 1479)
		require.True(t, state.IsProcessing)
	})

	t.Run("discard failed retries", func(t *testing.T) {
		t.Parallel()

		state := SyncState{IsProcessing: true, Remaining: EmptyBlockRange(1499), DiscardAfter: ptr[uint64](1498)}

		_, effect := ReduceSyncState(state, ActionDiscardAfterFailed{}, DefaultMaxBatchSize)

		requireDiscardEffect(t, effect, 1498)
	})

	t.Run("sync failed puts the blocks back", func(t *testing.T) {
		t.Parallel()

		state := SyncState{IsProcessing: true, Remaining: mustRange(t, makeBlocks(1501, 1501, 0), 1501, 1502)}
		failed := mustRange(t, makeBlocks(1400, 1500, 0), 1001, 1501)

		state, effect := ReduceSyncState(state, ActionSyncFailed{Blocks: failed}, DefaultMaxBatchSize)

		requireSyncEffect(t, effect, 1001, 1502, makeBlocks(1400, 1501, 0))
		requireRange(t, state.Remaining, 1502, 1502, nil)
	})

	t.Run("sync failed keeps blocks replaced by a reorg", func(t *testing.T) {
		t.Parallel()

		state := SyncState{IsProcessing: true, Remaining: mustRange(t, makeBlocks(1500, 1501, 1), 1500, 1502)}
		failed := mustRange(t, makeBlocks(1400, 1500, 0), 1001, 1501)

		_, effect := ReduceSyncState(state, ActionSyncFailed{Blocks: failed}, DefaultMaxBatchSize)

		requireSyncEffect(t, effect, 1001, 1502, append(makeBlocks(1400, 1499, 0), makeBlocks(1500, 1501, 1)...))
	})

	t.Run("sync failed gives way to a pending discard", func(t *testing.T) {
		t.Parallel()

		state := SyncState{
			IsProcessing: true,
			Remaining:    mustRange(t, makeBlocks(1200, 1501, 1), 1200, 1502),
			DiscardAfter: ptr[uint64](1199),
		}
		failed := mustRange(t, makeBlocks(1400, 1500, 0), 1001, 1501)

		state, effect := ReduceSyncState(state, ActionSyncFailed{Blocks: failed}, DefaultMaxBatchSize)

		requireDiscardEffect(t, effect, 1199)
		requireRange(t, state.Remaining, 1001, 1502, makeBlocks(1200, 1501, 1))
	})
}
