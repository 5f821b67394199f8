// Package dbtest holds the behaviour every database backend has to satisfy
package dbtest

import (
	"math/big"
	"testing"

	"github.com/Ethernal-Tech/starkex-infrastructure/codec"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
	"github.com/stretchr/testify/require"
)

type Database interface {
	indexer.Database
	statesync.Database
}

// RunDatabaseSuite runs all checks against fresh databases created by newDB
func RunDatabaseSuite(t *testing.T, newDB func(t *testing.T) Database) {
	t.Helper()

	t.Run("EmptyDatabase", func(t *testing.T) {
		db := newDB(t)

		block, err := db.GetLastBlock()
		require.NoError(t, err)
		require.Nil(t, block)

		block, err = db.GetBlock(1)
		require.NoError(t, err)
		require.Nil(t, block)

		blocks, err := db.GetBlocksInRange(0, 100)
		require.NoError(t, err)
		require.Empty(t, blocks)

		status, err := db.GetSyncStatus()
		require.NoError(t, err)
		require.Nil(t, status)

		page, err := db.GetPage(Hash(1, 0))
		require.NoError(t, err)
		require.Nil(t, page)

		mappings, err := db.GetPageMappings(Hash(1, 0))
		require.NoError(t, err)
		require.Empty(t, mappings)

		transitions, err := db.GetStateTransitions(0, 100)
		require.NoError(t, err)
		require.Empty(t, transitions)

		update, err := db.GetLastStateUpdate()
		require.NoError(t, err)
		require.Nil(t, update)

		update, err = db.GetStateUpdate(1)
		require.NoError(t, err)
		require.Nil(t, update)
	})

	t.Run("ExecuteEmpty", func(t *testing.T) {
		db := newDB(t)

		require.NoError(t, db.OpenTx().Execute())
		require.NoError(t, db.OpenStateTx().Execute())
	})

	t.Run("Blocks", func(t *testing.T) {
		db := newDB(t)

		require.NoError(t, db.OpenTx().AddBlocks(Blocks(1001, 1005, 0)).Execute())

		block, err := db.GetLastBlock()
		require.NoError(t, err)
		require.Equal(t, &indexer.Block{Number: 1005, Hash: Hash(1005, 0)}, block)

		block, err = db.GetBlock(1003)
		require.NoError(t, err)
		require.Equal(t, &indexer.Block{Number: 1003, Hash: Hash(1003, 0)}, block)

		blocks, err := db.GetBlocksInRange(1002, 1004)
		require.NoError(t, err)
		require.Equal(t, Blocks(1002, 1004, 0), blocks)

		blocks, err = db.GetBlocksInRange(1004, 2000)
		require.NoError(t, err)
		require.Equal(t, Blocks(1004, 1005, 0), blocks)

		blocks, err = db.GetBlocksInRange(1, 1000)
		require.NoError(t, err)
		require.Empty(t, blocks)
	})

	t.Run("ReplaceBlocksAfter", func(t *testing.T) {
		db := newDB(t)

		require.NoError(t, db.OpenTx().AddBlocks(Blocks(1001, 1005, 0)).Execute())
		require.NoError(t, db.OpenTx().
			DeleteAllBlocksAfter(1002).
			AddBlocks(Blocks(1003, 1004, 1)).
			Execute())

		blocks, err := db.GetBlocksInRange(1000, 2000)
		require.NoError(t, err)
		require.Equal(t, append(Blocks(1001, 1002, 0), Blocks(1003, 1004, 1)...), blocks)

		block, err := db.GetBlock(1005)
		require.NoError(t, err)
		require.Nil(t, block)
	})

	t.Run("SyncStatus", func(t *testing.T) {
		db := newDB(t)

		require.NoError(t, db.SetSyncStatus(&indexer.SyncStatus{LastSynced: 1500}))

		status, err := db.GetSyncStatus()
		require.NoError(t, err)
		require.Equal(t, &indexer.SyncStatus{LastSynced: 1500}, status)

		require.NoError(t, db.OpenTx().
			AddBlocks(Blocks(1, 2, 0)).
			SetSyncStatus(&indexer.SyncStatus{LastSynced: 2}).
			Execute())

		status, err = db.GetSyncStatus()
		require.NoError(t, err)
		require.Equal(t, &indexer.SyncStatus{LastSynced: 2}, status)

		require.NoError(t, db.SetSyncStatus(nil))

		status, err = db.GetSyncStatus()
		require.NoError(t, err)
		require.Nil(t, status)
	})

	t.Run("Pages", func(t *testing.T) {
		db := newDB(t)

		first := statesync.PageRecord{BlockNumber: 100, PageHash: Hash(7, 0), Data: "01"}
		second := statesync.PageRecord{BlockNumber: 120, PageHash: Hash(7, 0), Data: "02"}
		other := statesync.PageRecord{BlockNumber: 110, PageHash: Hash(8, 0), Data: "03"}

		require.NoError(t, db.OpenStateTx().AddPages([]statesync.PageRecord{first, other}).Execute())

		page, err := db.GetPage(Hash(7, 0))
		require.NoError(t, err)
		require.Equal(t, &first, page)

		require.NoError(t, db.OpenStateTx().AddPages([]statesync.PageRecord{second}).Execute())

		page, err = db.GetPage(Hash(7, 0))
		require.NoError(t, err)
		require.Equal(t, &second, page)

		page, err = db.GetPage(Hash(8, 0))
		require.NoError(t, err)
		require.Equal(t, &other, page)
	})

	t.Run("PageMappings", func(t *testing.T) {
		db := newDB(t)

		fact, otherFact := Hash(1, 0), Hash(2, 0)
		mappings := []statesync.PageMappingRecord{
			{BlockNumber: 105, FactHash: fact, PageIndex: 1, PageHash: Hash(11, 0)},
			{BlockNumber: 105, FactHash: fact, PageIndex: 0, PageHash: Hash(10, 0)},
			{BlockNumber: 101, FactHash: fact, PageIndex: 0, PageHash: Hash(9, 0)},
			{BlockNumber: 103, FactHash: otherFact, PageIndex: 0, PageHash: Hash(12, 0)},
		}

		require.NoError(t, db.OpenStateTx().AddPageMappings(mappings).Execute())

		result, err := db.GetPageMappings(fact)
		require.NoError(t, err)
		require.Equal(t, []statesync.PageMappingRecord{mappings[2], mappings[1], mappings[0]}, result)

		result, err = db.GetPageMappings(otherFact)
		require.NoError(t, err)
		require.Equal(t, mappings[3:], result)
	})

	t.Run("StateTransitions", func(t *testing.T) {
		db := newDB(t)

		transitions := []statesync.StateTransitionRecord{
			{BlockNumber: 100, LogIndex: 3, FactHash: Hash(1, 0)},
			{BlockNumber: 100, LogIndex: 1, FactHash: Hash(2, 0)},
			{BlockNumber: 102, LogIndex: 0, FactHash: Hash(3, 0)},
			{BlockNumber: 105, LogIndex: 0, FactHash: Hash(4, 0)},
		}

		require.NoError(t, db.OpenStateTx().AddStateTransitions(transitions).Execute())

		result, err := db.GetStateTransitions(100, 102)
		require.NoError(t, err)
		require.Equal(t, []statesync.StateTransitionRecord{transitions[1], transitions[0], transitions[2]}, result)

		result, err = db.GetStateTransitions(103, 200)
		require.NoError(t, err)
		require.Equal(t, transitions[3:], result)
	})

	t.Run("StateUpdates", func(t *testing.T) {
		db := newDB(t)

		updates := []statesync.StateUpdateRecord{StateUpdate(1, 100), StateUpdate(2, 104)}

		require.NoError(t, db.OpenStateTx().AddStateUpdates(updates).Execute())

		update, err := db.GetStateUpdate(1)
		require.NoError(t, err)
		require.Equal(t, &updates[0], update)

		update, err = db.GetLastStateUpdate()
		require.NoError(t, err)
		require.Equal(t, &updates[1], update)
	})

	t.Run("DeleteStateDataAfter", func(t *testing.T) {
		db := newDB(t)

		fact := Hash(1, 0)

		require.NoError(t, db.OpenStateTx().
			AddPages([]statesync.PageRecord{
				{BlockNumber: 100, PageHash: Hash(7, 0), Data: "01"},
				{BlockNumber: 110, PageHash: Hash(7, 0), Data: "01"},
			}).
			AddPageMappings([]statesync.PageMappingRecord{
				{BlockNumber: 101, FactHash: fact, PageIndex: 0, PageHash: Hash(7, 0)},
				{BlockNumber: 111, FactHash: fact, PageIndex: 0, PageHash: Hash(7, 0)},
			}).
			AddStateTransitions([]statesync.StateTransitionRecord{
				{BlockNumber: 102, LogIndex: 0, FactHash: fact},
				{BlockNumber: 112, LogIndex: 0, FactHash: fact},
			}).
			AddStateUpdates([]statesync.StateUpdateRecord{StateUpdate(1, 102), StateUpdate(2, 112)}).
			Execute())

		require.NoError(t, db.OpenStateTx().DeleteStateDataAfter(105).Execute())

		page, err := db.GetPage(Hash(7, 0))
		require.NoError(t, err)
		require.Equal(t, uint64(100), page.BlockNumber)

		mappings, err := db.GetPageMappings(fact)
		require.NoError(t, err)
		require.Len(t, mappings, 1)
		require.Equal(t, uint64(101), mappings[0].BlockNumber)

		transitions, err := db.GetStateTransitions(0, 1000)
		require.NoError(t, err)
		require.Len(t, transitions, 1)
		require.Equal(t, uint64(102), transitions[0].BlockNumber)

		update, err := db.GetLastStateUpdate()
		require.NoError(t, err)
		require.Equal(t, uint64(1), update.ID)

		update, err = db.GetStateUpdate(2)
		require.NoError(t, err)
		require.Nil(t, update)

		require.NoError(t, db.OpenStateTx().DeleteStateDataAfter(0).Execute())

		page, err = db.GetPage(Hash(7, 0))
		require.NoError(t, err)
		require.Nil(t, page)

		update, err = db.GetLastStateUpdate()
		require.NoError(t, err)
		require.Nil(t, update)
	})

	t.Run("DeleteStateDataKeepsBlocks", func(t *testing.T) {
		db := newDB(t)

		require.NoError(t, db.OpenTx().AddBlocks(Blocks(100, 102, 0)).Execute())
		require.NoError(t, db.OpenStateTx().DeleteStateDataAfter(50).Execute())

		blocks, err := db.GetBlocksInRange(0, 200)
		require.NoError(t, err)
		require.Len(t, blocks, 3)
	})
}

// Hash builds a distinct hash for a number and a fork
func Hash(number uint64, fork byte) (hash indexer.Hash) {
	copy(hash[:], indexer.BlockNumberToKey(number))
	hash[indexer.HashSize-1] = fork + 1

	return hash
}

// Blocks builds blocks from..to inclusive
func Blocks(from, to uint64, fork byte) []indexer.Block {
	result := make([]indexer.Block, 0, to-from+1)
	for n := from; n <= to; n++ {
		result = append(result, indexer.Block{Number: n, Hash: Hash(n, fork)})
	}

	return result
}

// StateUpdate builds a state update with every field set
func StateUpdate(id uint64, blockNumber uint64) statesync.StateUpdateRecord {
	return statesync.StateUpdateRecord{
		ID:           id,
		BlockNumber:  blockNumber,
		FactHash:     Hash(id, 3),
		Timestamp:    1_700_000_000 + id,
		PositionRoot: codec.PedersenHash("0x01"),
		OrderRoot:    codec.PedersenHash("0x02"),
		Positions: []codec.PositionUpdate{
			{
				PositionID:        new(big.Int).SetUint64(id),
				StarkKey:          codec.StarkKey("0x03"),
				CollateralBalance: big.NewInt(-5),
				FundingTimestamp:  codec.Timestamp(1_700_000_000),
				Balances: []codec.AssetBalance{
					{AssetID: codec.AssetID("ETH-9"), Balance: -42},
				},
			},
		},
		Prices: []codec.OraclePrice{{AssetID: codec.AssetID("ETH-9"), Price: big.NewInt(1000)}},
		ForcedActions: []statesync.ForcedActionRecord{
			{Withdrawal: &codec.ForcedWithdrawal{
				StarkKey:   codec.StarkKey("0x04"),
				PositionID: big.NewInt(1),
				Amount:     big.NewInt(10),
			}},
		},
	}
}
