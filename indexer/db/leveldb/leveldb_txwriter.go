package indexerleveldb

import (
	"fmt"

	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer/db/dbutils"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// txOperation reads see the database state from before the transaction
type txOperation func(*leveldb.DB, *leveldb.Batch) error

type LevelDBTransactionWriter struct {
	db         *leveldb.DB
	operations []txOperation
}

var (
	_ indexer.DbTransactionWriter   = (*LevelDBTransactionWriter)(nil)
	_ statesync.DbTransactionWriter = (*LevelDBTransactionWriter)(nil)
)

func NewLevelDBTransactionWriter(db *leveldb.DB) *LevelDBTransactionWriter {
	return &LevelDBTransactionWriter{
		db: db,
	}
}

func (tw *LevelDBTransactionWriter) AddBlocks(blocks []indexer.Block) indexer.DbTransactionWriter {
	tw.operations = append(tw.operations, func(_ *leveldb.DB, batch *leveldb.Batch) error {
		for _, block := range blocks {
			bytes, err := cbor.Marshal(block)
			if err != nil {
				return fmt.Errorf("could not marshal block: %w", err)
			}

			batch.Put(bucketKey(blocksBucket, indexer.BlockNumberToKey(block.Number)), bytes)
		}

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) DeleteAllBlocksAfter(blockNumber uint64) indexer.DbTransactionWriter {
	tw.operations = append(tw.operations, func(db *leveldb.DB, batch *leveldb.Batch) error {
		return deleteFrom(db, batch, blocksBucket, blockNumber+1, nil)
	})

	return tw
}

func (tw *LevelDBTransactionWriter) SetSyncStatus(status *indexer.SyncStatus) indexer.DbTransactionWriter {
	tw.operations = append(tw.operations, func(_ *leveldb.DB, batch *leveldb.Batch) error {
		if status == nil {
			batch.Delete(bucketKey(syncStatusBucket, defaultKey))

			return nil
		}

		bytes, err := cbor.Marshal(status)
		if err != nil {
			return fmt.Errorf("could not marshal sync status: %w", err)
		}

		batch.Put(bucketKey(syncStatusBucket, defaultKey), bytes)

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) AddPages(pages []statesync.PageRecord) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(_ *leveldb.DB, batch *leveldb.Batch) error {
		for _, page := range pages {
			bytes, err := cbor.Marshal(page)
			if err != nil {
				return fmt.Errorf("could not marshal page: %w", err)
			}

			batch.Put(bucketKey(pagesBucket, dbutils.PageKey(page)), bytes)
			batch.Put(bucketKey(pagesByHashBucket, dbutils.PageByHashKey(page)), []byte{})
		}

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) AddPageMappings(
	mappings []statesync.PageMappingRecord,
) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(_ *leveldb.DB, batch *leveldb.Batch) error {
		for _, mapping := range mappings {
			bytes, err := cbor.Marshal(mapping)
			if err != nil {
				return fmt.Errorf("could not marshal page mapping: %w", err)
			}

			batch.Put(bucketKey(pageMappingsBucket, dbutils.PageMappingKey(mapping)), bytes)
			batch.Put(bucketKey(pageMappingsByFactBucket, dbutils.PageMappingByFactKey(mapping)), []byte{})
		}

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) AddStateTransitions(
	transitions []statesync.StateTransitionRecord,
) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(_ *leveldb.DB, batch *leveldb.Batch) error {
		for _, transition := range transitions {
			bytes, err := cbor.Marshal(transition)
			if err != nil {
				return fmt.Errorf("could not marshal state transition: %w", err)
			}

			batch.Put(bucketKey(stateTransitionsBucket, dbutils.StateTransitionKey(transition)), bytes)
		}

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) AddStateUpdates(
	updates []statesync.StateUpdateRecord,
) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(_ *leveldb.DB, batch *leveldb.Batch) error {
		for _, update := range updates {
			bytes, err := cbor.Marshal(update)
			if err != nil {
				return fmt.Errorf("could not marshal state update: %w", err)
			}

			batch.Put(bucketKey(stateUpdatesBucket, dbutils.StateUpdateKey(update.ID)), bytes)
		}

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) DeleteStateDataAfter(blockNumber uint64) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(db *leveldb.DB, batch *leveldb.Batch) error {
		if err := deleteFrom(db, batch, pagesBucket, blockNumber+1, func(key []byte) {
			batch.Delete(bucketKey(pagesByHashBucket, dbutils.PageByHashKeyFromPageKey(key)))
		}); err != nil {
			return err
		}

		if err := deleteFrom(db, batch, pageMappingsBucket, blockNumber+1, func(key []byte) {
			batch.Delete(bucketKey(pageMappingsByFactBucket, dbutils.PageMappingByFactKeyFromMappingKey(key)))
		}); err != nil {
			return err
		}

		if err := deleteFrom(db, batch, stateTransitionsBucket, blockNumber+1, nil); err != nil {
			return err
		}

		return deleteStateUpdatesAfter(db, batch, blockNumber)
	})

	return tw
}

func (tw *LevelDBTransactionWriter) Execute() error {
	defer func() {
		tw.operations = nil
	}()

	batch := new(leveldb.Batch)

	for _, op := range tw.operations {
		if err := op(tw.db, batch); err != nil {
			return err
		}
	}

	return tw.db.Write(batch, &opt.WriteOptions{
		NoWriteMerge: false,
		Sync:         true,
	})
}

// deleteFrom deletes every key of the block ordered bucket starting with blockNumber or later.
// onDelete receives each deleted key without the bucket prefix.
func deleteFrom(
	db *leveldb.DB, batch *leveldb.Batch, bucket []byte, blockNumber uint64, onDelete func(key []byte),
) error {
	iter := db.NewIterator(&util.Range{
		Start: bucketKey(bucket, indexer.BlockNumberToKey(blockNumber)),
		Limit: util.BytesPrefix(bucket).Limit,
	}, nil)
	defer iter.Release()

	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))

		if onDelete != nil {
			onDelete(keyOf(bucket, iter.Key()))
		}
	}

	return iter.Error()
}

func deleteStateUpdatesAfter(db *leveldb.DB, batch *leveldb.Batch, blockNumber uint64) error {
	iter := db.NewIterator(util.BytesPrefix(stateUpdatesBucket), nil)
	defer iter.Release()

	for ok := iter.Last(); ok; ok = iter.Prev() {
		var update statesync.StateUpdateRecord

		if err := cbor.Unmarshal(iter.Value(), &update); err != nil {
			return fmt.Errorf("could not unmarshal state update: %w", err)
		}

		if update.BlockNumber <= blockNumber {
			break
		}

		batch.Delete(append([]byte(nil), iter.Key()...))
	}

	return iter.Error()
}
