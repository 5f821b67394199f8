package indexerbbolt

import (
	"fmt"

	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer/db/dbutils"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

type txOperation func(tx *bbolt.Tx) error

type BBoltTransactionWriter struct {
	db         *bbolt.DB
	operations []txOperation
}

var (
	_ indexer.DbTransactionWriter   = (*BBoltTransactionWriter)(nil)
	_ statesync.DbTransactionWriter = (*BBoltTransactionWriter)(nil)
)

func NewBBoltTransactionWriter(db *bbolt.DB) *BBoltTransactionWriter {
	return &BBoltTransactionWriter{
		db: db,
	}
}

func (tw *BBoltTransactionWriter) AddBlocks(blocks []indexer.Block) indexer.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(blocksBucket)

		for _, block := range blocks {
			bytes, err := cbor.Marshal(block)
			if err != nil {
				return fmt.Errorf("could not marshal block: %w", err)
			}

			if err = bucket.Put(indexer.BlockNumberToKey(block.Number), bytes); err != nil {
				return fmt.Errorf("block write error: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) DeleteAllBlocksAfter(blockNumber uint64) indexer.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		return deleteKeys(tx.Bucket(blocksBucket), keysFrom(tx.Bucket(blocksBucket), blockNumber+1))
	})

	return tw
}

func (tw *BBoltTransactionWriter) SetSyncStatus(status *indexer.SyncStatus) indexer.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(syncStatusBucket)

		if status == nil {
			return bucket.Delete(defaultKey)
		}

		bytes, err := cbor.Marshal(status)
		if err != nil {
			return fmt.Errorf("could not marshal sync status: %w", err)
		}

		if err = bucket.Put(defaultKey, bytes); err != nil {
			return fmt.Errorf("sync status write error: %w", err)
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) AddPages(pages []statesync.PageRecord) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bucket, indexBucket := tx.Bucket(pagesBucket), tx.Bucket(pagesByHashBucket)

		for _, page := range pages {
			bytes, err := cbor.Marshal(page)
			if err != nil {
				return fmt.Errorf("could not marshal page: %w", err)
			}

			if err = bucket.Put(dbutils.PageKey(page), bytes); err != nil {
				return fmt.Errorf("page write error: %w", err)
			}

			if err = indexBucket.Put(dbutils.PageByHashKey(page), []byte{}); err != nil {
				return fmt.Errorf("page index write error: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) AddPageMappings(
	mappings []statesync.PageMappingRecord,
) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bucket, indexBucket := tx.Bucket(pageMappingsBucket), tx.Bucket(pageMappingsByFactBucket)

		for _, mapping := range mappings {
			bytes, err := cbor.Marshal(mapping)
			if err != nil {
				return fmt.Errorf("could not marshal page mapping: %w", err)
			}

			if err = bucket.Put(dbutils.PageMappingKey(mapping), bytes); err != nil {
				return fmt.Errorf("page mapping write error: %w", err)
			}

			if err = indexBucket.Put(dbutils.PageMappingByFactKey(mapping), []byte{}); err != nil {
				return fmt.Errorf("page mapping index write error: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) AddStateTransitions(
	transitions []statesync.StateTransitionRecord,
) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(stateTransitionsBucket)

		for _, transition := range transitions {
			bytes, err := cbor.Marshal(transition)
			if err != nil {
				return fmt.Errorf("could not marshal state transition: %w", err)
			}

			if err = bucket.Put(dbutils.StateTransitionKey(transition), bytes); err != nil {
				return fmt.Errorf("state transition write error: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) AddStateUpdates(updates []statesync.StateUpdateRecord) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(stateUpdatesBucket)

		for _, update := range updates {
			bytes, err := cbor.Marshal(update)
			if err != nil {
				return fmt.Errorf("could not marshal state update: %w", err)
			}

			if err = bucket.Put(dbutils.StateUpdateKey(update.ID), bytes); err != nil {
				return fmt.Errorf("state update write error: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) DeleteStateDataAfter(blockNumber uint64) statesync.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		pages := keysFrom(tx.Bucket(pagesBucket), blockNumber+1)
		pagesIndex := make([][]byte, len(pages))

		for i, key := range pages {
			pagesIndex[i] = dbutils.PageByHashKeyFromPageKey(key)
		}

		mappings := keysFrom(tx.Bucket(pageMappingsBucket), blockNumber+1)
		mappingsIndex := make([][]byte, len(mappings))

		for i, key := range mappings {
			mappingsIndex[i] = dbutils.PageMappingByFactKeyFromMappingKey(key)
		}

		updates, err := stateUpdateKeysAfter(tx.Bucket(stateUpdatesBucket), blockNumber)
		if err != nil {
			return err
		}

		for _, x := range []struct {
			bucket []byte
			keys   [][]byte
		}{
			{pagesBucket, pages},
			{pagesByHashBucket, pagesIndex},
			{pageMappingsBucket, mappings},
			{pageMappingsByFactBucket, mappingsIndex},
			{stateTransitionsBucket, keysFrom(tx.Bucket(stateTransitionsBucket), blockNumber+1)},
			{stateUpdatesBucket, updates},
		} {
			if err := deleteKeys(tx.Bucket(x.bucket), x.keys); err != nil {
				return fmt.Errorf("delete from %s failed: %w", string(x.bucket), err)
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) Execute() error {
	defer func() {
		tw.operations = nil
	}()

	return tw.db.Update(func(tx *bbolt.Tx) error {
		for _, op := range tw.operations {
			if err := op(tx); err != nil {
				return err
			}
		}

		return nil
	})
}

// keysFrom returns copies of all keys of the block ordered bucket starting with blockNumber or later
func keysFrom(bucket *bbolt.Bucket, blockNumber uint64) (result [][]byte) {
	cursor := bucket.Cursor()

	for k, _ := cursor.Seek(indexer.BlockNumberToKey(blockNumber)); k != nil; k, _ = cursor.Next() {
		result = append(result, append([]byte(nil), k...))
	}

	return result
}

// stateUpdateKeysAfter walks back from the last update while updates belong to blocks after blockNumber
func stateUpdateKeysAfter(bucket *bbolt.Bucket, blockNumber uint64) (result [][]byte, err error) {
	cursor := bucket.Cursor()

	for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
		var update statesync.StateUpdateRecord

		if err := cbor.Unmarshal(v, &update); err != nil {
			return nil, fmt.Errorf("could not unmarshal state update: %w", err)
		}

		if update.BlockNumber <= blockNumber {
			break
		}

		result = append(result, append([]byte(nil), k...))
	}

	return result, nil
}

func deleteKeys(bucket *bbolt.Bucket, keys [][]byte) error {
	for _, key := range keys {
		if err := bucket.Delete(key); err != nil {
			return err
		}
	}

	return nil
}
