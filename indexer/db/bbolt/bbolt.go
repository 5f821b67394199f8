package indexerbbolt

import (
	"bytes"
	"fmt"

	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer/db/dbutils"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

type BBoltDatabase struct {
	db *bbolt.DB
}

var (
	blocksBucket             = []byte("Blocks")
	syncStatusBucket         = []byte("SyncStatus")
	pagesBucket              = []byte("Pages")
	pagesByHashBucket        = []byte("PagesByHash")
	pageMappingsBucket       = []byte("PageMappings")
	pageMappingsByFactBucket = []byte("PageMappingsByFact")
	stateTransitionsBucket   = []byte("StateTransitions")
	stateUpdatesBucket       = []byte("StateUpdates")

	defaultKey = []byte("default")
)

var (
	_ indexer.Database   = (*BBoltDatabase)(nil)
	_ statesync.Database = (*BBoltDatabase)(nil)
)

func (bd *BBoltDatabase) Init(filePath string) error {
	db, err := bbolt.Open(filePath, 0600, nil)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	bd.db = db

	return db.Update(func(tx *bbolt.Tx) error {
		for _, bn := range [][]byte{
			blocksBucket, syncStatusBucket, pagesBucket, pagesByHashBucket,
			pageMappingsBucket, pageMappingsByFactBucket, stateTransitionsBucket, stateUpdatesBucket,
		} {
			_, err := tx.CreateBucketIfNotExists(bn)
			if err != nil {
				return fmt.Errorf("could not create bucket: %s, err: %w", string(bn), err)
			}
		}

		return nil
	})
}

func (bd *BBoltDatabase) Close() error {
	return bd.db.Close()
}

func (bd *BBoltDatabase) OpenTx() indexer.DbTransactionWriter {
	return NewBBoltTransactionWriter(bd.db)
}

func (bd *BBoltDatabase) OpenStateTx() statesync.DbTransactionWriter {
	return NewBBoltTransactionWriter(bd.db)
}

func (bd *BBoltDatabase) GetLastBlock() (*indexer.Block, error) {
	var result *indexer.Block

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		if _, data := tx.Bucket(blocksBucket).Cursor().Last(); len(data) > 0 {
			return cbor.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetBlock(blockNumber uint64) (*indexer.Block, error) {
	var result *indexer.Block

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(blocksBucket).Get(indexer.BlockNumberToKey(blockNumber)); len(data) > 0 {
			return cbor.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetBlocksInRange(from, to uint64) ([]indexer.Block, error) {
	var result []indexer.Block

	err := bd.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(blocksBucket).Cursor()

		for k, v := cursor.Seek(indexer.BlockNumberToKey(from)); k != nil; k, v = cursor.Next() {
			if indexer.KeyToBlockNumber(k) > to {
				break
			}

			var block indexer.Block

			if err := cbor.Unmarshal(v, &block); err != nil {
				return err
			}

			result = append(result, block)
		}

		return nil
	})

	return result, err
}

func (bd *BBoltDatabase) GetSyncStatus() (*indexer.SyncStatus, error) {
	var result *indexer.SyncStatus

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(syncStatusBucket).Get(defaultKey); len(data) > 0 {
			return cbor.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) SetSyncStatus(status *indexer.SyncStatus) error {
	return bd.OpenTx().SetSyncStatus(status).Execute()
}

func (bd *BBoltDatabase) GetPage(pageHash indexer.Hash) (*statesync.PageRecord, error) {
	var result *statesync.PageRecord

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		var lastKey []byte

		cursor := tx.Bucket(pagesByHashBucket).Cursor()
		for k, _ := cursor.Seek(pageHash[:]); k != nil && bytes.HasPrefix(k, pageHash[:]); k, _ = cursor.Next() {
			lastKey = k
		}

		if lastKey == nil {
			return nil
		}

		data := tx.Bucket(pagesBucket).Get(dbutils.PageKeyFromHashKey(lastKey))
		if len(data) == 0 {
			return fmt.Errorf("page index is out of sync for %s", pageHash)
		}

		return cbor.Unmarshal(data, &result)
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetPageMappings(factHash indexer.Hash) ([]statesync.PageMappingRecord, error) {
	var result []statesync.PageMappingRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		mappings := tx.Bucket(pageMappingsBucket)
		cursor := tx.Bucket(pageMappingsByFactBucket).Cursor()

		for k, _ := cursor.Seek(factHash[:]); k != nil && bytes.HasPrefix(k, factHash[:]); k, _ = cursor.Next() {
			data := mappings.Get(dbutils.PageMappingKeyFromFactKey(k))
			if len(data) == 0 {
				return fmt.Errorf("page mapping index is out of sync for %s", factHash)
			}

			var mapping statesync.PageMappingRecord

			if err := cbor.Unmarshal(data, &mapping); err != nil {
				return err
			}

			result = append(result, mapping)
		}

		return nil
	})

	return result, err
}

func (bd *BBoltDatabase) GetStateTransitions(from, to uint64) ([]statesync.StateTransitionRecord, error) {
	var result []statesync.StateTransitionRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(stateTransitionsBucket).Cursor()

		for k, v := cursor.Seek(indexer.BlockNumberToKey(from)); k != nil; k, v = cursor.Next() {
			if dbutils.BlockNumberOfKey(k) > to {
				break
			}

			var transition statesync.StateTransitionRecord

			if err := cbor.Unmarshal(v, &transition); err != nil {
				return err
			}

			result = append(result, transition)
		}

		return nil
	})

	return result, err
}

func (bd *BBoltDatabase) GetStateUpdate(id uint64) (*statesync.StateUpdateRecord, error) {
	var result *statesync.StateUpdateRecord

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(stateUpdatesBucket).Get(dbutils.StateUpdateKey(id)); len(data) > 0 {
			return cbor.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetLastStateUpdate() (*statesync.StateUpdateRecord, error) {
	var result *statesync.StateUpdateRecord

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		if _, data := tx.Bucket(stateUpdatesBucket).Cursor().Last(); len(data) > 0 {
			return cbor.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}
