package indexerleveldb

import (
	"errors"
	"fmt"

	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer/db/dbutils"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const bucketSeparator = "_#_"

type LevelDBDatabase struct {
	db *leveldb.DB
}

var (
	blocksBucket             = []byte("P1_")
	syncStatusBucket         = []byte("P2_")
	pagesBucket              = []byte("P3_")
	pagesByHashBucket        = []byte("P4_")
	pageMappingsBucket       = []byte("P5_")
	pageMappingsByFactBucket = []byte("P6_")
	stateTransitionsBucket   = []byte("P7_")
	stateUpdatesBucket       = []byte("P8_")

	defaultKey = []byte("default")
)

var (
	_ indexer.Database   = (*LevelDBDatabase)(nil)
	_ statesync.Database = (*LevelDBDatabase)(nil)
)

func (lvldb *LevelDBDatabase) Init(filePath string) error {
	db, err := leveldb.OpenFile(filePath, nil)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	lvldb.db = db

	return nil
}

func (lvldb *LevelDBDatabase) Close() error {
	return lvldb.db.Close()
}

func (lvldb *LevelDBDatabase) OpenTx() indexer.DbTransactionWriter {
	return NewLevelDBTransactionWriter(lvldb.db)
}

func (lvldb *LevelDBDatabase) OpenStateTx() statesync.DbTransactionWriter {
	return NewLevelDBTransactionWriter(lvldb.db)
}

func (lvldb *LevelDBDatabase) GetLastBlock() (*indexer.Block, error) {
	var result *indexer.Block

	iter := lvldb.db.NewIterator(util.BytesPrefix(blocksBucket), nil)
	defer iter.Release()

	if iter.Last() {
		if err := cbor.Unmarshal(iter.Value(), &result); err != nil {
			return nil, err
		}
	}

	return result, iter.Error()
}

func (lvldb *LevelDBDatabase) GetBlock(blockNumber uint64) (*indexer.Block, error) {
	var result *indexer.Block

	if err := lvldb.get(bucketKey(blocksBucket, indexer.BlockNumberToKey(blockNumber)), &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (lvldb *LevelDBDatabase) GetBlocksInRange(from, to uint64) ([]indexer.Block, error) {
	var result []indexer.Block

	iter := lvldb.db.NewIterator(util.BytesPrefix(blocksBucket), nil)
	defer iter.Release()

	for ok := iter.Seek(bucketKey(blocksBucket, indexer.BlockNumberToKey(from))); ok; ok = iter.Next() {
		if indexer.KeyToBlockNumber(keyOf(blocksBucket, iter.Key())) > to {
			break
		}

		var block indexer.Block

		if err := cbor.Unmarshal(iter.Value(), &block); err != nil {
			return nil, err
		}

		result = append(result, block)
	}

	return result, iter.Error()
}

func (lvldb *LevelDBDatabase) GetSyncStatus() (*indexer.SyncStatus, error) {
	var result *indexer.SyncStatus

	if err := lvldb.get(bucketKey(syncStatusBucket, defaultKey), &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (lvldb *LevelDBDatabase) SetSyncStatus(status *indexer.SyncStatus) error {
	return lvldb.OpenTx().SetSyncStatus(status).Execute()
}

func (lvldb *LevelDBDatabase) GetPage(pageHash indexer.Hash) (*statesync.PageRecord, error) {
	var result *statesync.PageRecord

	iter := lvldb.db.NewIterator(util.BytesPrefix(bucketKey(pagesByHashBucket, pageHash[:])), nil)
	defer iter.Release()

	if !iter.Last() {
		return nil, iter.Error()
	}

	pageKey := dbutils.PageKeyFromHashKey(keyOf(pagesByHashBucket, iter.Key()))

	if err := lvldb.get(bucketKey(pagesBucket, pageKey), &result); err != nil {
		return nil, err
	}

	if result == nil {
		return nil, fmt.Errorf("page index is out of sync for %s", pageHash)
	}

	return result, nil
}

func (lvldb *LevelDBDatabase) GetPageMappings(factHash indexer.Hash) ([]statesync.PageMappingRecord, error) {
	var result []statesync.PageMappingRecord

	iter := lvldb.db.NewIterator(util.BytesPrefix(bucketKey(pageMappingsByFactBucket, factHash[:])), nil)
	defer iter.Release()

	for iter.Next() {
		var mapping *statesync.PageMappingRecord

		mappingKey := dbutils.PageMappingKeyFromFactKey(keyOf(pageMappingsByFactBucket, iter.Key()))

		if err := lvldb.get(bucketKey(pageMappingsBucket, mappingKey), &mapping); err != nil {
			return nil, err
		}

		if mapping == nil {
			return nil, fmt.Errorf("page mapping index is out of sync for %s", factHash)
		}

		result = append(result, *mapping)
	}

	return result, iter.Error()
}

func (lvldb *LevelDBDatabase) GetStateTransitions(from, to uint64) ([]statesync.StateTransitionRecord, error) {
	var result []statesync.StateTransitionRecord

	iter := lvldb.db.NewIterator(util.BytesPrefix(stateTransitionsBucket), nil)
	defer iter.Release()

	for ok := iter.Seek(bucketKey(stateTransitionsBucket, indexer.BlockNumberToKey(from))); ok; ok = iter.Next() {
		if dbutils.BlockNumberOfKey(keyOf(stateTransitionsBucket, iter.Key())) > to {
			break
		}

		var transition statesync.StateTransitionRecord

		if err := cbor.Unmarshal(iter.Value(), &transition); err != nil {
			return nil, err
		}

		result = append(result, transition)
	}

	return result, iter.Error()
}

func (lvldb *LevelDBDatabase) GetStateUpdate(id uint64) (*statesync.StateUpdateRecord, error) {
	var result *statesync.StateUpdateRecord

	if err := lvldb.get(bucketKey(stateUpdatesBucket, dbutils.StateUpdateKey(id)), &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (lvldb *LevelDBDatabase) GetLastStateUpdate() (*statesync.StateUpdateRecord, error) {
	var result *statesync.StateUpdateRecord

	iter := lvldb.db.NewIterator(util.BytesPrefix(stateUpdatesBucket), nil)
	defer iter.Release()

	if iter.Last() {
		if err := cbor.Unmarshal(iter.Value(), &result); err != nil {
			return nil, err
		}
	}

	return result, iter.Error()
}

// get leaves value untouched when the key does not exist
func (lvldb *LevelDBDatabase) get(key []byte, value interface{}) error {
	bytes, err := lvldb.db.Get(key, nil)
	if err != nil {
		return processNotFoundErr(err)
	}

	return cbor.Unmarshal(bytes, value)
}

func bucketKey(bucket []byte, key []byte) []byte {
	outputKey := make([]byte, len(bucket)+len(bucketSeparator)+len(key))
	copy(outputKey, bucket)
	copy(outputKey[len(bucket):], []byte(bucketSeparator))
	copy(outputKey[len(bucket)+len(bucketSeparator):], key)

	return outputKey
}

// keyOf returns a copy of the bucket key without the bucket prefix
func keyOf(bucket []byte, key []byte) []byte {
	return append([]byte(nil), key[len(bucket)+len(bucketSeparator):]...)
}

func processNotFoundErr(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}

	return err
}
