package db

import (
	"fmt"

	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	indexerbbolt "github.com/Ethernal-Tech/starkex-infrastructure/indexer/db/bbolt"
	indexerleveldb "github.com/Ethernal-Tech/starkex-infrastructure/indexer/db/leveldb"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
)

const (
	BBoltDatabaseName   = "bbolt"
	LevelDBDatabaseName = "leveldb"
)

// Database stores both the downloaded chain and the decoded state data
type Database interface {
	indexer.Database
	statesync.Database
}

func NewDatabase(name string) (Database, error) {
	switch name {
	case BBoltDatabaseName, "":
		return &indexerbbolt.BBoltDatabase{}, nil
	case LevelDBDatabaseName:
		return &indexerleveldb.LevelDBDatabase{}, nil
	default:
		return nil, fmt.Errorf("unknown database: %s", name)
	}
}

func NewDatabaseInit(name string, filePath string) (Database, error) {
	db, err := NewDatabase(name)
	if err != nil {
		return nil, err
	}

	if err := db.Init(filePath); err != nil {
		return nil, err
	}

	return db, nil
}
