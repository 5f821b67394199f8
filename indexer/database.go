package indexer

type DbTransactionWriter interface {
	AddBlocks(blocks []Block) DbTransactionWriter
	DeleteAllBlocksAfter(blockNumber uint64) DbTransactionWriter
	SetSyncStatus(status *SyncStatus) DbTransactionWriter
	Execute() error
}

type BlockStore interface {
	OpenTx() DbTransactionWriter
	GetLastBlock() (*Block, error)
	GetBlock(blockNumber uint64) (*Block, error)
	// GetBlocksInRange returns the stored blocks with numbers in [from, to], ordered by number
	GetBlocksInRange(from, to uint64) ([]Block, error)
}

type SyncStatus struct {
	LastSynced uint64 `json:"lastSynced"`
}

type SyncStatusStore interface {
	GetSyncStatus() (*SyncStatus, error)
	SetSyncStatus(status *SyncStatus) error
}

type Database interface {
	BlockStore
	SyncStatusStore
	Init(filePath string) error
	Close() error
}
