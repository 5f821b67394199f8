package indexer

import "context"

type Closable interface {
	Close() error
}

type Service interface {
	Closable
	Start(ctx context.Context) error
}

// ChainClient is the view of the remote chain needed to download blocks.
// GetBlock and GetBlockByHash return a nil block when the node does not know it.
type ChainClient interface {
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (*ChainBlock, error)
	GetBlockByHash(ctx context.Context, hash Hash) (*ChainBlock, error)
	SubscribeNewBlocks(ctx context.Context, handler func(number uint64)) (unsubscribe func(), err error)
}

// DataSyncService decodes and applies the data of a block range.
// DiscardAfter removes everything that was applied for blocks after blockNumber.
type DataSyncService interface {
	Sync(ctx context.Context, blocks BlockRange) error
	DiscardAfter(ctx context.Context, blockNumber uint64) error
}

// BlockEventSource publishes the validated chain
type BlockEventSource interface {
	GetKnownBlocks(from uint64) ([]Block, error)
	OnNewBlock(handler func(block Block)) (unsubscribe func())
	OnReorg(handler func(blocks ContinuousBlocks)) (unsubscribe func())
}
