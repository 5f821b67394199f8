package indexer

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/stretchr/testify/mock"
)

func makeHash(number uint64, fork byte) Hash {
	var h Hash

	binary.BigEndian.PutUint64(h[:8], number)
	h[HashSize-1] = fork + 1

	return h
}

func makeBlocks(from, to uint64, fork byte) []Block {
	blocks := make([]Block, 0, to-from+1)

	for number := from; number <= to; number++ {
		blocks = append(blocks, Block{Number: number, Hash: makeHash(number, fork)})
	}

	return blocks
}

// testChain generates blocks on demand. Blocks at or after forkAt belong to fork 1.
type testChain struct {
	lock   sync.Mutex
	head   uint64
	forkAt uint64
	onNew  func(number uint64)
}

func (c *testChain) hashFor(number uint64) Hash {
	if c.forkAt > 0 && number >= c.forkAt {
		return makeHash(number, 1)
	}

	return makeHash(number, 0)
}

func (c *testChain) block(number uint64) *ChainBlock {
	block := &ChainBlock{Number: number, Hash: c.hashFor(number)}
	if number > 0 {
		block.ParentHash = c.hashFor(number - 1)
	}

	return block
}

func (c *testChain) newBlock(number uint64) {
	c.lock.Lock()
	c.head = number
	onNew := c.onNew
	c.lock.Unlock()

	if onNew != nil {
		onNew(number)
	}
}

type ChainClientMock struct {
	mock.Mock
	chain *testChain
}

var _ ChainClient = (*ChainClientMock)(nil)

func newChainClientMock(chain *testChain) *ChainClientMock {
	m := &ChainClientMock{chain: chain}

	m.On("GetBlockNumber").Return(nil)
	m.On("GetBlock", mock.Anything).Return(nil)
	m.On("GetBlockByHash", mock.Anything).Return(nil)
	m.On("SubscribeNewBlocks").Return(nil)

	return m
}

// GetBlockNumber implements ChainClient.
func (m *ChainClientMock) GetBlockNumber(ctx context.Context) (uint64, error) {
	if err := m.Called().Error(0); err != nil {
		return 0, err
	}

	m.chain.lock.Lock()
	defer m.chain.lock.Unlock()

	return m.chain.head, nil
}

// GetBlock implements ChainClient.
func (m *ChainClientMock) GetBlock(ctx context.Context, number uint64) (*ChainBlock, error) {
	if err := m.Called(number).Error(0); err != nil {
		return nil, err
	}

	m.chain.lock.Lock()
	defer m.chain.lock.Unlock()

	if number > m.chain.head {
		return nil, nil
	}

	return m.chain.block(number), nil
}

// GetBlockByHash implements ChainClient.
func (m *ChainClientMock) GetBlockByHash(ctx context.Context, hash Hash) (*ChainBlock, error) {
	if err := m.Called(hash).Error(0); err != nil {
		return nil, err
	}

	m.chain.lock.Lock()
	defer m.chain.lock.Unlock()

	number := binary.BigEndian.Uint64(hash[:8])
	if number > m.chain.head || m.chain.hashFor(number) != hash {
		return nil, nil
	}

	return m.chain.block(number), nil
}

// SubscribeNewBlocks implements ChainClient.
func (m *ChainClientMock) SubscribeNewBlocks(ctx context.Context, handler func(number uint64)) (func(), error) {
	if err := m.Called().Error(0); err != nil {
		return nil, err
	}

	m.chain.lock.Lock()
	m.chain.onNew = handler
	m.chain.lock.Unlock()

	return func() {
		m.chain.lock.Lock()
		m.chain.onNew = nil
		m.chain.lock.Unlock()
	}, nil
}

type txRecord struct {
	deleteAfter *uint64
	added       []Block
	status      *SyncStatus
}

type memoryDatabase struct {
	lock     sync.Mutex
	blocks   map[uint64]Block
	status   *SyncStatus
	executed []txRecord
}

var _ Database = (*memoryDatabase)(nil)

func newMemoryDatabase(blocks ...Block) *memoryDatabase {
	db := &memoryDatabase{blocks: map[uint64]Block{}}

	for _, block := range blocks {
		db.blocks[block.Number] = block
	}

	return db
}

func (db *memoryDatabase) Init(string) error { return nil }

func (db *memoryDatabase) Close() error { return nil }

func (db *memoryDatabase) OpenTx() DbTransactionWriter {
	return &memoryTxWriter{db: db}
}

func (db *memoryDatabase) GetLastBlock() (*Block, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	var last *Block

	for _, block := range db.blocks {
		if last == nil || block.Number > last.Number {
			last = &block
		}
	}

	return last, nil
}

func (db *memoryDatabase) GetBlock(blockNumber uint64) (*Block, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	block, exists := db.blocks[blockNumber]
	if !exists {
		return nil, nil
	}

	return &block, nil
}

func (db *memoryDatabase) GetBlocksInRange(from, to uint64) ([]Block, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	var result []Block

	for number := from; number <= to; number++ {
		if block, exists := db.blocks[number]; exists {
			result = append(result, block)
		}
	}

	return result, nil
}

func (db *memoryDatabase) GetSyncStatus() (*SyncStatus, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	return db.status, nil
}

func (db *memoryDatabase) SetSyncStatus(status *SyncStatus) error {
	return db.OpenTx().SetSyncStatus(status).Execute()
}

func (db *memoryDatabase) records() []txRecord {
	db.lock.Lock()
	defer db.lock.Unlock()

	return append([]txRecord(nil), db.executed...)
}

type memoryTxWriter struct {
	db     *memoryDatabase
	record txRecord
}

func (w *memoryTxWriter) AddBlocks(blocks []Block) DbTransactionWriter {
	w.record.added = append(w.record.added, blocks...)

	return w
}

func (w *memoryTxWriter) DeleteAllBlocksAfter(blockNumber uint64) DbTransactionWriter {
	w.record.deleteAfter = &blockNumber

	return w
}

func (w *memoryTxWriter) SetSyncStatus(status *SyncStatus) DbTransactionWriter {
	w.record.status = status

	return w
}

func (w *memoryTxWriter) Execute() error {
	w.db.lock.Lock()
	defer w.db.lock.Unlock()

	if w.record.deleteAfter != nil {
		for number := range w.db.blocks {
			if number > *w.record.deleteAfter {
				delete(w.db.blocks, number)
			}
		}
	}

	for _, block := range w.record.added {
		w.db.blocks[block.Number] = block
	}

	if w.record.status != nil {
		w.db.status = w.record.status
	}

	w.db.executed = append(w.db.executed, w.record)

	return nil
}

type DataSyncServiceMock struct {
	mock.Mock
	SyncFn         func(blocks BlockRange) error
	DiscardAfterFn func(blockNumber uint64) error
}

var _ DataSyncService = (*DataSyncServiceMock)(nil)

// Sync implements DataSyncService.
func (m *DataSyncServiceMock) Sync(ctx context.Context, blocks BlockRange) error {
	args := m.Called(blocks)

	if m.SyncFn != nil {
		return m.SyncFn(blocks)
	}

	return args.Error(0)
}

// DiscardAfter implements DataSyncService.
func (m *DataSyncServiceMock) DiscardAfter(ctx context.Context, blockNumber uint64) error {
	args := m.Called(blockNumber)

	if m.DiscardAfterFn != nil {
		return m.DiscardAfterFn(blockNumber)
	}

	return args.Error(0)
}

type blockEventSourceMock struct {
	known    []Block
	newBlock listeners[Block]
	reorg    listeners[ContinuousBlocks]
}

var _ BlockEventSource = (*blockEventSourceMock)(nil)

func (m *blockEventSourceMock) GetKnownBlocks(from uint64) ([]Block, error) {
	var result []Block

	for _, block := range m.known {
		if block.Number >= from {
			result = append(result, block)
		}
	}

	return result, nil
}

func (m *blockEventSourceMock) OnNewBlock(handler func(block Block)) func() {
	return m.newBlock.add(handler)
}

func (m *blockEventSourceMock) OnReorg(handler func(blocks ContinuousBlocks)) func() {
	return m.reorg.add(handler)
}
