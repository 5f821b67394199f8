package statesync

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/Ethernal-Tech/starkex-infrastructure/ethereum"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

type ChainReaderMock struct {
	mock.Mock
	GetLogsInRangeFn      func(blocks indexer.BlockRange, filter ethereum.LogFilter) ([]types.Log, error)
	GetTransactionInputFn func(hash ethcommon.Hash) ([]byte, error)
}

var _ ChainReader = (*ChainReaderMock)(nil)

func (m *ChainReaderMock) GetLogsInRange(
	ctx context.Context, blocks indexer.BlockRange, filter ethereum.LogFilter,
) ([]types.Log, error) {
	if m.GetLogsInRangeFn != nil {
		return m.GetLogsInRangeFn(blocks, filter)
	}

	args := m.Called(blocks, filter)

	logs, _ := args.Get(0).([]types.Log)

	return logs, args.Error(1)
}

func (m *ChainReaderMock) GetTransactionInput(ctx context.Context, hash ethcommon.Hash) ([]byte, error) {
	if m.GetTransactionInputFn != nil {
		return m.GetTransactionInputFn(hash)
	}

	args := m.Called(hash)

	input, _ := args.Get(0).([]byte)

	return input, args.Error(1)
}

func (m *ChainReaderMock) GetBlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	args := m.Called(number)

	return args.Get(0).(uint64), args.Error(1) //nolint:forcetypeassert
}

type memoryStateDatabase struct {
	lock        sync.Mutex
	pages       []PageRecord
	mappings    []PageMappingRecord
	transitions []StateTransitionRecord
	updates     []StateUpdateRecord
}

var _ Database = (*memoryStateDatabase)(nil)

func (db *memoryStateDatabase) OpenStateTx() DbTransactionWriter {
	return &memoryStateTxWriter{db: db}
}

func (db *memoryStateDatabase) GetPage(pageHash indexer.Hash) (*PageRecord, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	var result *PageRecord

	for _, page := range db.pages {
		if page.PageHash == pageHash && (result == nil || page.BlockNumber >= result.BlockNumber) {
			result = &page
		}
	}

	return result, nil
}

func (db *memoryStateDatabase) GetPageMappings(factHash indexer.Hash) ([]PageMappingRecord, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	var result []PageMappingRecord

	for _, mapping := range db.mappings {
		if mapping.FactHash == factHash {
			result = append(result, mapping)
		}
	}

	slices.SortStableFunc(result, func(a, b PageMappingRecord) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}

		return cmp.Compare(a.PageIndex, b.PageIndex)
	})

	return result, nil
}

func (db *memoryStateDatabase) GetStateTransitions(from, to uint64) ([]StateTransitionRecord, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	var result []StateTransitionRecord

	for _, transition := range db.transitions {
		if transition.BlockNumber >= from && transition.BlockNumber <= to {
			result = append(result, transition)
		}
	}

	return result, nil
}

func (db *memoryStateDatabase) GetStateUpdate(id uint64) (*StateUpdateRecord, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	for _, update := range db.updates {
		if update.ID == id {
			return &update, nil
		}
	}

	return nil, nil
}

func (db *memoryStateDatabase) GetLastStateUpdate() (*StateUpdateRecord, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	if len(db.updates) == 0 {
		return nil, nil
	}

	last := db.updates[len(db.updates)-1]

	return &last, nil
}

type memoryStateTxWriter struct {
	db         *memoryStateDatabase
	operations []func(db *memoryStateDatabase)
}

func (w *memoryStateTxWriter) AddPages(pages []PageRecord) DbTransactionWriter {
	w.operations = append(w.operations, func(db *memoryStateDatabase) {
		db.pages = append(db.pages, pages...)
	})

	return w
}

func (w *memoryStateTxWriter) AddPageMappings(mappings []PageMappingRecord) DbTransactionWriter {
	w.operations = append(w.operations, func(db *memoryStateDatabase) {
		db.mappings = append(db.mappings, mappings...)
	})

	return w
}

func (w *memoryStateTxWriter) AddStateTransitions(transitions []StateTransitionRecord) DbTransactionWriter {
	w.operations = append(w.operations, func(db *memoryStateDatabase) {
		db.transitions = append(db.transitions, transitions...)
	})

	return w
}

func (w *memoryStateTxWriter) AddStateUpdates(updates []StateUpdateRecord) DbTransactionWriter {
	w.operations = append(w.operations, func(db *memoryStateDatabase) {
		db.updates = append(db.updates, updates...)
	})

	return w
}

func (w *memoryStateTxWriter) DeleteStateDataAfter(blockNumber uint64) DbTransactionWriter {
	w.operations = append(w.operations, func(db *memoryStateDatabase) {
		db.pages = slices.DeleteFunc(db.pages, func(r PageRecord) bool { return r.BlockNumber > blockNumber })
		db.mappings = slices.DeleteFunc(db.mappings, func(r PageMappingRecord) bool { return r.BlockNumber > blockNumber })
		db.transitions = slices.DeleteFunc(db.transitions, func(r StateTransitionRecord) bool {
			return r.BlockNumber > blockNumber
		})
		db.updates = slices.DeleteFunc(db.updates, func(r StateUpdateRecord) bool { return r.BlockNumber > blockNumber })
	})

	return w
}

func (w *memoryStateTxWriter) Execute() error {
	w.db.lock.Lock()
	defer w.db.lock.Unlock()

	for _, operation := range w.operations {
		operation(w.db)
	}

	w.operations = nil

	return nil
}
