package statesync

import "github.com/Ethernal-Tech/starkex-infrastructure/indexer"

type DbTransactionWriter interface {
	AddPages(pages []PageRecord) DbTransactionWriter
	AddPageMappings(mappings []PageMappingRecord) DbTransactionWriter
	AddStateTransitions(transitions []StateTransitionRecord) DbTransactionWriter
	AddStateUpdates(updates []StateUpdateRecord) DbTransactionWriter
	// DeleteStateDataAfter removes every record of a block after blockNumber
	DeleteStateDataAfter(blockNumber uint64) DbTransactionWriter
	Execute() error
}

type Database interface {
	OpenStateTx() DbTransactionWriter
	// GetPage returns the most recently registered page with the hash
	GetPage(pageHash indexer.Hash) (*PageRecord, error)
	// GetPageMappings returns all mappings of the fact ordered by block number and page index
	GetPageMappings(factHash indexer.Hash) ([]PageMappingRecord, error)
	// GetStateTransitions returns the transitions of blocks [from, to] in chain order
	GetStateTransitions(from, to uint64) ([]StateTransitionRecord, error)
	GetStateUpdate(id uint64) (*StateUpdateRecord, error)
	GetLastStateUpdate() (*StateUpdateRecord, error)
}
