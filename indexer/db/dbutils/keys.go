package dbutils

import (
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
)

const numberKeySize = 8

// All keys start with big endian numbers so byte order equals chain order.

func PageKey(page statesync.PageRecord) []byte {
	return join(indexer.BlockNumberToKey(page.BlockNumber), page.PageHash[:])
}

func PageByHashKey(page statesync.PageRecord) []byte {
	return join(page.PageHash[:], indexer.BlockNumberToKey(page.BlockNumber))
}

// PageKeyFromHashKey converts a key of the page hash index into the key of the page
func PageKeyFromHashKey(key []byte) []byte {
	return join(key[indexer.HashSize:], key[:indexer.HashSize])
}

// PageByHashKeyFromPageKey converts a key of the page into the key of the page hash index
func PageByHashKeyFromPageKey(key []byte) []byte {
	return join(key[numberKeySize:], key[:numberKeySize])
}

func PageMappingKey(mapping statesync.PageMappingRecord) []byte {
	return join(
		indexer.BlockNumberToKey(mapping.BlockNumber),
		mapping.FactHash[:],
		indexer.BlockNumberToKey(mapping.PageIndex))
}

func PageMappingByFactKey(mapping statesync.PageMappingRecord) []byte {
	return join(
		mapping.FactHash[:],
		indexer.BlockNumberToKey(mapping.BlockNumber),
		indexer.BlockNumberToKey(mapping.PageIndex))
}

// PageMappingKeyFromFactKey converts a key of the fact index into the key of the mapping
func PageMappingKeyFromFactKey(key []byte) []byte {
	return join(
		key[indexer.HashSize:indexer.HashSize+numberKeySize],
		key[:indexer.HashSize],
		key[indexer.HashSize+numberKeySize:])
}

// PageMappingByFactKeyFromMappingKey converts a key of the mapping into the key of the fact index
func PageMappingByFactKeyFromMappingKey(key []byte) []byte {
	return join(
		key[numberKeySize:numberKeySize+indexer.HashSize],
		key[:numberKeySize],
		key[numberKeySize+indexer.HashSize:])
}

func StateTransitionKey(transition statesync.StateTransitionRecord) []byte {
	return join(indexer.BlockNumberToKey(transition.BlockNumber), indexer.BlockNumberToKey(transition.LogIndex))
}

func StateUpdateKey(id uint64) []byte {
	return indexer.BlockNumberToKey(id)
}

// BlockNumberOfKey returns the block number every block ordered key starts with
func BlockNumberOfKey(key []byte) uint64 {
	return indexer.KeyToBlockNumber(key[:numberKeySize])
}

func join(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}

	result := make([]byte, 0, size)
	for _, p := range parts {
		result = append(result, p...)
	}

	return result
}
