package indexer

import (
	"encoding/binary"
)

// BlockNumberToKey converts a block number to a byte array of size 8.
// Big endian keeps keys ordered by number.
func BlockNumberToKey(blockNumber uint64) []byte {
	bytes := make([]byte, 8)

	binary.BigEndian.PutUint64(bytes, blockNumber)

	return bytes
}

// KeyToBlockNumber is the inverse of BlockNumberToKey
func KeyToBlockNumber(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}

	return binary.BigEndian.Uint64(key[:8])
}
