package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockNumberToKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, []byte{0, 0, 0, 0, 0, 0xc6, 0x5d, 0x40}, BlockNumberToKey(13_000_000))
	require.Equal(t, uint64(13_000_000), KeyToBlockNumber(BlockNumberToKey(13_000_000)))
	require.Equal(t, uint64(0), KeyToBlockNumber([]byte{1, 2}))

	require.Less(t, string(BlockNumberToKey(255)), string(BlockNumberToKey(256)))
}
