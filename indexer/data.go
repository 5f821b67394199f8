package indexer

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const HashSize = 32

type Hash [HashSize]byte

func NewHashFromHexString(value string) (Hash, error) {
	var h Hash

	bytes, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid hash %s: %w", value, err)
	}

	if len(bytes) != HashSize {
		return h, fmt.Errorf("invalid hash %s: expected %d bytes, got %d", value, HashSize, len(bytes))
	}

	copy(h[:], bytes)

	return h, nil
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) (err error) {
	*h, err = NewHashFromHexString(string(text))

	return err
}

// Block is a block number together with the hash that was observed for it
type Block struct {
	Number uint64 `json:"num"`
	Hash   Hash   `json:"hash"`
}

func (b Block) String() string {
	return fmt.Sprintf("number = %d, hash = %s", b.Number, b.Hash)
}

// ChainBlock is a block header as reported by the chain client
type ChainBlock struct {
	Number     uint64
	Hash       Hash
	ParentHash Hash
}

func (cb ChainBlock) ToBlock() Block {
	return Block{Number: cb.Number, Hash: cb.Hash}
}

// BlockDownloaderStatus is a snapshot of the downloader progress
type BlockDownloaderStatus struct {
	Started   bool   `json:"started"`
	LastKnown uint64 `json:"lastKnown"`
	QueueTip  uint64 `json:"queueTip"`
}
