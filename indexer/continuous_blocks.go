package indexer

import (
	"errors"
	"fmt"
)

var ErrNotContinuous = errors.New("blocks are not continuous")

// ContinuousBlocks is an ordered list of blocks whose numbers increase by exactly one.
// Values are immutable, every operation returns a new value.
type ContinuousBlocks struct {
	blocks []Block
}

func NewContinuousBlocks(blocks []Block) (ContinuousBlocks, error) {
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Number != blocks[i-1].Number+1 {
			return ContinuousBlocks{}, fmt.Errorf(
				"%w: block at index %d has number %d, expected %d",
				ErrNotContinuous, i, blocks[i].Number, blocks[i-1].Number+1)
		}
	}

	return ContinuousBlocks{blocks: append([]Block(nil), blocks...)}, nil
}

func (cb ContinuousBlocks) Len() int {
	return len(cb.blocks)
}

func (cb ContinuousBlocks) IsEmpty() bool {
	return len(cb.blocks) == 0
}

func (cb ContinuousBlocks) First() (Block, bool) {
	if len(cb.blocks) == 0 {
		return Block{}, false
	}

	return cb.blocks[0], true
}

func (cb ContinuousBlocks) Last() (Block, bool) {
	if len(cb.blocks) == 0 {
		return Block{}, false
	}

	return cb.blocks[len(cb.blocks)-1], true
}

// Get returns the block with the given number if it is part of the sequence
func (cb ContinuousBlocks) Get(number uint64) (Block, bool) {
	if len(cb.blocks) == 0 || number < cb.blocks[0].Number || number-cb.blocks[0].Number >= uint64(len(cb.blocks)) {
		return Block{}, false
	}

	return cb.blocks[number-cb.blocks[0].Number], true
}

// Blocks returns a copy of the underlying blocks
func (cb ContinuousBlocks) Blocks() []Block {
	return append([]Block(nil), cb.blocks...)
}

// PrependEarlier puts the blocks that are strictly earlier than the first block in front
func (cb ContinuousBlocks) PrependEarlier(blocks []Block) (ContinuousBlocks, error) {
	first, ok := cb.First()
	if !ok {
		return NewContinuousBlocks(blocks)
	}

	result := make([]Block, 0, len(blocks)+len(cb.blocks))

	for _, block := range blocks {
		if block.Number < first.Number {
			result = append(result, block)
		}
	}

	return NewContinuousBlocks(append(result, cb.blocks...))
}

// ReplaceTail drops every block at or after the first block of tail and appends tail
func (cb ContinuousBlocks) ReplaceTail(tail []Block) (ContinuousBlocks, error) {
	if len(tail) == 0 {
		return cb, nil
	}

	result := make([]Block, 0, len(cb.blocks)+len(tail))

	for _, block := range cb.blocks {
		if block.Number < tail[0].Number {
			result = append(result, block)
		}
	}

	return NewContinuousBlocks(append(result, tail...))
}

func (cb ContinuousBlocks) Concat(blocks []Block) (ContinuousBlocks, error) {
	return NewContinuousBlocks(append(cb.Blocks(), blocks...))
}

// Take splits the sequence into the first n blocks and the remainder
func (cb ContinuousBlocks) Take(n int) (ContinuousBlocks, ContinuousBlocks) {
	n = max(0, min(n, len(cb.blocks)))

	return ContinuousBlocks{blocks: cb.blocks[:n:n]}, ContinuousBlocks{blocks: cb.blocks[n:]}
}

// filter keeps the blocks for which fn is true. The result of a filter by a number bound stays continuous.
func (cb ContinuousBlocks) filter(fn func(Block) bool) ContinuousBlocks {
	result := make([]Block, 0, len(cb.blocks))

	for _, block := range cb.blocks {
		if fn(block) {
			result = append(result, block)
		}
	}

	return ContinuousBlocks{blocks: result}
}
