package indexer

import (
	"fmt"
)

// BlockRange is the window of block numbers [Start, End) together with the hashes known for it.
// Known blocks, when present, are a suffix of the window. Numbers before the first known block
// carry no hash.
type BlockRange struct {
	known ContinuousBlocks
	start uint64
	end   uint64
}

func NewBlockRange(known ContinuousBlocks, start, end uint64) (BlockRange, error) {
	if start > end {
		return BlockRange{}, fmt.Errorf("invalid block range [%d, %d)", start, end)
	}

	first, ok := known.First()
	if ok {
		last, _ := known.Last()

		if first.Number < start || last.Number+1 != end {
			return BlockRange{}, fmt.Errorf(
				"known blocks [%d, %d] are not a suffix of block range [%d, %d)", first.Number, last.Number, start, end)
		}
	}

	return BlockRange{known: known, start: start, end: end}, nil
}

// NewBlockRangeFromBlocks returns the range that exactly spans blocks
func NewBlockRangeFromBlocks(blocks []Block) (BlockRange, error) {
	known, err := NewContinuousBlocks(blocks)
	if err != nil {
		return BlockRange{}, err
	}

	first, ok := known.First()
	if !ok {
		return BlockRange{}, nil
	}

	return NewBlockRange(known, first.Number, first.Number+uint64(known.Len()))
}

// EmptyBlockRange returns an empty range positioned at start
func EmptyBlockRange(start uint64) BlockRange {
	return BlockRange{start: start, end: start}
}

func (r BlockRange) Start() uint64 {
	return r.start
}

func (r BlockRange) End() uint64 {
	return r.end
}

func (r BlockRange) Length() uint64 {
	return r.end - r.start
}

func (r BlockRange) IsEmpty() bool {
	return r.start >= r.end
}

func (r BlockRange) Known() ContinuousBlocks {
	return r.known
}

// Has returns true if the block is inside the window and does not contradict a known hash
func (r BlockRange) Has(block Block) bool {
	if block.Number < r.start || block.Number >= r.end {
		return false
	}

	known, ok := r.known.Get(block.Number)

	return !ok || known.Hash == block.Hash
}

func (r BlockRange) HasAll(blocks []Block) bool {
	for _, block := range blocks {
		if !r.Has(block) {
			return false
		}
	}

	return true
}

// Merge applies newly observed blocks on top of the range. Known blocks at or after the first
// new block are replaced, the ones before it are kept only if they stay continuous.
func (r BlockRange) Merge(blocks ContinuousBlocks) BlockRange {
	first, ok := blocks.First()
	if !ok {
		return r
	}

	last, _ := blocks.Last()

	kept := r.known.filter(func(b Block) bool { return b.Number < first.Number })
	if keptLast, ok := kept.Last(); ok && keptLast.Number+1 != first.Number {
		kept = ContinuousBlocks{}
	}

	return BlockRange{
		known: ContinuousBlocks{blocks: append(kept.Blocks(), blocks.blocks...)},
		start: min(r.start, first.Number),
		end:   last.Number + 1,
	}
}

// PrependEarlier puts the part of other that lies before the range in front of it
func (r BlockRange) PrependEarlier(other BlockRange) BlockRange {
	earlier := other.known.filter(func(b Block) bool { return b.Number < r.start })
	earlierLast, hasEarlier := earlier.Last()

	known := r.known

	switch first, ok := r.known.First(); {
	case !hasEarlier:
	case ok && earlierLast.Number+1 == first.Number:
		known = ContinuousBlocks{blocks: append(earlier.Blocks(), r.known.blocks...)}
	case r.IsEmpty() && earlierLast.Number+1 == r.start:
		known = earlier
	}

	return BlockRange{
		known: known,
		start: min(r.start, other.start),
		end:   r.end,
	}
}

// Take splits the range into the first n numbers and the remainder
func (r BlockRange) Take(n uint64) (BlockRange, BlockRange) {
	batchEnd := r.end
	if n < r.Length() {
		batchEnd = r.start + n
	}

	return BlockRange{
			known: r.known.filter(func(b Block) bool { return b.Number < batchEnd }),
			start: r.start,
			end:   batchEnd,
		}, BlockRange{
			known: r.known.filter(func(b Block) bool { return b.Number >= batchEnd }),
			start: batchEnd,
			end:   r.end,
		}
}

// SplitByKnownHashes returns the number-only prefix [from, to) and the known blocks
func (r BlockRange) SplitByKnownHashes() (from, to uint64, known []Block) {
	to = r.end

	if first, ok := r.known.First(); ok {
		to = first.Number
	}

	return r.start, to, r.known.Blocks()
}

func (r BlockRange) String() string {
	return fmt.Sprintf("[%d, %d) with %d known", r.start, r.end, r.known.Len())
}
