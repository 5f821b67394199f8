package indexer

import "fmt"

const DefaultMaxBatchSize = 6000

type SyncState struct {
	IsProcessing bool
	Remaining    BlockRange
	DiscardAfter *uint64
}

// SyncAction is one of the Action* types
type SyncAction interface {
	fmt.Stringer
	syncAction()
}

type ActionInitialized struct {
	LastSynced  uint64
	KnownBlocks ContinuousBlocks
}

type ActionNewBlockFound struct {
	Block Block
}

type ActionReorgOccurred struct {
	Blocks ContinuousBlocks
}

type ActionSyncSucceeded struct{}

type ActionSyncFailed struct {
	Blocks BlockRange
}

type ActionDiscardAfterSucceeded struct {
	BlockNumber uint64
}

type ActionDiscardAfterFailed struct{}

func (ActionInitialized) syncAction()           {}
func (ActionNewBlockFound) syncAction()         {}
func (ActionReorgOccurred) syncAction()         {}
func (ActionSyncSucceeded) syncAction()         {}
func (ActionSyncFailed) syncAction()            {}
func (ActionDiscardAfterSucceeded) syncAction() {}
func (ActionDiscardAfterFailed) syncAction()    {}

func (a ActionInitialized) String() string {
	return fmt.Sprintf("initialized (last synced = %d, known = %d)", a.LastSynced, a.KnownBlocks.Len())
}

func (a ActionNewBlockFound) String() string {
	return fmt.Sprintf("new block found (%s)", a.Block)
}

func (a ActionReorgOccurred) String() string {
	first, _ := a.Blocks.First()

	return fmt.Sprintf("reorg occurred (from = %d, count = %d)", first.Number, a.Blocks.Len())
}

func (ActionSyncSucceeded) String() string {
	return "sync succeeded"
}

func (a ActionSyncFailed) String() string {
	return fmt.Sprintf("sync failed %s", a.Blocks)
}

func (a ActionDiscardAfterSucceeded) String() string {
	return fmt.Sprintf("discard after %d succeeded", a.BlockNumber)
}

func (ActionDiscardAfterFailed) String() string {
	return "discard after failed"
}

// SyncEffect is nil, *SyncEffectSync or *SyncEffectDiscardAfter
type SyncEffect interface {
	syncEffect()
}

type SyncEffectSync struct {
	Blocks BlockRange
}

type SyncEffectDiscardAfter struct {
	BlockNumber uint64
}

func (*SyncEffectSync) syncEffect()         {}
func (*SyncEffectDiscardAfter) syncEffect() {}

// ReduceSyncState returns the next state and the effect that has to be executed, if any
func ReduceSyncState(state SyncState, action SyncAction, maxBatchSize uint64) (SyncState, SyncEffect) {
	switch a := action.(type) {
	case ActionInitialized:
		known := a.KnownBlocks.filter(func(b Block) bool { return b.Number > a.LastSynced })
		remaining := EmptyBlockRange(a.LastSynced + 1)

		if last, ok := known.Last(); ok {
			remaining = BlockRange{known: known, start: a.LastSynced + 1, end: last.Number + 1}
		}

		state.Remaining = remaining
		state.DiscardAfter = nil
	case ActionNewBlockFound:
		state.Remaining = state.Remaining.Merge(ContinuousBlocks{blocks: []Block{a.Block}})
	case ActionReorgOccurred:
		first, ok := a.Blocks.First()
		if !ok {
			return state, nil
		}

		if first.Number > 0 && first.Number <= state.Remaining.Start() {
			discardAfter := first.Number - 1

			if state.DiscardAfter == nil {
				state.DiscardAfter = &discardAfter
			} else {
				discardAfter = min(*state.DiscardAfter, discardAfter)
				state.DiscardAfter = &discardAfter
			}
		}

		state.Remaining = state.Remaining.Merge(a.Blocks)
	case ActionSyncSucceeded:
		state.IsProcessing = false
	case ActionSyncFailed:
		state.IsProcessing = false
		state.Remaining = state.Remaining.PrependEarlier(a.Blocks)
	case ActionDiscardAfterSucceeded:
		state.IsProcessing = false

		if state.DiscardAfter != nil && *state.DiscardAfter == a.BlockNumber {
			state.DiscardAfter = nil
		}
	case ActionDiscardAfterFailed:
		state.IsProcessing = false
	default:
		return state, nil
	}

	return process(state, maxBatchSize)
}

func process(state SyncState, maxBatchSize uint64) (SyncState, SyncEffect) {
	if state.IsProcessing {
		return state, nil
	}

	if state.DiscardAfter != nil {
		state.IsProcessing = true

		return state, &SyncEffectDiscardAfter{BlockNumber: *state.DiscardAfter}
	}

	batch, remaining := state.Remaining.Take(maxBatchSize)
	if batch.IsEmpty() {
		return state, nil
	}

	state.IsProcessing = true
	state.Remaining = remaining

	return state, &SyncEffectSync{Blocks: batch}
}
