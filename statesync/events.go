package statesync

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	registryABIJSON = `[
	{"type":"event","name":"LogMemoryPageFactContinuous","anonymous":false,"inputs":[
		{"name":"factHash","type":"bytes32","indexed":false},
		{"name":"memoryHash","type":"uint256","indexed":false},
		{"name":"prod","type":"uint256","indexed":false}]},
	{"type":"function","name":"registerContinuousMemoryPage","stateMutability":"nonpayable","inputs":[
		{"name":"startAddr","type":"uint256"},
		{"name":"values","type":"uint256[]"},
		{"name":"z","type":"uint256"},
		{"name":"alpha","type":"uint256"},
		{"name":"prime","type":"uint256"}],"outputs":[
		{"name":"factHash","type":"bytes32"},
		{"name":"memoryHash","type":"uint256"},
		{"name":"prod","type":"uint256"}]}]`

	verifierABIJSON = `[
	{"type":"event","name":"LogMemoryPagesHashes","anonymous":false,"inputs":[
		{"name":"factHash","type":"bytes32","indexed":false},
		{"name":"pagesHashes","type":"bytes32[]","indexed":false}]}]`

	perpetualABIJSON = `[
	{"type":"event","name":"LogStateTransitionFact","anonymous":false,"inputs":[
		{"name":"stateTransitionFact","type":"bytes32","indexed":false}]}]`

	eventMemoryPageFactContinuous = "LogMemoryPageFactContinuous"
	eventMemoryPagesHashes        = "LogMemoryPagesHashes"
	eventStateTransitionFact      = "LogStateTransitionFact"
	methodRegisterContinuousPage  = "registerContinuousMemoryPage"
)

var (
	registryABI  = mustParseABI(registryABIJSON)
	verifierABI  = mustParseABI(verifierABIJSON)
	perpetualABI = mustParseABI(perpetualABIJSON)

	topicMemoryPageFactContinuous = registryABI.Events[eventMemoryPageFactContinuous].ID
	topicMemoryPagesHashes        = verifierABI.Events[eventMemoryPagesHashes].ID
	topicStateTransitionFact      = perpetualABI.Events[eventStateTransitionFact].ID
)

type memoryPageFactEvent struct {
	BlockNumber uint64
	TxHash      ethcommon.Hash
	MemoryHash  indexer.Hash
}

type memoryPagesHashesEvent struct {
	BlockNumber uint64
	FactHash    indexer.Hash
	PagesHashes []indexer.Hash
}

type stateTransitionFactEvent struct {
	BlockNumber uint64
	LogIndex    uint64
	FactHash    indexer.Hash
}

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid abi: %v", err))
	}

	return parsed
}

func parseMemoryPageFactEvent(log types.Log) (memoryPageFactEvent, error) {
	values, err := registryABI.Events[eventMemoryPageFactContinuous].Inputs.Unpack(log.Data)
	if err != nil {
		return memoryPageFactEvent{}, fmt.Errorf("failed to unpack %s: %w", eventMemoryPageFactContinuous, err)
	}

	memoryHash, ok := values[1].(*big.Int)
	if !ok {
		return memoryPageFactEvent{}, fmt.Errorf("unexpected memory hash type %T", values[1])
	}

	return memoryPageFactEvent{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		MemoryHash:  uint256ToHash(memoryHash),
	}, nil
}

func parseMemoryPagesHashesEvent(log types.Log) (memoryPagesHashesEvent, error) {
	values, err := verifierABI.Events[eventMemoryPagesHashes].Inputs.Unpack(log.Data)
	if err != nil {
		return memoryPagesHashesEvent{}, fmt.Errorf("failed to unpack %s: %w", eventMemoryPagesHashes, err)
	}

	factHash, ok := values[0].([32]byte)
	if !ok {
		return memoryPagesHashesEvent{}, fmt.Errorf("unexpected fact hash type %T", values[0])
	}

	pagesHashes, ok := values[1].([][32]byte)
	if !ok {
		return memoryPagesHashesEvent{}, fmt.Errorf("unexpected pages hashes type %T", values[1])
	}

	event := memoryPagesHashesEvent{
		BlockNumber: log.BlockNumber,
		FactHash:    factHash,
		PagesHashes: make([]indexer.Hash, len(pagesHashes)),
	}

	for i, hash := range pagesHashes {
		event.PagesHashes[i] = hash
	}

	return event, nil
}

func parseStateTransitionFactEvent(log types.Log) (stateTransitionFactEvent, error) {
	values, err := perpetualABI.Events[eventStateTransitionFact].Inputs.Unpack(log.Data)
	if err != nil {
		return stateTransitionFactEvent{}, fmt.Errorf("failed to unpack %s: %w", eventStateTransitionFact, err)
	}

	factHash, ok := values[0].([32]byte)
	if !ok {
		return stateTransitionFactEvent{}, fmt.Errorf("unexpected fact hash type %T", values[0])
	}

	return stateTransitionFactEvent{
		BlockNumber: log.BlockNumber,
		LogIndex:    uint64(log.Index),
		FactHash:    factHash,
	}, nil
}

// unpackPageValues returns the values argument of registerContinuousMemoryPage calldata
func unpackPageValues(input []byte) ([]*big.Int, error) {
	method := registryABI.Methods[methodRegisterContinuousPage]

	if len(input) < 4 || !bytes.Equal(input[:4], method.ID) {
		return nil, fmt.Errorf("calldata is not a %s call", methodRegisterContinuousPage)
	}

	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", methodRegisterContinuousPage, err)
	}

	values, ok := args[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected values type %T", args[1])
	}

	return values, nil
}

func uint256ToHash(value *big.Int) (h indexer.Hash) {
	value.FillBytes(h[:])

	return h
}
