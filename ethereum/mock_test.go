package ethereum

import (
	"context"
	"math/big"

	goethereum "github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

type rpcClientMock struct {
	mock.Mock
	FilterLogsFn       func(q goethereum.FilterQuery) ([]types.Log, error)
	SubscribeNewHeadFn func(ctx context.Context, ch chan<- *types.Header) (goethereum.Subscription, error)
}

var _ rpcClient = (*rpcClientMock)(nil)

func (m *rpcClientMock) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called()

	return args.Get(0).(*big.Int), args.Error(1) //nolint:forcetypeassert
}

func (m *rpcClientMock) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called()

	return args.Get(0).(uint64), args.Error(1) //nolint:forcetypeassert
}

func (m *rpcClientMock) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(number.Uint64())

	header, _ := args.Get(0).(*types.Header)

	return header, args.Error(1)
}

func (m *rpcClientMock) HeaderByHash(ctx context.Context, hash ethcommon.Hash) (*types.Header, error) {
	args := m.Called(hash)

	header, _ := args.Get(0).(*types.Header)

	return header, args.Error(1)
}

func (m *rpcClientMock) SubscribeNewHead(
	ctx context.Context, ch chan<- *types.Header,
) (goethereum.Subscription, error) {
	if m.SubscribeNewHeadFn != nil {
		return m.SubscribeNewHeadFn(ctx, ch)
	}

	args := m.Called()

	subscription, _ := args.Get(0).(goethereum.Subscription)

	return subscription, args.Error(1)
}

func (m *rpcClientMock) FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(q)

	if m.FilterLogsFn != nil {
		return m.FilterLogsFn(q)
	}

	logs, _ := args.Get(0).([]types.Log)

	return logs, args.Error(1)
}

func (m *rpcClientMock) TransactionByHash(
	ctx context.Context, hash ethcommon.Hash,
) (*types.Transaction, bool, error) {
	args := m.Called(hash)

	tx, _ := args.Get(0).(*types.Transaction)

	return tx, false, args.Error(1)
}

func (m *rpcClientMock) Close() {}

type subscriptionMock struct {
	errCh chan error
}

func (s *subscriptionMock) Unsubscribe() {}

func (s *subscriptionMock) Err() <-chan error {
	return s.errCh
}
