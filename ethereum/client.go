package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Ethernal-Tech/starkex-infrastructure/common"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	goethereum "github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = time.Second * 12
	logsBatchSize       = 10
)

var (
	ErrLogsOutsideRange = errors.New("logs are not from the block range")
	ErrChainIDMismatch  = errors.New("chain id mismatch")
)

type ClientConfig struct {
	JSONRPCURL string `json:"jsonRpcUrl"`
	ChainID    uint64 `json:"chainId"`
	// SafeBlockDistance is the number of most recent known blocks whose logs are queried by hash
	SafeBlockDistance uint64        `json:"safeBlockDistance"`
	RetryCount        int           `json:"retryCount"`
	RetryWaitTime     time.Duration `json:"retryWaitTime"`
	PollInterval      time.Duration `json:"pollInterval"`
}

// rpcClient is the part of *ethclient.Client the client depends on
type rpcClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	HeaderByHash(ctx context.Context, hash ethcommon.Hash) (*types.Header, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (goethereum.Subscription, error)
	FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash ethcommon.Hash) (*types.Transaction, bool, error)
	Close()
}

// LogFilter selects logs by emitting contracts and topics
type LogFilter struct {
	Addresses []ethcommon.Address
	Topics    [][]ethcommon.Hash
}

type Client struct {
	rpc    rpcClient
	config ClientConfig
	logger hclog.Logger
}

var _ indexer.ChainClient = (*Client)(nil)

func NewClient(ctx context.Context, config ClientConfig, logger hclog.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, config.JSONRPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.JSONRPCURL, err)
	}

	return newClient(rpc, config, logger), nil
}

func newClient(rpc rpcClient, config ClientConfig, logger hclog.Logger) *Client {
	if config.SafeBlockDistance == 0 {
		config.SafeBlockDistance = indexer.DefaultSafeBlockDistance
	}

	if config.PollInterval == 0 {
		config.PollInterval = defaultPollInterval
	}

	return &Client{
		rpc:    rpc,
		config: config,
		logger: logger,
	}
}

func (c *Client) Close() error {
	c.rpc.Close()

	return nil
}

// AssertChainID fails when the node serves another chain than the configured one. Zero skips the check.
func (c *Client) AssertChainID(ctx context.Context) error {
	if c.config.ChainID == 0 {
		return nil
	}

	chainID, err := executeWithRetry(ctx, c, func(ctx context.Context) (*big.Int, error) {
		return c.rpc.ChainID(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}

	if !chainID.IsUint64() || chainID.Uint64() != c.config.ChainID {
		return fmt.Errorf("%w: expected %d, got %s", ErrChainIDMismatch, c.config.ChainID, chainID)
	}

	return nil
}

func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	return executeWithRetry(ctx, c, c.rpc.BlockNumber)
}

func (c *Client) GetBlock(ctx context.Context, number uint64) (*indexer.ChainBlock, error) {
	header, err := c.getHeader(ctx, func(ctx context.Context) (*types.Header, error) {
		return c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	})
	if err != nil || header == nil {
		return nil, err
	}

	return toChainBlock(header), nil
}

func (c *Client) GetBlockByHash(ctx context.Context, hash indexer.Hash) (*indexer.ChainBlock, error) {
	header, err := c.getHeader(ctx, func(ctx context.Context) (*types.Header, error) {
		return c.rpc.HeaderByHash(ctx, ethcommon.Hash(hash))
	})
	if err != nil || header == nil {
		return nil, err
	}

	return toChainBlock(header), nil
}

// GetBlockTimestamp returns the timestamp of the block in seconds
func (c *Client) GetBlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	header, err := c.getHeader(ctx, func(ctx context.Context) (*types.Header, error) {
		return c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	})
	if err != nil {
		return 0, err
	}

	if header == nil {
		return 0, fmt.Errorf("%w: %d", indexer.ErrBlockNotFound, number)
	}

	return header.Time, nil
}

// GetTransactionInput returns the calldata of the transaction
func (c *Client) GetTransactionInput(ctx context.Context, hash ethcommon.Hash) ([]byte, error) {
	tx, err := executeWithRetry(ctx, c, func(ctx context.Context) (*types.Transaction, error) {
		tx, _, err := c.rpc.TransactionByHash(ctx, hash)

		return tx, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}

	return tx.Data(), nil
}

// SubscribeNewBlocks reports new chain heads. Nodes without subscriptions are polled.
func (c *Client) SubscribeNewBlocks(ctx context.Context, handler func(number uint64)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup

	headers := make(chan *types.Header)

	subscription, err := c.rpc.SubscribeNewHead(ctx, headers)
	if err != nil {
		c.logger.Info("New head subscription is not available, polling", "interval", c.config.PollInterval, "err", err)

		wg.Add(1)

		go func() {
			defer wg.Done()

			c.pollNewBlocks(ctx, handler)
		}()
	} else {
		wg.Add(1)

		go func() {
			defer wg.Done()

			c.listenNewBlocks(ctx, subscription, headers, handler)
		}()
	}

	return func() {
		cancel()
		wg.Wait()
	}, nil
}

func (c *Client) listenNewBlocks(
	ctx context.Context, subscription goethereum.Subscription, headers <-chan *types.Header, handler func(uint64),
) {
	defer subscription.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-subscription.Err():
			if err != nil {
				c.logger.Warn("New head subscription failed, polling", "err", err)
			}

			c.pollNewBlocks(ctx, handler)

			return
		case header := <-headers:
			handler(header.Number.Uint64())
		}
	}
}

func (c *Client) pollNewBlocks(ctx context.Context, handler func(uint64)) {
	var last uint64

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		number, err := c.GetBlockNumber(ctx)
		if err != nil {
			if common.IsContextDoneErr(err) {
				return
			}

			c.logger.Error("Failed to poll block number", "err", err)
		} else if number > last {
			last = number
			handler(number)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetLogsInRange returns the logs of the block range. Logs of the most recent known blocks are
// queried by block hash so that logs of a competing fork can not slip in.
func (c *Client) GetLogsInRange(ctx context.Context, blocks indexer.BlockRange, filter LogFilter) ([]types.Log, error) {
	if blocks.IsEmpty() {
		return nil, nil
	}

	queries := buildLogQueries(blocks, filter, c.config.SafeBlockDistance)

	var logs []types.Log

	for start := 0; start < len(queries); start += logsBatchSize {
		batch := queries[start:min(start+logsBatchSize, len(queries))]
		results := make([][]types.Log, len(batch))

		g, gctx := errgroup.WithContext(ctx)

		for i, query := range batch {
			g.Go(func() (err error) {
				results[i], err = c.getLogs(gctx, query)

				return err
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, result := range results {
			logs = append(logs, result...)
		}
	}

	for _, log := range logs {
		block := indexer.Block{Number: log.BlockNumber, Hash: indexer.Hash(log.BlockHash)}
		if !blocks.Has(block) {
			return nil, fmt.Errorf("%w: %s, log of block %s", ErrLogsOutsideRange, blocks, block)
		}
	}

	return logs, nil
}

// getLogs splits number ranges in half while the node rejects the response size
func (c *Client) getLogs(ctx context.Context, query goethereum.FilterQuery) ([]types.Log, error) {
	logs, err := executeWithRetry(ctx, c, func(ctx context.Context) ([]types.Log, error) {
		return c.rpc.FilterLogs(ctx, query)
	})
	if err == nil {
		return logs, nil
	}

	if query.BlockHash != nil || !isResponseSizeExceeded(err) || query.FromBlock.Cmp(query.ToBlock) >= 0 {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}

	from, to := query.FromBlock.Uint64(), query.ToBlock.Uint64()
	middle := from + (to-from)/2

	lower, upper := query, query
	lower.ToBlock = new(big.Int).SetUint64(middle)
	upper.FromBlock = new(big.Int).SetUint64(middle + 1)

	c.logger.Debug("Splitting logs query", "from", from, "to", to)

	lowerLogs, err := c.getLogs(ctx, lower)
	if err != nil {
		return nil, err
	}

	upperLogs, err := c.getLogs(ctx, upper)
	if err != nil {
		return nil, err
	}

	return append(lowerLogs, upperLogs...), nil
}

func (c *Client) getHeader(
	ctx context.Context, fn func(ctx context.Context) (*types.Header, error),
) (*types.Header, error) {
	header, err := executeWithRetry(ctx, c, func(ctx context.Context) (*types.Header, error) {
		header, err := fn(ctx)
		if errors.Is(err, goethereum.NotFound) {
			return nil, nil
		}

		return header, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get header: %w", err)
	}

	return header, nil
}

// buildLogQueries returns a number range query for the blocks without a hash pin, followed by
// one query per pinned block hash
func buildLogQueries(blocks indexer.BlockRange, filter LogFilter, safeBlockDistance uint64) []goethereum.FilterQuery {
	from, to, known := blocks.SplitByKnownHashes()

	if uint64(len(known)) > safeBlockDistance {
		unpinned := uint64(len(known)) - safeBlockDistance
		to += unpinned
		known = known[unpinned:]
	}

	queries := make([]goethereum.FilterQuery, 0, len(known)+1)

	if from < to {
		queries = append(queries, goethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to - 1),
			Addresses: filter.Addresses,
			Topics:    filter.Topics,
		})
	}

	for _, block := range known {
		hash := ethcommon.Hash(block.Hash)

		queries = append(queries, goethereum.FilterQuery{
			BlockHash: &hash,
			Addresses: filter.Addresses,
			Topics:    filter.Topics,
		})
	}

	return queries
}

func isResponseSizeExceeded(err error) bool {
	message := strings.ToLower(err.Error())

	return strings.Contains(message, "log response size exceeded") ||
		strings.Contains(message, "query returned more than")
}

func toChainBlock(header *types.Header) *indexer.ChainBlock {
	return &indexer.ChainBlock{
		Number:     header.Number.Uint64(),
		Hash:       indexer.Hash(header.Hash()),
		ParentHash: indexer.Hash(header.ParentHash),
	}
}

func executeWithRetry[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	options := []common.RetryConfigOption{common.WithLogger(c.logger)}

	if c.config.RetryCount > 0 {
		options = append(options, common.WithRetryCount(c.config.RetryCount))
	}

	if c.config.RetryWaitTime > 0 {
		options = append(options, common.WithRetryWaitTime(c.config.RetryWaitTime))
	}

	return common.ExecuteWithRetry(ctx, fn, options...)
}
