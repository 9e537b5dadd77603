package evmscan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Node is the subset of an EVM JSON-RPC client the scanner needs. Narrowing
// *ethclient.Client to this interface lets tests supply an in-memory fake
// instead of dialing a real node.
type Node interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// DialNode connects to an EVM JSON-RPC endpoint.
func DialNode(ctx context.Context, url string) (Node, error) {
	return ethclient.DialContext(ctx, url)
}
