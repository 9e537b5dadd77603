// Package ethereum wraps go-ethereum's client for the two places this relay
// needs to put a transaction onto an EVM chain: C7's TON->EVM confirmation
// path and C8's ETH-side address verification. Grounded on the teacher
// validator's pkg/ethereum/client.go, trimmed of the ABI-string/raw-hex-key
// call surface that nothing in this repository's event-confirmation or
// elections flow reaches, and adapted to sign through pkg/keystore (the
// private key never leaves the keystore package) and retry through
// pkg/retry instead of its own ad hoc sleep loop.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/retry"
)

// Client wraps a JSON-RPC connection to one EVM chain for sending
// transactions (the scanning side lives in pkg/evmscan).
type Client struct {
	client  *ethclient.Client
	chainID *big.Int
}

// NewClient dials url and fixes the chain id used for transaction signing.
func NewClient(url string, chainID int64) (*Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to ethereum: %w", err)
	}
	return &Client{client: client, chainID: big.NewInt(chainID)}, nil
}

// GetPublicAddress derives the address for a hex-encoded private key.
func GetPublicAddress(privateKeyHex string) (common.Address, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("cast public key to ECDSA")
	}
	return crypto.PubkeyToAddress(*publicKeyECDSA), nil
}

// GeneratePrivateKey creates a new random secp256k1 key. The CLI's
// `generate` subcommand does not use it: it derives its key from a mnemonic.
func GeneratePrivateKey() (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return privateKey, nil
}

// PrivateKeyToHex renders a private key as 0x-prefixed hex. The CLI's
// `export` subcommand does not print private keys.
func PrivateKeyToHex(privateKey *ecdsa.PrivateKey) string {
	return fmt.Sprintf("0x%x", crypto.FromECDSA(privateKey))
}

// GetChainID returns the chain id this client signs for.
func (c *Client) GetChainID() *big.Int {
	return c.chainID
}

// GetClient returns the underlying ethclient, for callers that need the
// broader RPC surface (pkg/evmscan dials its own node via DialNode).
func (c *Client) GetClient() *ethclient.Client {
	return c.client
}

// Health reports whether the node is reachable.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("ethereum health check failed: %w", err)
	}
	return nil
}

// WaitForTransaction blocks until tx is mined and returns its receipt.
func (c *Client) WaitForTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for transaction: %w", err)
	}
	return receipt, nil
}

// SendWithHandle builds, signs through handle (an external signer — the
// private key stays inside the keystore), and submits a plain value-0 call
// to contractAddr carrying callData, retrying transient RPC failures under
// policy. This is the relay's only way to put a transaction on an EVM
// chain: C7 uses it for TON->EVM confirmation votes, C8 uses it for
// address-verification proofs.
func (c *Client) SendWithHandle(ctx context.Context, log *logging.Logger, handle *keystore.Handle, contractAddr common.Address, callData []byte, gasLimit uint64, policy retry.Policy) (*types.Receipt, error) {
	fromAddress := common.Address(handle.EthAddress())
	signer := types.NewEIP155Signer(c.chainID)

	var signedTx *types.Transaction
	err := retry.Do(ctx, log, fmt.Sprintf("send evm tx to %s", contractAddr), policy, func(ctx context.Context) error {
		nonce, err := c.client.PendingNonceAt(ctx, fromAddress)
		if err != nil {
			return fmt.Errorf("get nonce: %w", err)
		}
		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("get gas price: %w", err)
		}

		tx := types.NewTransaction(nonce, contractAddr, big.NewInt(0), gasLimit, gasPrice, callData)
		hash := signer.Hash(tx)
		sig, err := handle.SignEth(hash[:])
		if err != nil {
			return fmt.Errorf("sign transaction: %w", err)
		}
		signed, err := tx.WithSignature(signer, sig)
		if err != nil {
			return fmt.Errorf("attach signature: %w", err)
		}
		if err := c.client.SendTransaction(ctx, signed); err != nil {
			return fmt.Errorf("broadcast transaction: %w", err)
		}
		signedTx = signed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.WaitForTransaction(ctx, signedTx)
}
