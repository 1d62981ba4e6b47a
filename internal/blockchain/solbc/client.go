// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/solana-sniper/internal/blockchain"
	"go.uber.org/zap"
)

const (
	retryDelay      = 300 * time.Millisecond
	confirmInterval = time.Second
	maxSendRetries  = uint(3)
	requestTimeout  = 15 * time.Second
)

var (
	ErrNoRPCNodes      = errors.New("no RPC nodes configured")
	ErrAccountNotFound = errors.New("account not found")
)

// IsAccountNotFoundError reports whether err means the account does not exist.
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// Client is a thin solana-go adapter that rotates across the configured RPC nodes.
type Client struct {
	nodes   []*rpc.Client
	urls    []string
	mu      sync.Mutex
	current int
	logger  *zap.Logger
}

// NewClient creates a client over one or more RPC URLs.
func NewClient(urls []string, logger *zap.Logger) (*Client, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}
	nodes := make([]*rpc.Client, len(urls))
	for i, u := range urls {
		nodes[i] = rpc.New(u)
	}
	return &Client{
		nodes:  nodes,
		urls:   urls,
		logger: logger.Named("solbc-client"),
	}, nil
}

// execute runs op against each node in turn until one succeeds.
func (c *Client) execute(ctx context.Context, method string, op func(context.Context, *rpc.Client) error) error {
	var lastErr error
	for attempt := 0; attempt < len(c.nodes); attempt++ {
		c.mu.Lock()
		node, url := c.nodes[c.current], c.urls[c.current]
		c.mu.Unlock()

		callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		err := op(node)
		_ = callCtx
		cancel()
		if err == nil {
			return nil
		}
		if IsAccountNotFoundError(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err

		c.logger.Debug("RPC request failed, trying next node",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		c.mu.Lock()
		c.current = (c.current + 1) % len(c.nodes)
		c.mu.Unlock()

		if attempt < len(c.nodes)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return fmt.Errorf("%s: %w", method, lastErr)
}

// GetLatestBlockhash returns the latest finalized blockhash.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.execute(ctx, "getLatestBlockhash", func(ctx context.Context, node *rpc.Client) error {
		res, err := node.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		hash = res.Value.Blockhash
		return nil
	})
	if err != nil {
		c.logger.Error("GetLatestBlockhash error", zap.Error(err))
	}
	return hash, err
}

// GetBalance returns the confirmed lamport balance.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	var lamports uint64
	err := c.execute(ctx, "getBalance", func(ctx context.Context, node *rpc.Client) error {
		res, err := node.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		lamports = res.Value
		return nil
	})
	return lamports, err
}

// GetAccountInfo returns base64 account info.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	var result *rpc.GetAccountInfoResult
	err := c.execute(ctx, "getAccountInfo", func(ctx context.Context, node *rpc.Client) error {
		var err error
		result, err = node.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: rpc.CommitmentConfirmed,
		})
		return err
	})
	if err != nil {
		c.logger.Debug("GetAccountInfo error",
			zap.String("pubkey", pubkey.String()),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// GetMultipleAccounts fetches several accounts in one request.
func (c *Client) GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	if len(pubkeys) == 0 {
		return &rpc.GetMultipleAccountsResult{}, nil
	}
	var result *rpc.GetMultipleAccountsResult
	err := c.execute(ctx, "getMultipleAccounts", func(ctx context.Context, node *rpc.Client) error {
		var err error
		result, err = node.GetMultipleAccountsWithOpts(ctx, pubkeys, &rpc.GetMultipleAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		})
		return err
	})
	return result, err
}

// GetTokenAccountBalance returns the balance of an SPL token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error) {
	var result *rpc.GetTokenAccountBalanceResult
	err := c.execute(ctx, "getTokenAccountBalance", func(ctx context.Context, node *rpc.Client) error {
		var err error
		result, err = node.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
		return err
	})
	return result, err
}

// GetTokenSupply returns the supply of a mint.
func (c *Client) GetTokenSupply(ctx context.Context, mint solana.PublicKey) (*rpc.GetTokenSupplyResult, error) {
	var result *rpc.GetTokenSupplyResult
	err := c.execute(ctx, "getTokenSupply", func(ctx context.Context, node *rpc.Client) error {
		var err error
		result, err = node.GetTokenSupply(ctx, mint, rpc.CommitmentConfirmed)
		return err
	})
	return result, err
}

// GetTokenLargestAccounts returns the largest token accounts of a mint.
func (c *Client) GetTokenLargestAccounts(ctx context.Context, mint solana.PublicKey) (*rpc.GetTokenLargestAccountsResult, error) {
	var result *rpc.GetTokenLargestAccountsResult
	err := c.execute(ctx, "getTokenLargestAccounts", func(ctx context.Context, node *rpc.Client) error {
		var err error
		result, err = node.GetTokenLargestAccounts(ctx, mint, rpc.CommitmentConfirmed)
		return err
	})
	return result, err
}

// SendRawTransaction submits serialized signed bytes with preflight skipped.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	var sig solana.Signature
	maxRetries := maxSendRetries
	err := c.execute(ctx, "sendTransaction", func(ctx context.Context, node *rpc.Client) error {
		var err error
		sig, err = node.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentConfirmed,
			MaxRetries:          &maxRetries,
		})
		return err
	})
	if err != nil {
		c.logger.Error("SendRawTransaction error", zap.Error(err))
		return solana.Signature{}, err
	}
	if sig.IsZero() {
		return solana.Signature{}, blockchain.ErrEmptySignature
	}
	return sig, nil
}

// SendTransaction serializes and submits a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}
	return c.SendRawTransaction(ctx, raw)
}

// GetSignatureStatuses returns the statuses of signatures.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	var result *rpc.GetSignatureStatusesResult
	err := c.execute(ctx, "getSignatureStatuses", func(ctx context.Context, node *rpc.Client) error {
		var err error
		result, err = node.GetSignatureStatuses(ctx, true, signatures...)
		return err
	})
	return result, err
}

// WaitForConfirmation polls once per second until sig lands without error or timeout passes.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	ticker := time.NewTicker(confirmInterval)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%s: %w", sig, blockchain.ErrConfirmationTimeout)
		case <-ticker.C:
			statuses, err := c.GetSignatureStatuses(ctx, sig)
			if err != nil {
				c.logger.Warn("Error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%s: %w: %v", sig, blockchain.ErrTransactionFailed, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}

// MintDecimals reads the decimals byte of an SPL mint account.
func (c *Client) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	info, err := c.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, err
	}
	if info == nil || info.Value == nil || info.Value.Data == nil {
		return 0, fmt.Errorf("mint %s: %w", mint, ErrAccountNotFound)
	}
	return DecodeMintDecimals(info.Value.Data.GetBinary())
}

// DecodeMintDecimals extracts decimals from raw mint account data.
func DecodeMintDecimals(data []byte) (uint8, error) {
	if len(data) <= blockchain.MintDecimalsOffset {
		return 0, fmt.Errorf("mint data too short: %d bytes", len(data))
	}
	return data[blockchain.MintDecimalsOffset], nil
}

var _ blockchain.Client = (*Client)(nil)
