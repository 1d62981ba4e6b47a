// internal/blockchain/types.go
package blockchain

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ErrConfirmationTimeout is returned when a signature is not confirmed in time.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	// ErrTransactionFailed is returned when a confirmed transaction carries an error.
	ErrTransactionFailed = errors.New("transaction failed on chain")
	// ErrEmptySignature is returned when the node does not echo a signature.
	ErrEmptySignature = errors.New("empty transaction signature")
)

// MintDecimalsOffset is the byte offset of the decimals field in an SPL mint account.
const MintDecimalsOffset = 44

// Client is the chain RPC surface used by the swap pipeline and the session.
type Client interface {
	// Latest blockhash for new transactions.
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	// Lamport balance of an account.
	GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
	// Raw account info.
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	// Several accounts in one call.
	GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error)
	// SPL token balance of a token account.
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error)
	// Send an already signed, serialized transaction.
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	// Send a signed transaction.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// Poll until the signature is confirmed without error or timeout elapses.
	WaitForConfirmation(ctx context.Context, sig solana.Signature, timeout time.Duration) error
	// Decimals of an SPL mint.
	MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
}
