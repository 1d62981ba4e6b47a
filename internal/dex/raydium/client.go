// internal/dex/raydium/client.go
package raydium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/rovshanmuradov/solana-sniper/internal/blockchain"
	"github.com/rovshanmuradov/solana-sniper/internal/wallet"
	"go.uber.org/zap"
)

var (
	ErrPoolNotFound     = errors.New("raydium pool not found")
	ErrPoolNotSwappable = errors.New("raydium pool does not accept swaps")
)

// Config tunes direct swaps.
type Config struct {
	ComputeUnitPrice uint64
	ComputeUnitLimit uint32
	ConfirmTimeout   time.Duration
}

// Client performs direct AMM v4 swaps without the aggregator.
type Client struct {
	chain  blockchain.Client
	wallet *wallet.Wallet
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a direct swap client.
func NewClient(chain blockchain.Client, w *wallet.Wallet, cfg Config, logger *zap.Logger) *Client {
	if cfg.ComputeUnitPrice == 0 {
		cfg.ComputeUnitPrice = DefaultComputeUnitPrice
	}
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = DefaultComputeUnitLimit
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	return &Client{
		chain:  chain,
		wallet: w,
		cfg:    cfg,
		logger: logger.Named("raydium"),
	}
}

// LoadPoolKeys resolves every account of a swap from the AMM and market state.
func (c *Client) LoadPoolKeys(ctx context.Context, amm solana.PublicKey) (*PoolKeys, error) {
	info, err := c.chain.GetAccountInfo(ctx, amm)
	if err != nil {
		return nil, fmt.Errorf("failed to get amm account: %w", err)
	}
	if info == nil || info.Value == nil || info.Value.Data == nil {
		return nil, fmt.Errorf("%s: %w", amm, ErrPoolNotFound)
	}
	if !info.Value.Owner.Equals(AmmV4ProgramID) {
		return nil, fmt.Errorf("%s is owned by %s: %w", amm, info.Value.Owner, ErrPoolNotFound)
	}

	state, err := DecodeAmmState(info.Value.Data.GetBinary())
	if err != nil {
		return nil, err
	}
	if !state.Swappable() {
		return nil, fmt.Errorf("status %d: %w", state.Status, ErrPoolNotSwappable)
	}

	accounts, err := c.chain.GetMultipleAccounts(ctx, []solana.PublicKey{
		state.MarketID, state.BaseVault, state.QuoteVault,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get market and vaults: %w", err)
	}
	if accounts == nil || len(accounts.Value) != 3 {
		return nil, fmt.Errorf("unexpected market/vault response for %s", amm)
	}
	for i, acc := range accounts.Value {
		if acc == nil || acc.Data == nil {
			return nil, fmt.Errorf("missing account %d for pool %s", i, amm)
		}
	}

	market, err := DecodeMarketState(accounts.Value[0].Data.GetBinary())
	if err != nil {
		return nil, err
	}
	baseReserve, err := tokenAccountAmount(accounts.Value[1].Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("base vault: %w", err)
	}
	quoteReserve, err := tokenAccountAmount(accounts.Value[2].Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("quote vault: %w", err)
	}

	authority, err := AmmAuthority(state.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to derive amm authority: %w", err)
	}
	signer, err := VaultSigner(state.MarketID, state.MarketProgramID, market.VaultSignerNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault signer: %w", err)
	}

	return &PoolKeys{
		AmmID:            amm,
		Authority:        authority,
		OpenOrders:       state.OpenOrders,
		TargetOrders:     state.TargetOrders,
		BaseVault:        state.BaseVault,
		QuoteVault:       state.QuoteVault,
		BaseMint:         state.BaseMint,
		QuoteMint:        state.QuoteMint,
		MarketProgramID:  state.MarketProgramID,
		MarketID:         state.MarketID,
		MarketBids:       market.Bids,
		MarketAsks:       market.Asks,
		MarketEventQueue: market.EventQueue,
		MarketBaseVault:  market.BaseVault,
		MarketQuoteVault: market.QuoteVault,
		MarketSigner:     signer,
		BaseReserve:      baseReserve,
		QuoteReserve:     quoteReserve,
		FeeNum:           state.SwapFeeNumerator,
		FeeDen:           state.SwapFeeDenominator,
	}, nil
}

// SwapBaseIn spends amountIn of inputMint in pool and waits for confirmation.
// SOL legs are wrapped and unwrapped through the wallet's WSOL account.
func (c *Client) SwapBaseIn(
	ctx context.Context,
	pool, inputMint solana.PublicKey,
	amountIn uint64,
	slippageBps int,
) (solana.Signature, error) {
	logger := c.logger.With(
		zap.String("pool", pool.String()),
		zap.String("input_mint", inputMint.String()),
		zap.Uint64("amount_in", amountIn))

	keys, err := c.LoadPoolKeys(ctx, pool)
	if err != nil {
		return solana.Signature{}, err
	}
	instructions, err := c.BuildSwapInstructions(keys, inputMint, amountIn, slippageBps)
	if err != nil {
		return solana.Signature{}, err
	}

	blockhash, err := c.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(c.wallet.PublicKey))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	if err := c.wallet.SignTransaction(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.chain.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	logger.Info("[SWAP] Direct swap submitted", zap.String("signature", sig.String()))

	if err := c.chain.WaitForConfirmation(ctx, sig, c.cfg.ConfirmTimeout); err != nil {
		return sig, err
	}
	logger.Info("[SWAP] Direct swap confirmed", zap.String("signature", sig.String()))
	return sig, nil
}

// BuildSwapInstructions assembles compute budget, ATA, wrap, swap and unwrap instructions.
func (c *Client) BuildSwapInstructions(
	keys *PoolKeys,
	inputMint solana.PublicKey,
	amountIn uint64,
	slippageBps int,
) ([]solana.Instruction, error) {
	reserveIn, reserveOut, err := keys.Reserves(inputMint)
	if err != nil {
		return nil, err
	}
	outputMint := keys.OtherMint(inputMint)
	minOut := MinAmountOut(ExpectedOut(amountIn, reserveIn, reserveOut, keys.FeeNum, keys.FeeDen), slippageBps)

	owner := c.wallet.PublicKey
	source, err := c.wallet.GetATA(inputMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source ATA: %w", err)
	}
	dest, err := c.wallet.GetATA(outputMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive destination ATA: %w", err)
	}

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitPriceInstruction(c.cfg.ComputeUnitPrice).Build(),
		computebudget.NewSetComputeUnitLimitInstruction(c.cfg.ComputeUnitLimit).Build(),
	}

	for _, mint := range []solana.PublicKey{inputMint, outputMint} {
		ix, err := c.wallet.CreateATAIdempotentInstruction(mint)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, ix)
	}

	if inputMint.Equals(WrappedSolMint) {
		instructions = append(instructions,
			system.NewTransferInstruction(amountIn, owner, source).Build(),
			token.NewSyncNativeInstruction(source).Build(),
		)
	}

	swapIx, err := NewSwapBaseInInstruction(keys, source, dest, owner, amountIn, minOut)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, swapIx)

	wsol := source
	if outputMint.Equals(WrappedSolMint) {
		wsol = dest
	}
	if inputMint.Equals(WrappedSolMint) || outputMint.Equals(WrappedSolMint) {
		instructions = append(instructions,
			token.NewCloseAccountInstruction(wsol, owner, owner, []solana.PublicKey{}).Build())
	}

	c.logger.Debug("Built direct swap",
		zap.String("amm", keys.AmmID.String()),
		zap.Uint64("amount_in", amountIn),
		zap.Uint64("min_out", minOut),
		zap.Int("instructions", len(instructions)))
	return instructions, nil
}
