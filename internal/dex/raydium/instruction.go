// internal/dex/raydium/instruction.go
package raydium

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// PoolKeys is the full account set of an AMM v4 swap, resolved from chain state.
type PoolKeys struct {
	AmmID            solana.PublicKey
	Authority        solana.PublicKey
	OpenOrders       solana.PublicKey
	TargetOrders     solana.PublicKey
	BaseVault        solana.PublicKey
	QuoteVault       solana.PublicKey
	BaseMint         solana.PublicKey
	QuoteMint        solana.PublicKey
	MarketProgramID  solana.PublicKey
	MarketID         solana.PublicKey
	MarketBids       solana.PublicKey
	MarketAsks       solana.PublicKey
	MarketEventQueue solana.PublicKey
	MarketBaseVault  solana.PublicKey
	MarketQuoteVault solana.PublicKey
	MarketSigner     solana.PublicKey

	BaseReserve  uint64
	QuoteReserve uint64
	FeeNum       uint64
	FeeDen       uint64
}

// Reserves returns the (in, out) reserves for a swap that spends inputMint.
func (k *PoolKeys) Reserves(inputMint solana.PublicKey) (uint64, uint64, error) {
	switch {
	case inputMint.Equals(k.BaseMint):
		return k.BaseReserve, k.QuoteReserve, nil
	case inputMint.Equals(k.QuoteMint):
		return k.QuoteReserve, k.BaseReserve, nil
	}
	return 0, 0, fmt.Errorf("mint %s is not part of pool %s", inputMint, k.AmmID)
}

// OtherMint returns the pool side opposite to mint.
func (k *PoolKeys) OtherMint(mint solana.PublicKey) solana.PublicKey {
	if mint.Equals(k.BaseMint) {
		return k.QuoteMint
	}
	return k.BaseMint
}

// ExpectedOut is the constant-product output for amountIn after the pool fee.
func ExpectedOut(amountIn, reserveIn, reserveOut, feeNum, feeDen uint64) uint64 {
	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 {
		return 0
	}
	in := new(big.Int).SetUint64(amountIn)
	if feeDen > 0 && feeNum < feeDen {
		in.Mul(in, new(big.Int).SetUint64(feeDen-feeNum))
		in.Quo(in, new(big.Int).SetUint64(feeDen))
	}
	num := new(big.Int).Mul(in, new(big.Int).SetUint64(reserveOut))
	den := new(big.Int).Add(new(big.Int).SetUint64(reserveIn), in)
	return num.Quo(num, den).Uint64()
}

// MinAmountOut applies a slippage tolerance in basis points. Never returns 0.
func MinAmountOut(expected uint64, slippageBps int) uint64 {
	if slippageBps < 0 {
		slippageBps = 0
	}
	if slippageBps > bpsDenominator {
		slippageBps = bpsDenominator
	}
	v := new(big.Int).SetUint64(expected)
	v.Mul(v, big.NewInt(int64(bpsDenominator-slippageBps)))
	v.Quo(v, big.NewInt(bpsDenominator))
	if v.Sign() == 0 {
		return 1
	}
	return v.Uint64()
}

// EncodeSwapBaseIn serializes swapBaseIn instruction data.
func EncodeSwapBaseIn(amountIn, minAmountOut uint64) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(InstructionSwapBaseIn); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(amountIn, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(minAmountOut, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewSwapBaseInInstruction builds the AMM v4 swap with accounts in program order.
func NewSwapBaseInInstruction(
	keys *PoolKeys,
	userSource, userDest, owner solana.PublicKey,
	amountIn, minAmountOut uint64,
) (solana.Instruction, error) {
	data, err := EncodeSwapBaseIn(amountIn, minAmountOut)
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap data: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(keys.AmmID, true, false),
		solana.NewAccountMeta(keys.Authority, false, false),
		solana.NewAccountMeta(keys.OpenOrders, true, false),
		solana.NewAccountMeta(keys.TargetOrders, true, false),
		solana.NewAccountMeta(keys.BaseVault, true, false),
		solana.NewAccountMeta(keys.QuoteVault, true, false),
		solana.NewAccountMeta(keys.MarketProgramID, false, false),
		solana.NewAccountMeta(keys.MarketID, true, false),
		solana.NewAccountMeta(keys.MarketBids, true, false),
		solana.NewAccountMeta(keys.MarketAsks, true, false),
		solana.NewAccountMeta(keys.MarketEventQueue, true, false),
		solana.NewAccountMeta(keys.MarketBaseVault, true, false),
		solana.NewAccountMeta(keys.MarketQuoteVault, true, false),
		solana.NewAccountMeta(keys.MarketSigner, false, false),
		solana.NewAccountMeta(userSource, true, false),
		solana.NewAccountMeta(userDest, true, false),
		solana.NewAccountMeta(owner, false, true),
	}

	return solana.NewInstruction(AmmV4ProgramID, accounts, data), nil
}
