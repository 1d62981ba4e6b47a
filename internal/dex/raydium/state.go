// internal/dex/raydium/state.go
package raydium

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// AmmState holds the parts of an AMM v4 pool account needed for swaps.
type AmmState struct {
	Status             uint64
	Nonce              uint64
	BaseDecimal        uint64
	QuoteDecimal       uint64
	SwapFeeNumerator   uint64
	SwapFeeDenominator uint64
	PoolOpenTime       uint64

	BaseVault       solana.PublicKey
	QuoteVault      solana.PublicKey
	BaseMint        solana.PublicKey
	QuoteMint       solana.PublicKey
	LpMint          solana.PublicKey
	OpenOrders      solana.PublicKey
	MarketID        solana.PublicKey
	MarketProgramID solana.PublicKey
	TargetOrders    solana.PublicKey
	WithdrawQueue   solana.PublicKey
	LpVault         solana.PublicKey
	Owner           solana.PublicKey
	LpReserve       uint64
}

// Swappable reports whether the pool status accepts swaps.
func (s *AmmState) Swappable() bool {
	switch s.Status {
	case StatusInitialized, StatusSwapOnly, StatusWaitingTrade:
		return true
	}
	return false
}

// MarketState holds the OpenBook market accounts referenced by a swap.
type MarketState struct {
	OwnAddress       solana.PublicKey
	VaultSignerNonce uint64
	BaseMint         solana.PublicKey
	QuoteMint        solana.PublicKey
	BaseVault        solana.PublicKey
	QuoteVault       solana.PublicKey
	RequestQueue     solana.PublicKey
	EventQueue       solana.PublicKey
	Bids             solana.PublicKey
	Asks             solana.PublicKey
}

type layoutReader struct {
	dec *bin.Decoder
	err error
}

func (r *layoutReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	r.err = err
	return v
}

func (r *layoutReader) key() solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	b, err := r.dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		r.err = err
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (r *layoutReader) skip(n int) {
	if r.err != nil {
		return
	}
	r.err = r.dec.SkipBytes(uint(n))
}

// DecodeAmmState decodes raw AMM v4 account data.
func DecodeAmmState(data []byte) (*AmmState, error) {
	if len(data) < AmmStateSize {
		return nil, fmt.Errorf("amm state too short: got %d, need %d", len(data), AmmStateSize)
	}

	r := &layoutReader{dec: bin.NewBinDecoder(data)}
	header := make([]uint64, ammHeaderFields)
	for i := range header {
		header[i] = r.u64()
	}
	r.skip(ammSwapStatsSize)

	s := &AmmState{
		Status:             header[0],
		Nonce:              header[1],
		BaseDecimal:        header[4],
		QuoteDecimal:       header[5],
		SwapFeeNumerator:   header[22],
		SwapFeeDenominator: header[23],
		PoolOpenTime:       header[28],
	}
	s.BaseVault = r.key()
	s.QuoteVault = r.key()
	s.BaseMint = r.key()
	s.QuoteMint = r.key()
	s.LpMint = r.key()
	s.OpenOrders = r.key()
	s.MarketID = r.key()
	s.MarketProgramID = r.key()
	s.TargetOrders = r.key()
	s.WithdrawQueue = r.key()
	s.LpVault = r.key()
	s.Owner = r.key()
	s.LpReserve = r.u64()

	if r.err != nil {
		return nil, fmt.Errorf("failed to decode amm state: %w", r.err)
	}
	return s, nil
}

// DecodeMarketState decodes raw OpenBook/Serum v3 market account data.
func DecodeMarketState(data []byte) (*MarketState, error) {
	if len(data) < MarketStateSize {
		return nil, fmt.Errorf("market state too short: got %d, need %d", len(data), MarketStateSize)
	}

	r := &layoutReader{dec: bin.NewBinDecoder(data)}
	r.skip(marketHeadPadding)
	r.u64() // account flags

	m := &MarketState{}
	m.OwnAddress = r.key()
	m.VaultSignerNonce = r.u64()
	m.BaseMint = r.key()
	m.QuoteMint = r.key()
	m.BaseVault = r.key()
	r.u64() // base deposits
	r.u64() // base fees
	m.QuoteVault = r.key()
	r.u64() // quote deposits
	r.u64() // quote fees
	r.u64() // dust threshold
	m.RequestQueue = r.key()
	m.EventQueue = r.key()
	m.Bids = r.key()
	m.Asks = r.key()

	if r.err != nil {
		return nil, fmt.Errorf("failed to decode market state: %w", r.err)
	}
	return m, nil
}

// VaultSigner derives the market vault signer from the stored nonce.
func VaultSigner(market, marketProgram solana.PublicKey, nonce uint64) (solana.PublicKey, error) {
	seed := make([]byte, 8)
	binary.LittleEndian.PutUint64(seed, nonce)
	return solana.CreateProgramAddress([][]byte{market.Bytes(), seed}, marketProgram)
}

// AmmAuthority returns the AMM v4 authority PDA for the nonce stored in pool state.
func AmmAuthority(nonce uint64) (solana.PublicKey, error) {
	return solana.CreateProgramAddress([][]byte{[]byte(AmmAuthoritySeed), {byte(nonce)}}, AmmV4ProgramID)
}

// tokenAccountAmount reads the amount field of an SPL token account.
func tokenAccountAmount(data []byte) (uint64, error) {
	const amountOffset = 64
	if len(data) < amountOffset+8 {
		return 0, fmt.Errorf("token account too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint64(data[amountOffset : amountOffset+8]), nil
}
