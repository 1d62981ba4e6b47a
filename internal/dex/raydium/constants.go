// internal/dex/raydium/constants.go
package raydium

import (
	"github.com/gagliardetto/solana-go"
)

// Program IDs
var (
	AmmV4ProgramID  = solana.MPK("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	SerumProgramID  = solana.MPK("9xQeWvG816bUx9EPjH2ExZ7mMLP7WMQmfR9ws21VWG9A")
	OpenBookProgram = solana.MPK("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	WrappedSolMint  = solana.MPK("So11111111111111111111111111111111111111112")
)

// AmmAuthoritySeed derives the program-wide AMM authority PDA.
const AmmAuthoritySeed = "amm authority"

// Account layouts
const (
	AmmStateSize    = 752
	MarketStateSize = 388
	// u64 fields at the head of the AMM v4 state
	ammHeaderFields = 32
	// swap accounting block between the header and the first pubkey
	ammSwapStatsSize = 80
	// leading "serum" padding of a market account
	marketHeadPadding = 5
)

// Instruction discriminators
const (
	InstructionSwapBaseIn uint8 = 9
	swapDataSize                = 17
)

// Compute budget for direct swaps
const (
	DefaultComputeUnitPrice uint64 = 1_000_000
	DefaultComputeUnitLimit uint32 = 200_000
)

// Pool status values that allow swaps
const (
	StatusInitialized  uint64 = 1
	StatusSwapOnly     uint64 = 6
	StatusWaitingTrade uint64 = 7
)

const bpsDenominator = 10_000
