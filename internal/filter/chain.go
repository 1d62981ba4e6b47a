// internal/filter/chain.go
package filter

import (
	"context"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// MetadataProgramID is the Metaplex token metadata program.
var MetadataProgramID = solana.MPK("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// ChainReader is the subset of RPC calls the holder checks need.
type ChainReader interface {
	GetTokenLargestAccounts(ctx context.Context, mint solana.PublicKey) (*rpc.GetTokenLargestAccountsResult, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey) (*rpc.GetTokenSupplyResult, error)
	GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error)
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// ChainHolderInfo implements HolderInfo on top of Solana RPC.
type ChainHolderInfo struct {
	chain  ChainReader
	logger *zap.Logger
}

// NewChainHolderInfo creates a holder info provider.
func NewChainHolderInfo(chain ChainReader, logger *zap.Logger) *ChainHolderInfo {
	return &ChainHolderInfo{
		chain:  chain,
		logger: logger.Named("holders"),
	}
}

// TopHolders returns the n largest token accounts with their owners resolved.
func (c *ChainHolderInfo) TopHolders(ctx context.Context, mint string, n int) (Holders, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return Holders{}, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	supplyRes, err := c.chain.GetTokenSupply(ctx, mintKey)
	if err != nil {
		return Holders{}, fmt.Errorf("get token supply: %w", err)
	}
	supply, err := uiAmount(supplyRes.Value)
	if err != nil {
		return Holders{}, err
	}

	largest, err := c.chain.GetTokenLargestAccounts(ctx, mintKey)
	if err != nil {
		return Holders{}, fmt.Errorf("get largest accounts: %w", err)
	}

	accounts := largest.Value
	if n > 0 && len(accounts) > n {
		accounts = accounts[:n]
	}

	keys := make([]solana.PublicKey, 0, len(accounts))
	holders := make([]Holder, 0, len(accounts))
	for _, a := range accounts {
		if a == nil {
			continue
		}
		amount, err := strconv.ParseFloat(a.UiAmountString, 64)
		if err != nil {
			continue
		}
		keys = append(keys, a.Address)
		holders = append(holders, Holder{Account: a.Address.String(), Amount: amount})
	}

	if len(keys) > 0 {
		infos, err := c.chain.GetMultipleAccounts(ctx, keys)
		if err != nil {
			return Holders{}, fmt.Errorf("get holder accounts: %w", err)
		}
		for i, acc := range infos.Value {
			if i >= len(holders) || acc == nil || acc.Data == nil {
				continue
			}
			var ta token.Account
			if err := bin.NewBinDecoder(acc.Data.GetBinary()).Decode(&ta); err != nil {
				c.logger.Debug("Failed to decode token account",
					zap.String("account", holders[i].Account), zap.Error(err))
				continue
			}
			holders[i].Owner = ta.Owner.String()
		}
	}

	return Holders{Supply: supply, Accounts: holders}, nil
}

// IsMutable reads the Metaplex metadata account and returns its is_mutable flag.
func (c *ChainHolderInfo) IsMutable(ctx context.Context, mint string) (bool, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return false, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	pda, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), MetadataProgramID.Bytes(), mintKey.Bytes()},
		MetadataProgramID,
	)
	if err != nil {
		return false, fmt.Errorf("derive metadata address: %w", err)
	}

	info, err := c.chain.GetAccountInfo(ctx, pda)
	if err != nil {
		return false, fmt.Errorf("get metadata account: %w", err)
	}
	if info == nil || info.Value == nil || info.Value.Data == nil {
		return false, fmt.Errorf("metadata account not found")
	}
	return DecodeMetadataMutable(info.Value.Data.GetBinary())
}

// DecodeMetadataMutable walks the Metaplex metadata layout up to is_mutable.
func DecodeMetadataMutable(data []byte) (bool, error) {
	dec := bin.NewBorshDecoder(data)

	// key, update authority, mint
	if err := dec.SkipBytes(1 + 32 + 32); err != nil {
		return false, fmt.Errorf("metadata header: %w", err)
	}
	for _, field := range []string{"name", "symbol", "uri"} {
		if _, err := dec.ReadRustString(); err != nil {
			return false, fmt.Errorf("metadata %s: %w", field, err)
		}
	}
	if _, err := dec.ReadUint16(bin.LE); err != nil {
		return false, fmt.Errorf("metadata seller fee: %w", err)
	}

	hasCreators, err := dec.ReadBool()
	if err != nil {
		return false, fmt.Errorf("metadata creators flag: %w", err)
	}
	if hasCreators {
		count, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return false, fmt.Errorf("metadata creators len: %w", err)
		}
		// address + verified + share
		if err := dec.SkipBytes(uint(count) * (32 + 1 + 1)); err != nil {
			return false, fmt.Errorf("metadata creators: %w", err)
		}
	}

	if _, err := dec.ReadBool(); err != nil {
		return false, fmt.Errorf("metadata primary sale: %w", err)
	}
	mutable, err := dec.ReadBool()
	if err != nil {
		return false, fmt.Errorf("metadata is_mutable: %w", err)
	}
	return mutable, nil
}

func uiAmount(v *rpc.UiTokenAmount) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("empty token amount")
	}
	if v.UiAmountString != "" {
		return strconv.ParseFloat(v.UiAmountString, 64)
	}
	if v.UiAmount != nil {
		return *v.UiAmount, nil
	}
	return 0, fmt.Errorf("token amount without ui value")
}
