package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("journal"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewStore(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func trade(mint string, exit time.Time, pnl float64) ledger.ClosedTrade {
	return ledger.ClosedTrade{
		ID:            uuid.NewString(),
		Mint:          mint,
		Name:          "Token " + mint,
		Symbol:        "TKN",
		EntryPrice:    1.0,
		ExitPrice:     1.3,
		Invested:      100,
		PnL:           pnl,
		Reason:        ledger.ReasonTakeProfit,
		EntryTime:     exit.Add(-time.Minute),
		ExitTime:      exit,
		SellSignature: "sig-" + mint,
	}
}

func TestStoreRecordAndQuery(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		tr := trade(fmt.Sprintf("mint%d", i), base.Add(time.Duration(i)*time.Minute), float64(i))
		require.NoError(t, store.RecordTrade(ctx, tr))
		ids = append(ids, tr.ID)
	}

	recent, err := store.RecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "mint2", recent[0].Mint)
	assert.Equal(t, "mint1", recent[1].Mint)
	assert.Equal(t, ledger.ReasonTakeProfit, recent[0].Reason)
	assert.True(t, base.Add(2*time.Minute).Equal(recent[0].ExitTime))

	got, err := store.TradeByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "sig-mint0", got.SellSignature)
	assert.InDelta(t, 0.0, got.PnL, 1e-9)

	_, err = store.TradeByID(ctx, uuid.NewString())
	assert.True(t, IsNotFound(err))
}

func TestStoreRejectsDuplicates(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tr := trade("dup", time.Now().UTC(), 30)
	require.NoError(t, store.RecordTrade(ctx, tr))
	assert.ErrorIs(t, store.RecordTrade(ctx, tr), storage.ErrDuplicateTrade)

	// migrations are idempotent
	require.NoError(t, store.RunMigrations(ctx))
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, isDuplicateKeyError(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: pgErrUniqueViolation})))
	assert.False(t, isDuplicateKeyError(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, isDuplicateKeyError(nil))
}
