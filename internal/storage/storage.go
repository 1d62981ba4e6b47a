// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/solana-sniper/internal/events"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"go.uber.org/zap"
)

// ErrDuplicateTrade is returned when a trade id was already recorded.
var ErrDuplicateTrade = errors.New("trade already recorded")

// TradeJournal records closed trades outside the process.
type TradeJournal interface {
	RecordTrade(ctx context.Context, trade ledger.ClosedTrade) error
	RecentTrades(ctx context.Context, limit int) ([]ledger.ClosedTrade, error)
	Close() error
}

// JournalHandler records every closed trade published on the bus.
// Duplicates are ignored so replays are harmless.
func JournalHandler(journal TradeJournal, logger *zap.Logger) events.Handler {
	return events.TradeHandler(func(ctx context.Context, e events.PositionClosedEvent) error {
		err := journal.RecordTrade(ctx, e.Trade)
		if errors.Is(err, ErrDuplicateTrade) {
			logger.Debug("Trade already journaled", zap.String("trade_id", e.Trade.ID))
			return nil
		}
		return err
	})
}
