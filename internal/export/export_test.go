package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var day = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func testTrades() []ledger.ClosedTrade {
	mk := func(id, mint string, hour int, pnl float64, reason ledger.ExitReason) ledger.ClosedTrade {
		exit := day.Add(time.Duration(hour) * time.Hour)
		return ledger.ClosedTrade{
			ID: id, Mint: mint, Name: "Token, " + id, Symbol: "T" + id,
			EntryPrice: 0.001, ExitPrice: 0.0013, Invested: 19.9, PnL: pnl, Reason: reason,
			EntryTime: exit.Add(-5 * time.Minute), ExitTime: exit, SellSignature: "sig" + id,
		}
	}
	return []ledger.ClosedTrade{
		mk("3", "MintCCCCCCCCCCCC", 14, -2.985, ledger.ReasonStopLoss),
		mk("1", "MintAAAAAAAAAAAA", 9, 5.97, ledger.ReasonTakeProfit),
		mk("2", "MintBBBBBBBBBBBB", 9, 5.97, ledger.ReasonTakeProfit),
		mk("4", "MintAAAAAAAAAAAA", 30, 1.0, ledger.ReasonManual),
	}
}

func newTestExporter() *Exporter {
	e := NewExporter(zap.NewNop())
	e.now = func() time.Time { return time.Date(2025, 3, 2, 10, 11, 12, 0, time.UTC) }
	return e
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	path, err := newTestExporter().Export(testTrades(), Options{Format: FormatCSV, OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "trades_all_20250302_101112.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, Headers(), rows[0])
	// sorted by exit time, comma in the name survives quoting
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Token, 1", rows[1][2])
	assert.Equal(t, "4", rows[4][0])
}

func TestExportJSONWithFilters(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		Format:    FormatJSON,
		OutputDir: dir,
		Mint:      "MintAAAAAAAAAAAA",
		StartTime: day,
		EndTime:   day.Add(24 * time.Hour),
	}
	path, err := newTestExporter().Export(testTrades(), opts)
	require.NoError(t, err)
	assert.Equal(t, "trades_all_MintAAAA_20250302_101112.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		TradeCount int                  `json:"trade_count"`
		Summary    Summary              `json:"summary"`
		Trades     []ledger.ClosedTrade `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 1, doc.TradeCount)
	assert.Equal(t, "1", doc.Trades[0].ID)
	assert.Equal(t, 1, doc.Summary.TakeProfits)
}

func TestExportNoMatches(t *testing.T) {
	_, err := newTestExporter().Export(testTrades(), Options{Format: FormatCSV, OutputDir: t.TempDir(), Reason: "NOPE"})
	assert.ErrorContains(t, err, "no trades match")

	_, err = newTestExporter().Export(testTrades(), Options{Format: "xml", OutputDir: t.TempDir()})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestSummarize(t *testing.T) {
	trades := Filter(testTrades(), Options{})
	s := Summarize(trades)

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 3, s.UniqueTokens)
	assert.Equal(t, 3, s.WinCount)
	assert.Equal(t, 1, s.LossCount)
	assert.Equal(t, 2, s.TakeProfits)
	assert.Equal(t, 1, s.StopLosses)
	assert.Equal(t, 1, s.ManualExits)
	assert.InDelta(t, 75.0, s.WinRate, 1e-9)
	assert.InDelta(t, 5.97*2-2.985+1, s.TotalPnL, 1e-9)
	assert.InDelta(t, 5.97, s.BestPnL, 1e-9)
	assert.InDelta(t, -2.985, s.WorstPnL, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestDailyReport(t *testing.T) {
	dir := t.TempDir()
	e := newTestExporter()

	path, err := e.ExportDailyReport(testTrades(), day.Add(3*time.Hour), dir)
	require.NoError(t, err)
	assert.Equal(t, "daily_report_20250301.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var report DailyReport
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, 3, report.Summary.TotalTrades)
	require.Len(t, report.HourlyBreakdown, 2)
	assert.Equal(t, HourlyStats{Hour: 9, TradeCount: 2, Invested: 39.8, PnL: 11.94}, roundStats(report.HourlyBreakdown[0]))

	path, err = e.ExportDailyReport(testTrades(), day.Add(72*time.Hour), dir)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func roundStats(s HourlyStats) HourlyStats {
	round := func(v float64) float64 { return float64(int64(v*1e6+0.5)) / 1e6 }
	s.Invested = round(s.Invested)
	s.PnL = round(s.PnL)
	return s
}

func TestRecordRoundTrip(t *testing.T) {
	for _, tr := range testTrades() {
		got, err := ParseRecord(Record(tr))
		require.NoError(t, err)
		assert.Equal(t, tr.ID, got.ID)
		assert.Equal(t, tr.Reason, got.Reason)
		assert.True(t, tr.ExitTime.Equal(got.ExitTime))
		assert.InDelta(t, tr.PnL, got.PnL, 1e-6)
		assert.Equal(t, tr.EntryPrice, got.EntryPrice)
	}

	_, err := ParseRecord([]string{"short"})
	assert.Error(t, err)
	bad := Record(testTrades()[0])
	bad[6] = "abc"
	_, err = ParseRecord(bad)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestCSVJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "trades.csv")
	ctx := context.Background()

	j, err := NewCSVJournal(path, time.Hour, zap.NewNop())
	require.NoError(t, err)
	trades := testTrades()
	require.NoError(t, j.RecordTrade(ctx, trades[0]))
	require.NoError(t, j.RecordTrade(ctx, trades[1]))
	assert.ErrorIs(t, j.RecordTrade(ctx, trades[0]), storage.ErrDuplicateTrade)

	recent, err := j.RecentTrades(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "1", recent[0].ID)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	// reopening appends without a second header and remembers ids
	j, err = NewCSVJournal(path, time.Hour, zap.NewNop())
	require.NoError(t, err)
	assert.ErrorIs(t, j.RecordTrade(ctx, trades[1]), storage.ErrDuplicateTrade)
	require.NoError(t, j.RecordTrade(ctx, trades[2]))
	require.NoError(t, j.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "trade_id,"))

	all, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"3", "1", "2"}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestReadJournalMissingFile(t *testing.T) {
	trades, err := ReadJournal(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	assert.Empty(t, trades)
}
