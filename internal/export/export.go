package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"go.uber.org/zap"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" or "json" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Options selects and places the exported trades. Zero values disable a filter.
type Options struct {
	Format    Format
	StartTime time.Time
	EndTime   time.Time
	Mint      string
	Reason    ledger.ExitReason
	OutputDir string
}

// Exporter writes closed trades to CSV or JSON files.
type Exporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("export"), now: time.Now}
}

// Export writes the trades matching opts and returns the file path.
func (e *Exporter) Export(trades []ledger.ClosedTrade, opts Options) (string, error) {
	filtered := Filter(trades, opts)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].ExitTime.Before(filtered[j].ExitTime)
	})

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(opts.OutputDir, e.filename(opts))

	var err error
	switch opts.Format {
	case FormatCSV:
		err = writeCSV(filtered, path)
	case FormatJSON:
		err = e.writeJSON(filtered, path)
	default:
		err = fmt.Errorf("unsupported format: %s", opts.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Trades exported",
		zap.String("file", path),
		zap.Int("count", len(filtered)),
		zap.String("format", string(opts.Format)))
	return path, nil
}

// Filter keeps trades that exited inside [StartTime, EndTime] and match Mint and Reason.
func Filter(trades []ledger.ClosedTrade, opts Options) []ledger.ClosedTrade {
	var out []ledger.ClosedTrade
	for _, t := range trades {
		if !opts.StartTime.IsZero() && t.ExitTime.Before(opts.StartTime) {
			continue
		}
		if !opts.EndTime.IsZero() && t.ExitTime.After(opts.EndTime) {
			continue
		}
		if opts.Mint != "" && t.Mint != opts.Mint {
			continue
		}
		if opts.Reason != "" && t.Reason != opts.Reason {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (e *Exporter) filename(opts Options) string {
	prefix := "trades_all"
	if opts.Reason != "" {
		prefix = "trades_" + strings.ToLower(string(opts.Reason))
	}
	if opts.Mint != "" {
		mint := opts.Mint
		if len(mint) > 8 {
			mint = mint[:8]
		}
		prefix += "_" + mint
	}
	return fmt.Sprintf("%s_%s.%s", prefix, e.now().Format("20060102_150405"), opts.Format)
}

// Headers is the CSV column order shared by exports and the journal.
func Headers() []string {
	return []string{"trade_id", "mint", "name", "symbol", "entry_time", "exit_time",
		"entry_price", "exit_price", "invested_usd", "pnl_usd", "reason", "sell_signature"}
}

// Record renders t in Headers order.
func Record(t ledger.ClosedTrade) []string {
	return []string{
		t.ID,
		t.Mint,
		t.Name,
		t.Symbol,
		t.EntryTime.UTC().Format(time.RFC3339Nano),
		t.ExitTime.UTC().Format(time.RFC3339Nano),
		strconv.FormatFloat(t.EntryPrice, 'g', -1, 64),
		strconv.FormatFloat(t.ExitPrice, 'g', -1, 64),
		strconv.FormatFloat(t.Invested, 'f', 6, 64),
		strconv.FormatFloat(t.PnL, 'f', 6, 64),
		string(t.Reason),
		t.SellSignature,
	}
}

// ParseRecord is the inverse of Record.
func ParseRecord(rec []string) (ledger.ClosedTrade, error) {
	if len(rec) != len(Headers()) {
		return ledger.ClosedTrade{}, fmt.Errorf("expected %d fields, got %d", len(Headers()), len(rec))
	}
	var (
		t    ledger.ClosedTrade
		errs []error
	)
	parseTime := func(s string) time.Time {
		v, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	parseFloat := func(s string) float64 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	t.ID, t.Mint, t.Name, t.Symbol = rec[0], rec[1], rec[2], rec[3]
	t.EntryTime = parseTime(rec[4])
	t.ExitTime = parseTime(rec[5])
	t.EntryPrice = parseFloat(rec[6])
	t.ExitPrice = parseFloat(rec[7])
	t.Invested = parseFloat(rec[8])
	t.PnL = parseFloat(rec[9])
	t.Reason = ledger.ExitReason(rec[10])
	t.SellSignature = rec[11]
	if len(errs) > 0 {
		return ledger.ClosedTrade{}, fmt.Errorf("trade %s: %w", t.ID, errs[0])
	}
	return t, nil
}

func writeCSV(trades []ledger.ClosedTrade, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(Headers()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, t := range trades {
		if err := w.Write(Record(t)); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func (e *Exporter) writeJSON(trades []ledger.ClosedTrade, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	data := struct {
		ExportTime time.Time            `json:"export_time"`
		TradeCount int                  `json:"trade_count"`
		Summary    Summary              `json:"summary"`
		Trades     []ledger.ClosedTrade `json:"trades"`
	}{
		ExportTime: e.now(),
		TradeCount: len(trades),
		Summary:    Summarize(trades),
		Trades:     trades,
	}
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Summary aggregates a set of closed trades.
type Summary struct {
	TotalTrades   int       `json:"total_trades"`
	UniqueTokens  int       `json:"unique_tokens"`
	WinCount      int       `json:"win_count"`
	LossCount     int       `json:"loss_count"`
	TakeProfits   int       `json:"take_profits"`
	StopLosses    int       `json:"stop_losses"`
	ManualExits   int       `json:"manual_exits"`
	TotalInvested float64   `json:"total_invested"`
	TotalPnL      float64   `json:"total_pnl"`
	AvgPnL        float64   `json:"avg_pnl"`
	BestPnL       float64   `json:"best_pnl"`
	WorstPnL      float64   `json:"worst_pnl"`
	WinRate       float64   `json:"win_rate"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

// Summarize expects trades ordered by exit time.
func Summarize(trades []ledger.ClosedTrade) Summary {
	s := Summary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}
	s.StartDate = trades[0].ExitTime
	s.EndDate = trades[len(trades)-1].ExitTime
	s.BestPnL, s.WorstPnL = trades[0].PnL, trades[0].PnL

	tokens := make(map[string]struct{})
	for _, t := range trades {
		tokens[t.Mint] = struct{}{}
		s.TotalInvested += t.Invested
		s.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			s.WinCount++
		case t.PnL < 0:
			s.LossCount++
		}
		switch t.Reason {
		case ledger.ReasonTakeProfit:
			s.TakeProfits++
		case ledger.ReasonStopLoss:
			s.StopLosses++
		case ledger.ReasonManual:
			s.ManualExits++
		}
		s.BestPnL = max(s.BestPnL, t.PnL)
		s.WorstPnL = min(s.WorstPnL, t.PnL)
	}
	s.UniqueTokens = len(tokens)
	s.WinRate = float64(s.WinCount) / float64(s.TotalTrades) * 100
	s.AvgPnL = s.TotalPnL / float64(s.TotalTrades)
	return s
}

// DailyReport is one calendar day of trading.
type DailyReport struct {
	Date            time.Time            `json:"date"`
	Summary         Summary              `json:"summary"`
	HourlyBreakdown []HourlyStats        `json:"hourly_breakdown"`
	Trades          []ledger.ClosedTrade `json:"trades"`
}

type HourlyStats struct {
	Hour       int     `json:"hour"`
	TradeCount int     `json:"trade_count"`
	Invested   float64 `json:"invested"`
	PnL        float64 `json:"pnl"`
}

// ExportDailyReport writes daily_report_YYYYMMDD.json. It returns "" when the day had no trades.
func (e *Exporter) ExportDailyReport(trades []ledger.ClosedTrade, date time.Time, outputDir string) (string, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	day := Filter(trades, Options{StartTime: start, EndTime: start.Add(24*time.Hour - time.Nanosecond)})
	if len(day) == 0 {
		e.logger.Info("No trades for daily report", zap.Time("date", start))
		return "", nil
	}
	sort.SliceStable(day, func(i, j int) bool { return day[i].ExitTime.Before(day[j].ExitTime) })

	report := DailyReport{
		Date:            start,
		Summary:         Summarize(day),
		HourlyBreakdown: hourly(day, date.Location()),
		Trades:          day,
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", start.Format("20060102")))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	e.logger.Info("Daily report exported", zap.String("file", path), zap.Int("trades", len(day)))
	return path, nil
}

func hourly(trades []ledger.ClosedTrade, loc *time.Location) []HourlyStats {
	var byHour [24]*HourlyStats
	for _, t := range trades {
		h := t.ExitTime.In(loc).Hour()
		if byHour[h] == nil {
			byHour[h] = &HourlyStats{Hour: h}
		}
		byHour[h].TradeCount++
		byHour[h].Invested += t.Invested
		byHour[h].PnL += t.PnL
	}
	var out []HourlyStats
	for _, s := range byHour {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
