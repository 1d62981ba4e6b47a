package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/storage"
	"go.uber.org/zap"
)

// CSVJournal appends closed trades to a CSV file and flushes periodically.
// It is safe for concurrent use.
type CSVJournal struct {
	mu     sync.Mutex
	writer *csv.Writer
	file   *os.File
	path   string
	ids    map[string]struct{}
	logger *zap.Logger

	ticker    *time.Ticker
	done      chan struct{}
	closeOnce sync.Once

	written uint64
	flushes uint64
}

var _ storage.TradeJournal = (*CSVJournal)(nil)

// NewCSVJournal opens path for appending, writing the header to a new file.
func NewCSVJournal(path string, flushInterval time.Duration, logger *zap.Logger) (*CSVJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	existing, err := ReadJournal(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	j := &CSVJournal{
		writer: csv.NewWriter(file),
		file:   file,
		path:   path,
		ids:    make(map[string]struct{}, len(existing)),
		logger: logger.Named("journal"),
		ticker: time.NewTicker(flushInterval),
		done:   make(chan struct{}),
	}
	for _, t := range existing {
		j.ids[t.ID] = struct{}{}
	}

	if stat.Size() == 0 {
		if err := j.writer.Write(Headers()); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		j.writer.Flush()
	}

	go j.periodicFlush()
	return j, nil
}

// RecordTrade buffers one row. Already recorded ids return storage.ErrDuplicateTrade.
func (j *CSVJournal) RecordTrade(_ context.Context, t ledger.ClosedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.ids[t.ID]; ok {
		return storage.ErrDuplicateTrade
	}
	if err := j.writer.Write(Record(t)); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	j.ids[t.ID] = struct{}{}
	j.written++
	return nil
}

// RecentTrades flushes and returns up to limit trades, newest first.
func (j *CSVJournal) RecentTrades(_ context.Context, limit int) ([]ledger.ClosedTrade, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	trades, err := ReadJournal(j.path)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.ClosedTrade, 0, min(limit, len(trades)))
	for i := len(trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, trades[i])
	}
	return out, nil
}

func (j *CSVJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	j.flushes++
	return nil
}

func (j *CSVJournal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Error("Failed to flush trade journal", zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

// Close flushes and closes the file.
func (j *CSVJournal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		close(j.done)
		j.ticker.Stop()

		j.mu.Lock()
		defer j.mu.Unlock()
		j.writer.Flush()
		err = errors.Join(j.writer.Error(), j.file.Close())
		j.logger.Debug("Trade journal closed",
			zap.String("file", j.path),
			zap.Uint64("written", j.written),
			zap.Uint64("flushes", j.flushes))
	})
	return err
}

// ReadJournal parses a journal file in append order. A missing file yields no trades.
func ReadJournal(path string) ([]ledger.ClosedTrade, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(Headers())
	var trades []ledger.ClosedTrade
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			return trades, nil
		}
		if err != nil {
			return nil, fmt.Errorf("journal %s: %w", path, err)
		}
		if line == 1 && rec[0] == Headers()[0] {
			continue
		}
		t, err := ParseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("journal %s line %d: %w", path, line, err)
		}
		trades = append(trades, t)
	}
}
