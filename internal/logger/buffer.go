package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogEntry is a line evicted from the ring, as written to the spill file.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
}

// LogBuffer is a bounded ring of log lines. Evicted lines are appended to an
// optional JSONL spill file. It implements io.Writer so a zap core can feed it.
type LogBuffer struct {
	mu          sync.Mutex
	ring        []string
	maxSize     int
	next        int
	count       int
	spillFile   *os.File
	spillWriter *bufio.Writer
	sink        func(string)

	// Stats
	totalEntries   uint64
	spilledEntries uint64
}

// NewLogBuffer creates a buffer holding maxSize lines. An empty spillFilePath
// discards evicted lines.
func NewLogBuffer(maxSize int, spillFilePath string) (*LogBuffer, error) {
	if maxSize <= 0 {
		maxSize = 5000
	}
	lb := &LogBuffer{
		ring:    make([]string, maxSize),
		maxSize: maxSize,
	}
	if spillFilePath == "" {
		return lb, nil
	}

	if err := os.MkdirAll(filepath.Dir(spillFilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	spillFile, err := os.OpenFile(spillFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open spill file: %w", err)
	}
	lb.spillFile = spillFile
	lb.spillWriter = bufio.NewWriter(spillFile)
	return lb, nil
}

// SetSink registers a callback invoked with every added line, outside the lock.
func (lb *LogBuffer) SetSink(sink func(string)) {
	lb.mu.Lock()
	lb.sink = sink
	lb.mu.Unlock()
}

// Add appends one line, evicting the oldest when full.
func (lb *LogBuffer) Add(line string) {
	lb.mu.Lock()
	if lb.count == lb.maxSize {
		lb.spill(lb.ring[lb.next])
	} else {
		lb.count++
	}
	lb.ring[lb.next] = line
	lb.next = (lb.next + 1) % lb.maxSize
	lb.totalEntries++
	sink := lb.sink
	lb.mu.Unlock()

	if sink != nil {
		sink(line)
	}
}

// Write splits p into lines and adds each.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		lb.Add(strings.TrimRight(string(line), "\r"))
	}
	return len(p), nil
}

// Sync flushes the spill file.
func (lb *LogBuffer) Sync() error {
	return lb.Flush()
}

func (lb *LogBuffer) spill(line string) {
	lb.spilledEntries++
	if lb.spillWriter == nil {
		return
	}
	data, err := json.Marshal(LogEntry{Timestamp: time.Now(), Line: line})
	if err != nil {
		return
	}
	_, _ = lb.spillWriter.Write(append(data, '\n'))
}

// Lines returns up to n most recent lines, oldest first. n <= 0 returns all.
func (lb *LogBuffer) Lines(n int) []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if n <= 0 || n > lb.count {
		n = lb.count
	}
	out := make([]string, n)
	start := (lb.next - n + lb.maxSize) % lb.maxSize
	for i := 0; i < n; i++ {
		out[i] = lb.ring[(start+i)%lb.maxSize]
	}
	return out
}

// Len returns the number of lines held in memory.
func (lb *LogBuffer) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.count
}

// Flush writes buffered spill data to disk.
func (lb *LogBuffer) Flush() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.spillWriter == nil {
		return nil
	}
	if err := lb.spillWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill writer: %w", err)
	}
	return nil
}

// Close flushes and closes the spill file. Lines in memory are kept.
func (lb *LogBuffer) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.spillFile == nil {
		return nil
	}
	if err := lb.spillWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush during close: %w", err)
	}
	err := lb.spillFile.Close()
	lb.spillFile, lb.spillWriter = nil, nil
	return err
}

// GetStats returns buffer statistics
func (lb *LogBuffer) GetStats() (total, spilled uint64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.totalEntries, lb.spilledEntries
}
