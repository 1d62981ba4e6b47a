package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogBufferConcurrentAccess(t *testing.T) {
	buffer, err := NewLogBuffer(100, filepath.Join(t.TempDir(), "spill.jsonl"))
	require.NoError(t, err)
	defer buffer.Close()

	var wg sync.WaitGroup
	numGoroutines, logsPerGoroutine := 10, 100
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < logsPerGoroutine; j++ {
				buffer.Add(fmt.Sprintf("goroutine %d iteration %d", id, j))
				_ = buffer.Lines(10)
			}
		}(i)
	}
	wg.Wait()

	total, spilled := buffer.GetStats()
	assert.Equal(t, uint64(numGoroutines*logsPerGoroutine), total)
	assert.Equal(t, total-100, spilled)
	assert.Equal(t, 100, buffer.Len())
}

func TestLogBufferKeepsMostRecent(t *testing.T) {
	spillPath := filepath.Join(t.TempDir(), "ring.jsonl")
	buffer, err := NewLogBuffer(5, spillPath)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		buffer.Add(fmt.Sprintf("Log %d", i))
	}

	assert.Equal(t, []string{"Log 7", "Log 8", "Log 9", "Log 10", "Log 11"}, buffer.Lines(0))
	assert.Equal(t, []string{"Log 10", "Log 11"}, buffer.Lines(2))
	assert.Len(t, buffer.Lines(50), 5)
	require.NoError(t, buffer.Close())

	f, err := os.Open(spillPath)
	require.NoError(t, err)
	defer f.Close()

	var spilled []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		spilled = append(spilled, entry.Line)
	}
	assert.Equal(t, []string{"Log 0", "Log 1", "Log 2", "Log 3", "Log 4", "Log 5", "Log 6"}, spilled)
}

func TestLogBufferBeforeWrap(t *testing.T) {
	buffer, err := NewLogBuffer(10, "")
	require.NoError(t, err)
	buffer.Add("a")
	buffer.Add("b")
	assert.Equal(t, []string{"a", "b"}, buffer.Lines(0))
	assert.Equal(t, []string{"b"}, buffer.Lines(1))
}

func TestLogBufferSinkAndWriter(t *testing.T) {
	buffer, err := NewLogBuffer(10, "")
	require.NoError(t, err)

	var got []string
	buffer.SetSink(func(line string) { got = append(got, line) })

	n, err := buffer.Write([]byte("first\nsecond\n"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestLoggerMirrorsIntoBuffer(t *testing.T) {
	buffer, err := NewLogBuffer(10, "")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Console = false
	cfg.LogFile = filepath.Join(t.TempDir(), "sniper.log")
	l := New(cfg, buffer)

	l.Info("[BUY] Bought token", zap.String("mint", "abc"))
	l.Debug("hidden")
	require.NoError(t, l.Sync())

	lines := buffer.Lines(0)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[0], "[BUY] Bought token")
	assert.Contains(t, lines[0], `"mint": "abc"`)

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"[BUY] Bought token"`)
}

func TestWithOperationAddsCorrelationID(t *testing.T) {
	buffer, err := NewLogBuffer(10, "")
	require.NoError(t, err)
	l := New(Config{}, buffer)

	WithOperation(l, "manual_buy").Info("start")
	lines := buffer.Lines(0)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"operation": "manual_buy"`)
	assert.Contains(t, lines[0], "correlation_id")
}

func TestShortenAddress(t *testing.T) {
	assert.Equal(t, "So11...1112", ShortenAddress("So11111111111111111111111111111111111111112"))
	assert.Equal(t, "short", ShortenAddress("short"))
}
