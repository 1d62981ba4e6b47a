package solbc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-sniper/internal/blockchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// rpcServer answers every JSON-RPC call with result, echoing the request id.
func rpcServer(t *testing.T, calls *int32, result func(method string) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result(req.Method))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientRequiresNodes(t *testing.T) {
	_, err := NewClient(nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoRPCNodes)
}

func TestFailoverToNextNode(t *testing.T) {
	var badCalls, goodCalls int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&badCalls, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	good := rpcServer(t, &goodCalls, func(string) string {
		return `{"context":{"slot":1},"value":42}`
	})

	c, err := NewClient([]string{bad.URL, good.URL}, zap.NewNop())
	require.NoError(t, err)

	balance, err := c.GetBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance)
	assert.EqualValues(t, 1, atomic.LoadInt32(&badCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&goodCalls))

	// the healthy node stays current
	_, err = c.GetBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&badCalls))
}

func TestAllNodesFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer bad.Close()

	c, err := NewClient([]string{bad.URL}, zap.NewNop())
	require.NoError(t, err)
	_, err = c.GetBalance(context.Background(), solana.PublicKey{})
	assert.ErrorContains(t, err, "getBalance")
}

func TestWaitForConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		timeout time.Duration
		wantErr error
	}{
		{"confirmed", `{"slot":5,"confirmations":null,"err":null,"confirmationStatus":"confirmed"}`, 5 * time.Second, nil},
		{"failed", `{"slot":5,"confirmations":null,"err":{"InstructionError":[0,{"Custom":1}]},"confirmationStatus":"confirmed"}`, 5 * time.Second, blockchain.ErrTransactionFailed},
		{"never lands", `null`, 1500 * time.Millisecond, blockchain.ErrConfirmationTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := rpcServer(t, &calls, func(string) string {
				return `{"context":{"slot":5},"value":[` + tt.status + `]}`
			})
			c, err := NewClient([]string{srv.URL}, zap.NewNop())
			require.NoError(t, err)

			err = c.WaitForConfirmation(context.Background(), solana.Signature{1}, tt.timeout)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestWaitForConfirmationHonoursContext(t *testing.T) {
	var calls int32
	srv := rpcServer(t, &calls, func(string) string { return `{"context":{"slot":1},"value":[null]}` })
	c, err := NewClient([]string{srv.URL}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.WaitForConfirmation(ctx, solana.Signature{1}, time.Minute), context.Canceled)
}

func TestDecodeMintDecimals(t *testing.T) {
	data := make([]byte, 82)
	data[blockchain.MintDecimalsOffset] = 6
	d, err := DecodeMintDecimals(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)

	_, err = DecodeMintDecimals(make([]byte, 44))
	assert.Error(t, err)
}

func TestIsAccountNotFoundError(t *testing.T) {
	assert.False(t, IsAccountNotFoundError(nil))
	assert.True(t, IsAccountNotFoundError(ErrAccountNotFound))
	assert.True(t, IsAccountNotFoundError(fmt.Errorf("wrapped: %w", ErrAccountNotFound)))
	assert.False(t, IsAccountNotFoundError(fmt.Errorf("timeout")))
}
