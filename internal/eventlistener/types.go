package eventlistener

import (
	"encoding/json"
	"time"
)

// RaydiumAMMProgram is the Raydium AMM v4 program whose logs announce new pools.
const RaydiumAMMProgram = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

// PoolInitMarker is the log fragment emitted when an AMM v4 pool is initialized.
const PoolInitMarker = "initialize2"

// Event is one successful program log notification.
type Event struct {
	Signature string
	Slot      uint64
	Logs      []string
}

// Config controls connection behaviour.
type Config struct {
	Program        string
	Commitment     string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Program:        RaydiumAMMProgram,
		Commitment:     "confirmed",
		ReconnectDelay: 5 * time.Second,
		PingInterval:   30 * time.Second,
		ReadTimeout:    90 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcMessage covers both the subscribe reply and logsNotification.
type rpcMessage struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
				Logs      []string        `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}
