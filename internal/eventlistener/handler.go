// internal/eventlistener/handler.go
package eventlistener

import (
	"strings"

	"go.uber.org/zap"
)

// IsPoolInitialization reports whether logs contain the pool init marker.
func IsPoolInitialization(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, PoolInitMarker) {
			return true
		}
	}
	return false
}

// TriggerOnPoolInit returns a handler that calls trigger for every new pool.
func TriggerOnPoolInit(trigger func(), logger *zap.Logger) func(Event) {
	return func(event Event) {
		if !IsPoolInitialization(event.Logs) {
			return
		}
		logger.Info("[POLL] New pool initialized, triggering discovery",
			zap.String("signature", event.Signature),
			zap.Uint64("slot", event.Slot))
		trigger()
	}
}
