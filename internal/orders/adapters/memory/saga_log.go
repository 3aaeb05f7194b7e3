package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// SagaLog keeps stage transitions in memory.
type SagaLog struct {
	mu      sync.Mutex
	entries []ports.SagaLogEntry
}

func NewSagaLog() *SagaLog {
	return &SagaLog{}
}

func (l *SagaLog) Append(_ context.Context, entry ports.SagaLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns the transitions recorded for sagaID in append order.
func (l *SagaLog) Entries(sagaID string) []ports.SagaLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []ports.SagaLogEntry
	for _, entry := range l.entries {
		if entry.SagaID == sagaID {
			result = append(result, entry)
		}
	}
	return result
}
