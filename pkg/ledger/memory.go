package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/fleetdrain/pkg/types"
)

// MemoryLedger keeps progress in a mutex-guarded map. It does not survive a
// restart and is meant for tests and single-shot runs.
type MemoryLedger struct {
	mu    sync.Mutex
	items map[string]types.DrainProgress
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{items: make(map[string]types.DrainProgress)}
}

func (m *MemoryLedger) ClaimIfAbsent(ctx context.Context, id string) (bool, error) {
	if err := checkID("ledger claim", id); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[id]; exists {
		return false, nil
	}
	m.items[id] = types.DrainProgress{Claimed: true, ClaimedAt: time.Now().UTC()}
	return true, nil
}

func (m *MemoryLedger) GetFlag(ctx context.Context, id string, flag types.Flag) (bool, error) {
	if err := checkFlag("ledger get flag", id, flag); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Flag(flag), nil
}

func (m *MemoryLedger) SetFlag(ctx context.Context, id string, flag types.Flag) error {
	if err := checkFlag("ledger set flag", id, flag); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.items[id]
	if !exists {
		return notClaimed("ledger set flag", id)
	}
	m.items[id] = p.WithFlag(flag)
	return nil
}

func (m *MemoryLedger) Progress(ctx context.Context, id string) (types.DrainProgress, error) {
	if err := checkID("ledger progress", id); err != nil {
		return types.DrainProgress{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id], nil
}

func (m *MemoryLedger) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryLedger) Close() error {
	return nil
}
