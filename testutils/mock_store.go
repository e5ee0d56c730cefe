package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/config"
	"github.com/quantfold/strata/store"
	"github.com/quantfold/strata/types"
)

// MockStore is the in-memory store.Store used by scheduler and lifecycle
// tests.
type MockStore struct {
	mu        sync.Mutex
	instances map[int64]*store.Instance
	runLogs   map[int64][]types.RunLogEntry
	trades    map[int64][]types.Trade
	nextID    int64
	nextLogID int64
}

// NewMockStore returns an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		instances: make(map[int64]*store.Instance),
		runLogs:   make(map[int64][]types.RunLogEntry),
		trades:    make(map[int64][]types.Trade),
	}
}

func (s *MockStore) CreateInstance(ctx context.Context, inst *store.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	inst.ID = s.nextID
	now := time.Now().UTC()
	inst.CreatedAt, inst.UpdatedAt = now, now
	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *MockStore) Instance(ctx context.Context, id int64) (*store.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	cp := *inst
	return &cp, nil
}

func (s *MockStore) Instances(ctx context.Context) ([]*store.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Instance, 0, len(s.instances))
	for id := int64(1); id <= s.nextID; id++ {
		if inst, ok := s.instances[id]; ok {
			cp := *inst
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MockStore) UpdateInstanceStatus(ctx context.Context, id int64, status types.InstanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	inst.Status = status
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MockStore) UpdateInstanceConfig(ctx context.Context, id int64, cfg config.InstanceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	inst.Config = cfg
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MockStore) DeleteInstance(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; !ok {
		return errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	delete(s.instances, id)
	delete(s.runLogs, id)
	delete(s.trades, id)
	return nil
}

func (s *MockStore) SavePosition(ctx context.Context, id int64, pos *types.OpenPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	if pos == nil {
		inst.Position = nil
	} else {
		cp := *pos
		inst.Position = &cp
	}
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MockStore) AppendRunLog(ctx context.Context, entry *types.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	entry.ID = s.nextLogID
	s.runLogs[entry.InstanceID] = append(s.runLogs[entry.InstanceID], *entry)
	return nil
}

func (s *MockStore) UpdateRunLog(ctx context.Context, entry *types.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.runLogs[entry.InstanceID]
	for i := range logs {
		if logs[i].ID == entry.ID {
			logs[i] = *entry
			return nil
		}
	}
	return errors.Errorf("run log %d not found", entry.ID)
}

func (s *MockStore) RunLogs(ctx context.Context, instanceID int64, limit int) ([]types.RunLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.runLogs[instanceID]
	out := make([]types.RunLogEntry, len(logs))
	copy(out, logs)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MockStore) AppendTrade(ctx context.Context, instanceID int64, trade types.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[instanceID] = append(s.trades[instanceID], trade)
	return nil
}

func (s *MockStore) Trades(ctx context.Context, instanceID int64) ([]types.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Trade, len(s.trades[instanceID]))
	copy(out, s.trades[instanceID])
	return out, nil
}
