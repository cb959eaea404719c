package directory

import (
	"context"
	"sort"
	"sync"
)

// MemoryService keeps provisioning in memory. Used by tests and as the
// fallback when no database path is configured.
type MemoryService struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

func NewMemoryService() *MemoryService {
	return &MemoryService{devices: make(map[string]*Device)}
}

func (m *MemoryService) LookupDevice(_ context.Context, name string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dev, ok := m.devices[name]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *dev
	return &copied, nil
}

func (m *MemoryService) SaveDevice(_ context.Context, dev *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *dev
	m.devices[dev.Name] = &copied
	return nil
}

func (m *MemoryService) DeleteDevice(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[name]; !ok {
		return ErrNotFound
	}
	delete(m.devices, name)
	return nil
}

func (m *MemoryService) ListDevices(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.devices))
	for n := range m.devices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryService) Close() error { return nil }
