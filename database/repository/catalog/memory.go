package catalogRepo

import (
	"context"
	"sort"
	"sync"
)

// MemoryServiceCatalog maps service ids to vendor ids in process.
type MemoryServiceCatalog struct {
	mu       sync.RWMutex
	vendorOf map[string]string
}

func NewMemoryServiceCatalog() *MemoryServiceCatalog {
	return &MemoryServiceCatalog{vendorOf: make(map[string]string)}
}

func (m *MemoryServiceCatalog) Register(serviceID, vendorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendorOf[serviceID] = vendorID
}

func (m *MemoryServiceCatalog) VendorOf(_ context.Context, serviceID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vendorOf[serviceID]
	if !ok {
		return "", ErrServiceNotFound
	}
	return v, nil
}

func (m *MemoryServiceCatalog) ServiceIDsByVendor(_ context.Context, vendorID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for s, v := range m.vendorOf {
		if v == vendorID {
			ids = append(ids, s)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
