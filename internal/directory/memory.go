package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is a thread-safe in-memory Directory for tests and local development.
type Memory struct {
	mu         sync.RWMutex
	providers  map[uuid.UUID]Provider
	patients   map[uuid.UUID]Patient
	facilities map[uuid.UUID]Facility
}

func NewMemory() *Memory {
	return &Memory{
		providers:  make(map[uuid.UUID]Provider),
		patients:   make(map[uuid.UUID]Patient),
		facilities: make(map[uuid.UUID]Facility),
	}
}

func (m *Memory) AddProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
}

func (m *Memory) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *Memory) AddFacility(f Facility) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facilities[f.ID] = f
}

func (m *Memory) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (m *Memory) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *Memory) GetFacility(_ context.Context, id uuid.UUID) (*Facility, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.facilities[id]
	if !ok {
		return nil, ErrFacilityNotFound
	}
	return &f, nil
}
