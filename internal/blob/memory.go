// SPDX-License-Identifier: MIT

package blob

import (
	"context"
	"sync"
	"time"
)

// MemoryGateway is an in-process Gateway for tests. Objects are
// registered with Put; URLs are opaque tokens.
type MemoryGateway struct {
	mu      sync.Mutex
	objects map[string]int64
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{objects: make(map[string]int64)}
}

// Put registers an object as uploaded.
func (m *MemoryGateway) Put(objectPath string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectPath] = size
}

// Delete removes an object, simulating blob loss.
func (m *MemoryGateway) Delete(objectPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectPath)
}

func (m *MemoryGateway) GenerateWriteURL(_ context.Context, objectPath, _ string, ttl time.Duration) (string, time.Time, error) {
	return "memory://upload/" + objectPath, time.Now().Add(ttl), nil
}

func (m *MemoryGateway) Exists(_ context.Context, objectPath string) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	size, ok := m.objects[objectPath]
	return ok, size, nil
}

func (m *MemoryGateway) URI(objectPath string) string {
	return "memory://" + objectPath
}
