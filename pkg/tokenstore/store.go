// Package tokenstore caches session tokens per origin so a client can
// resume its session across process restarts.
package tokenstore

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when no token is cached for the origin.
var ErrNotFound = errors.New("no token cached for origin")

// Store is a per-origin token cache. Origin is the host:port part of the
// endpoint URL; tokens from different backends never collide.
type Store interface {
	Load(origin string) (string, error)
	Save(origin, token string) error
	Close() error
}

// Memory is an in-process Store. It satisfies hosts that disable
// persistence, and keeps tests free of disk state.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]string)}
}

func (m *Memory) Load(origin string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[origin]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (m *Memory) Save(origin, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[origin] = token
	return nil
}

func (m *Memory) Close() error {
	return nil
}
