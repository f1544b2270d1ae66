package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

// MemoryGuard is the single-process CommandGuard used when Redis is off.
type MemoryGuard struct {
	mu     sync.Mutex
	held   map[string]struct{}
	tokens map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		held:   make(map[string]struct{}),
		tokens: make(map[string]struct{}),
	}
}

func (g *MemoryGuard) Lock(ctx context.Context, keys ...string) (func(context.Context) error, error) {
	keys = normalizeKeys(keys)

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, key := range keys {
		if _, busy := g.held[key]; busy {
			return nil, fmt.Errorf("%w: %s", domain.ErrBusy, key)
		}
	}
	for _, key := range keys {
		g.held[key] = struct{}{}
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for _, key := range keys {
				delete(g.held, key)
			}
		})
		return nil
	}, nil
}

func (g *MemoryGuard) Remember(ctx context.Context, token string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, seen := g.tokens[token]; seen {
		return false, nil
	}
	g.tokens[token] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Forget(ctx context.Context, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tokens, token)
	return nil
}
