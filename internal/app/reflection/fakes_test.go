package reflection

import (
	"context"
	"sync"

	"github.com/moodi-app/moodi/internal/domain"
)

// fakeLLM returns canned responses in order; the last one repeats.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []domain.ChatRequest
}

func (f *fakeLLM) Complete(_ context.Context, req domain.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeModerator struct {
	flagged bool
	err     error
	calls   int
}

func (f *fakeModerator) Moderate(context.Context, string) (bool, error) {
	f.calls++
	return f.flagged, f.err
}

type memCache struct {
	mu    sync.Mutex
	items map[string]domain.Artifact
}

func newMemCache() *memCache { return &memCache{items: make(map[string]domain.Artifact)} }

func (c *memCache) Get(_ context.Context, key string) (domain.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.items[key]
	if !ok {
		return domain.Artifact{}, domain.ErrCacheMiss
	}
	return a, nil
}

func (c *memCache) Set(_ context.Context, key string, a domain.Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = a
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }
