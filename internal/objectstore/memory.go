package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nvoxland/bundlebase/internal/bberrors"
)

// Memory is the memory:/// backed Store used by tests (spec §6): a
// single process-wide in-memory map keyed by the full url, so that
// repeated Open(sameURL) calls observe the same data — the in-memory
// analogue of a shared bucket.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var (
	sharedMemoryOnce  sync.Once
	sharedMemoryStoreInst *Memory
)

// sharedMemoryStore returns the process-wide memory store singleton.
// All memory:/// urls live in one flat namespace, matching how the
// scheme is documented in spec §6 ("memory:///… urls used by tests").
func sharedMemoryStore() *Memory {
	sharedMemoryOnce.Do(func() {
		sharedMemoryStoreInst = &Memory{data: map[string][]byte{}}
	})
	return sharedMemoryStoreInst
}

// ResetMemoryStore clears all memory:/// data. Exposed for test isolation.
func ResetMemoryStore() {
	m := sharedMemoryStore()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = map[string][]byte{}
}

func (m *Memory) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, bberrors.New(bberrors.CanceledKind, "get canceled")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[url]
	if !ok {
		return nil, bberrors.NotFound("no object at %q", url)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *Memory) Put(ctx context.Context, url string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return bberrors.New(bberrors.CanceledKind, "put canceled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[url] = cp
	return nil
}

func (m *Memory) PutIfAbsent(ctx context.Context, url string, data []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, bberrors.New(bberrors.CanceledKind, "put_if_absent canceled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[url]; exists {
		return false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[url] = cp
	return true, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, bberrors.New(bberrors.CanceledKind, "list canceled")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			results = append(results, k)
		}
	}
	sort.Strings(results)
	return results, nil
}

func (m *Memory) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return bberrors.New(bberrors.CanceledKind, "delete canceled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, url)
	return nil
}
