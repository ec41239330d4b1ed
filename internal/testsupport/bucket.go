package testsupport

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"videopipe/internal/publish"
)

// ErrInjected is returned by MemoryBucket for scripted failures.
var ErrInjected = errors.New("injected storage failure")

// MemoryBucket is an in-memory publish.Bucket that records upload order and
// supports scripted failures.
type MemoryBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	puts     []string
	failures map[string]int
	failAll  error
	// PutDelay blocks each put until it elapses or the context ends.
	PutDelay time.Duration
	// OnPut runs after an object is stored, outside the lock.
	OnPut func(key string)
}

var _ publish.Bucket = (*MemoryBucket)(nil)

// NewMemoryBucket returns an empty bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{
		objects:  make(map[string][]byte),
		types:    make(map[string]string),
		failures: make(map[string]int),
	}
}

// FailPut makes the next n puts of keys ending in suffix fail.
func (b *MemoryBucket) FailPut(suffix string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[suffix] = n
}

// FailAll makes every put fail with err until cleared with nil.
func (b *MemoryBucket) FailAll(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAll = err
}

// PutFile implements publish.Bucket.
func (b *MemoryBucket) PutFile(ctx context.Context, key, path, contentType string) error {
	if b.PutDelay > 0 {
		timer := time.NewTimer(b.PutDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.failAll != nil {
		err := b.failAll
		b.mu.Unlock()
		return err
	}
	for suffix, remaining := range b.failures {
		if remaining > 0 && strings.HasSuffix(key, suffix) {
			b.failures[suffix] = remaining - 1
			b.mu.Unlock()
			return ErrInjected
		}
	}
	b.objects[key] = data
	b.types[key] = contentType
	b.puts = append(b.puts, key)
	hook := b.OnPut
	b.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return nil
}

// List implements publish.Bucket.
func (b *MemoryBucket) List(ctx context.Context, prefix string) ([]publish.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publish.ObjectInfo
	for key, data := range b.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, publish.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Remove implements publish.Bucket.
func (b *MemoryBucket) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	delete(b.types, key)
	return nil
}

// Keys returns stored keys in sorted order.
func (b *MemoryBucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is currently stored.
func (b *MemoryBucket) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// Puts returns every successful put in order, including overwrites.
func (b *MemoryBucket) Puts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.puts...)
}

// ContentType returns the content type recorded for key.
func (b *MemoryBucket) ContentType(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.types[key]
}
