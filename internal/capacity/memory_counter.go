package capacity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aurum-solar/core/internal/clock"
)

var errUnexpectedScriptResult = errors.New("capacity: unexpected script result shape")

type windowCounter struct {
	count     int
	resetTime time.Time
}

// MemoryCounter is an in-process Counter for tests and single-process
// deployments. A single mutex makes check-and-increment atomic,
// satisfying the same contract as RedisCounter's Lua script (spec
// §4.6, §9 Design Notes).
type MemoryCounter struct {
	mu    sync.Mutex
	data  map[string]*windowCounter
	clock clock.Clock
}

// NewMemoryCounter builds a MemoryCounter using clk for window reset
// computation.
func NewMemoryCounter(clk clock.Clock) *MemoryCounter {
	return &MemoryCounter{data: make(map[string]*windowCounter), clock: clk}
}

func (c *MemoryCounter) CheckAndIncrement(ctx context.Context, key string, window Window, limit int) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	wc, ok := c.data[key]
	if !ok || now.After(wc.resetTime) {
		wc = &windowCounter{count: 0, resetTime: now.Add(window.Duration())}
		c.data[key] = wc
	}

	if wc.count+1 > limit {
		return Result{Allowed: false, Remaining: 0, ResetTime: wc.resetTime}, nil
	}
	wc.count++
	return Result{Allowed: true, Remaining: limit - wc.count, ResetTime: wc.resetTime}, nil
}

func (c *MemoryCounter) Decrement(ctx context.Context, key string, window Window) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wc, ok := c.data[key]; ok && wc.count > 0 {
		wc.count--
	}
	return nil
}

func (c *MemoryCounter) Peek(ctx context.Context, key string, window Window) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wc, ok := c.data[key]
	if !ok {
		return 0, nil
	}
	return wc.count, nil
}
