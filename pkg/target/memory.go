package target

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/hitzhangjie/wadbg/pkg/cdp"
)

// MemoryEvaluator reads the debuggee's linear memory through
// Debugger.evaluateOnCallFrame. Fetched ranges are cached for the lifetime
// of one paused state, and concurrent requests for the same range share a
// single in-flight CDP call.
type MemoryEvaluator struct {
	dbg         cdp.Debugger
	callFrameID string

	mu       sync.Mutex
	cache    map[memKey][]byte
	inflight map[memKey]chan struct{}
}

type memKey struct {
	addr uint64
	size int
}

func NewMemoryEvaluator(dbg cdp.Debugger, callFrameID string) *MemoryEvaluator {
	return &MemoryEvaluator{
		dbg:         dbg,
		callFrameID: callFrameID,
		cache:       map[memKey][]byte{},
		inflight:    map[memKey]chan struct{}{},
	}
}

// Read returns size bytes at addr, fetching at most once per key.
func (m *MemoryEvaluator) Read(ctx context.Context, addr uint64, size int) ([]byte, error) {
	key := memKey{addr: addr, size: size}
	for {
		m.mu.Lock()
		if data, ok := m.cache[key]; ok {
			m.mu.Unlock()
			return data, nil
		}
		if wait, ok := m.inflight[key]; ok {
			m.mu.Unlock()
			select {
			case <-wait:
				continue // cache or retry
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		m.inflight[key] = done
		m.mu.Unlock()

		data, err := m.fetch(ctx, addr, size)

		m.mu.Lock()
		delete(m.inflight, key)
		if err == nil {
			m.cache[key] = data
		}
		m.mu.Unlock()
		close(done)
		return data, err
	}
}

func (m *MemoryEvaluator) fetch(ctx context.Context, addr uint64, size int) ([]byte, error) {
	expr := fmt.Sprintf("new Uint8Array(memories[0].buffer).subarray(%d, %d)", addr, addr+uint64(size))
	obj, err := m.dbg.EvaluateOnCallFrame(ctx, m.callFrameID, expr)
	if err != nil {
		return nil, err
	}
	data, err := bytesFromRemote(obj, size)
	if err != nil {
		return nil, fmt.Errorf("target: memory read at %#x: %w", addr, err)
	}
	return data, nil
}

// bytesFromRemote decodes the by-value serialization of a Uint8Array, which
// arrives as an object keyed by decimal indices.
func bytesFromRemote(obj cdp.RemoteObject, size int) ([]byte, error) {
	switch v := obj.Value.(type) {
	case map[string]any:
		keys := make([]int, 0, len(v))
		for k := range v {
			i, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			keys = append(keys, i)
		}
		sort.Ints(keys)
		data := make([]byte, 0, len(keys))
		for _, i := range keys {
			f, ok := v[strconv.Itoa(i)].(float64)
			if !ok {
				return nil, fmt.Errorf("index %d is not a number", i)
			}
			data = append(data, byte(f))
		}
		if len(data) < size {
			return nil, fmt.Errorf("short read: %d of %d bytes", len(data), size)
		}
		return data[:size], nil
	case []any:
		data := make([]byte, 0, len(v))
		for _, e := range v {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("array element is not a number")
			}
			data = append(data, byte(f))
		}
		if len(data) < size {
			return nil, fmt.Errorf("short read: %d of %d bytes", len(data), size)
		}
		return data[:size], nil
	}
	return nil, fmt.Errorf("unexpected value shape %T", obj.Value)
}
