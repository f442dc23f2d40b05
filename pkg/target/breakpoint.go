package target

import (
	"sort"
	"sync"

	"go.uber.org/atomic"
)

// Breakpoint a user breakpoint request: stable id plus the location as the
// user spelled it.
type Breakpoint struct {
	ID     uint64
	File   string
	Line   int
	Column int
}

// ResolvedBreakpoint a registry entry mirrored into one thread, together
// with the raw id CDP assigned once the location resolved to a real
// address. A verified entry always carries a raw id.
type ResolvedBreakpoint struct {
	Breakpoint
	RawID    string
	Verified bool
}

// Breakpoints sorted by id
type Breakpoints []Breakpoint

func (b Breakpoints) Len() int {
	return len(b)
}

func (b Breakpoints) Less(i, j int) bool {
	return b[i].ID < b[j].ID
}

func (b Breakpoints) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}

// BreakpointRegistry the single source of truth for breakpoint intent.
// Ids increase monotonically and are never reused within a session;
// threads mirror the registry and attach per-thread raw ids.
type BreakpointRegistry struct {
	seq *atomic.Uint64

	mu      sync.Mutex
	entries map[uint64]Breakpoint
}

func NewBreakpointRegistry() *BreakpointRegistry {
	return &BreakpointRegistry{
		seq:     atomic.NewUint64(0),
		entries: map[uint64]Breakpoint{},
	}
}

// Insert records a new request and returns it with its assigned id.
// Inserting the same location twice yields two independent entries.
func (r *BreakpointRegistry) Insert(file string, line, column int) Breakpoint {
	bp := Breakpoint{
		ID:     r.seq.Add(1) - 1,
		File:   file,
		Line:   line,
		Column: column,
	}
	r.mu.Lock()
	r.entries[bp.ID] = bp
	r.mu.Unlock()
	return bp
}

// Remove drops the entry; reports whether it existed.
func (r *BreakpointRegistry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// RemoveAllForFile drops every entry whose file equals path (or every entry
// when path is empty) and returns the removed ids.
func (r *BreakpointRegistry) RemoveAllForFile(path string) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []uint64
	for id, bp := range r.entries {
		if path == "" || bp.File == path {
			removed = append(removed, id)
			delete(r.entries, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed
}

// List snapshots the registry sorted by id.
func (r *BreakpointRegistry) List() Breakpoints {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(Breakpoints, 0, len(r.entries))
	for _, bp := range r.entries {
		out = append(out, bp)
	}
	sort.Sort(out)
	return out
}

// Has reports whether id is still wanted.
func (r *BreakpointRegistry) Has(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}
