package symbol

import (
	"errors"
	"fmt"
	"sync"
)

// WasmFile one loaded WebAssembly module and its debug info.
type WasmFile struct {
	ScriptID  string
	URL       string
	Container *DwarfContainer
}

// ErrDuplicateScript the registry refuses to replace an already loaded
// script id.
var ErrDuplicateScript = errors.New("symbol: script already registered")

// FileRegistry all modules loaded in a debug session, keyed by CDP script
// id. Non-wasm scripts are tracked by URL only so javascript frames in a
// stack trace keep a readable file name.
type FileRegistry struct {
	mu      sync.RWMutex
	files   map[string]*WasmFile
	order   []string
	nonWasm map[string]string
}

func NewFileRegistry() *FileRegistry {
	return &FileRegistry{
		files:   map[string]*WasmFile{},
		nonWasm: map[string]string{},
	}
}

// LoadWasm registers a module's debug info. Loading the same script id
// twice is refused so concurrent scriptParsed handling stays idempotent.
func (r *FileRegistry) LoadWasm(scriptID, url string, wasm []byte) (*WasmFile, error) {
	r.mu.Lock()
	_, ok := r.files[scriptID]
	r.mu.Unlock()
	if ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateScript, scriptID)
	}
	container, err := NewDwarfContainer(wasm)
	if err != nil {
		return nil, err
	}
	f := &WasmFile{ScriptID: scriptID, URL: url, Container: container}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[scriptID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateScript, scriptID)
	}
	r.files[scriptID] = f
	r.order = append(r.order, scriptID)
	return f, nil
}

// AddNonWasm remembers a javascript script's URL.
func (r *FileRegistry) AddNonWasm(scriptID, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nonWasm[scriptID]; !ok {
		r.nonWasm[scriptID] = url
	}
}

// Get the wasm file registered under scriptID.
func (r *FileRegistry) Get(scriptID string) (*WasmFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[scriptID]
	return f, ok
}

// Files the loaded wasm files, in load order.
func (r *FileRegistry) Files() []*WasmFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*WasmFile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.files[id])
	}
	return out
}

// Clear drops every entry; used on page navigation.
func (r *FileRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = map[string]*WasmFile{}
	r.order = nil
	r.nonWasm = map[string]string{}
}

// FindFileFromLocation maps a CDP location to a source position. For wasm
// scripts the column number is the byte offset into the module; for
// anything else a synthetic position made of the script URL and the
// 1-based CDP line keeps javascript frames presentable.
func (r *FileRegistry) FindFileFromLocation(scriptID string, lineNumber, columnNumber int) (LineInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.files[scriptID]; ok {
		return f.Container.FindLineInfo(uint64(columnNumber))
	}
	if url, ok := r.nonWasm[scriptID]; ok {
		return LineInfo{File: url, Line: lineNumber + 1}, true
	}
	return LineInfo{}, false
}

// FindAddressFromFileLocation resolves (file,line) against the loaded
// modules in insertion order, returning the first match.
func (r *FileRegistry) FindAddressFromFileLocation(file string, line int) (*WasmFile, uint64, LineInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		f := r.files[id]
		if addr, info, ok := f.Container.FindAddress(file, line); ok {
			return f, addr, info, true
		}
	}
	return nil, 0, LineInfo{}, false
}
