package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registryWith(files map[string]*WasmFile, order []string) *FileRegistry {
	r := NewFileRegistry()
	for id, f := range files {
		r.files[id] = f
	}
	r.order = order
	return r
}

func TestRegistryRefusesDuplicateLoad(t *testing.T) {
	r := registryWith(map[string]*WasmFile{
		"s1": {ScriptID: "s1", Container: rowContainer(testRows())},
	}, []string{"s1"})

	_, err := r.LoadWasm("s1", "a.wasm", nil)
	assert.ErrorIs(t, err, ErrDuplicateScript)
}

func TestRegistryLoadRejectsModuleWithoutSymbols(t *testing.T) {
	r := NewFileRegistry()
	mod := buildModule(customSection("producers", []byte("clang")))
	_, err := r.LoadWasm("s1", "a.wasm", mod)
	assert.ErrorIs(t, err, ErrNoSymbols)
}

func TestRegistryFindFileFromLocation(t *testing.T) {
	r := registryWith(map[string]*WasmFile{
		"s1": {ScriptID: "s1", Container: rowContainer(testRows())},
	}, []string{"s1"})
	r.AddNonWasm("js1", "http://localhost/app.js")

	info, ok := r.FindFileFromLocation("s1", 0, 0x18)
	require.True(t, ok)
	assert.Equal(t, 4, info.Line)

	// javascript scripts come back as URL plus 1-based line
	info, ok = r.FindFileFromLocation("js1", 10, 3)
	require.True(t, ok)
	assert.Equal(t, "http://localhost/app.js", info.File)
	assert.Equal(t, 11, info.Line)

	_, ok = r.FindFileFromLocation("unknown", 0, 0)
	assert.False(t, ok)
}

func TestRegistryFindAddressInsertionOrder(t *testing.T) {
	first := rowContainer([]lineRow{{addr: 0x10, file: "/src/shared.c", line: 1}})
	second := rowContainer([]lineRow{{addr: 0x90, file: "/src/shared.c", line: 1}})
	r := registryWith(map[string]*WasmFile{
		"s1": {ScriptID: "s1", Container: first},
		"s2": {ScriptID: "s2", Container: second},
	}, []string{"s1", "s2"})

	f, addr, _, ok := r.FindAddressFromFileLocation("shared.c", 1)
	require.True(t, ok)
	assert.Equal(t, "s1", f.ScriptID)
	assert.Equal(t, uint64(0x10), addr)
}

func TestRegistryClear(t *testing.T) {
	r := registryWith(map[string]*WasmFile{
		"s1": {ScriptID: "s1", Container: rowContainer(testRows())},
	}, []string{"s1"})
	r.AddNonWasm("js1", "http://x/app.js")

	r.Clear()
	assert.Empty(t, r.Files())
	_, ok := r.FindFileFromLocation("js1", 1, 1)
	assert.False(t, ok)

	// the cleared registry still parses new loads; this module is refused
	// because it carries no debug info
	_, err := r.LoadWasm("s1-new", "a.wasm", buildModule(customSection("producers", nil)))
	assert.Error(t, err) // still needs real debug info
}
