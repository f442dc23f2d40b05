package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakpointRegistryMonotonicIDs(t *testing.T) {
	r := NewBreakpointRegistry()

	a := r.Insert("main.c", 4, 0)
	b := r.Insert("main.c", 4, 0)
	c := r.Insert("util.c", 9, 0)

	assert.Equal(t, uint64(0), a.ID)
	assert.Less(t, a.ID, b.ID)
	assert.Less(t, b.ID, c.ID)

	// same location twice: two distinct, independently removable entries
	assert.True(t, r.Remove(a.ID))
	assert.True(t, r.Has(b.ID))
	assert.True(t, r.Remove(b.ID))
	assert.False(t, r.Remove(b.ID))
}

func TestBreakpointRegistryIDsNeverReused(t *testing.T) {
	r := NewBreakpointRegistry()
	a := r.Insert("main.c", 1, 0)
	r.Remove(a.ID)
	b := r.Insert("main.c", 1, 0)
	assert.Greater(t, b.ID, a.ID)
}

func TestBreakpointRegistryRemoveAllForFile(t *testing.T) {
	r := NewBreakpointRegistry()
	r.Insert("main.c", 1, 0)
	r.Insert("main.c", 2, 0)
	other := r.Insert("util.c", 3, 0)

	removed := r.RemoveAllForFile("main.c")
	require.Len(t, removed, 2)
	assert.Equal(t, []uint64{0, 1}, removed)

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)

	// empty path clears everything
	removed = r.RemoveAllForFile("")
	assert.Len(t, removed, 1)
	assert.Empty(t, r.List())
}

func TestBreakpointRegistryListSorted(t *testing.T) {
	r := NewBreakpointRegistry()
	for i := 0; i < 5; i++ {
		r.Insert("main.c", i, 0)
	}
	list := r.List()
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func TestParseFileLine(t *testing.T) {
	file, line, err := ParseFileLine("Main.cpp:4")
	require.NoError(t, err)
	assert.Equal(t, "Main.cpp", file)
	assert.Equal(t, 4, line)

	// windows drive letters keep their colon
	file, line, err = ParseFileLine(`c:/src/Main.cpp:12`)
	require.NoError(t, err)
	assert.Equal(t, "c:/src/Main.cpp", file)
	assert.Equal(t, 12, line)

	_, _, err = ParseFileLine("Main.cpp")
	assert.Error(t, err)
	_, _, err = ParseFileLine("Main.cpp:")
	assert.Error(t, err)
	_, _, err = ParseFileLine("Main.cpp:four")
	assert.Error(t, err)
}
