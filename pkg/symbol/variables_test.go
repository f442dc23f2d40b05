package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBumpGroupDiscipline(t *testing.T) {
	// the first descent maps a root id into its own 10000-block
	g := RootGroupLocals
	bumpGroup(&g)
	assert.Equal(t, int32(10000), g)
	bumpGroup(&g)
	assert.Equal(t, int32(10001), g)

	g = RootGroupGlobals
	bumpGroup(&g)
	assert.Equal(t, int32(20000), g)
}

func TestFindVariable(t *testing.T) {
	vars := []SymbolVariable{
		{Name: "count", DisplayName: "count"},
		{Name: "y", DisplayName: "p.y"},
		{Name: "field", DisplayName: "this.field"},
	}

	require.NotNil(t, findVariable(vars, "count"))
	assert.Equal(t, "count", findVariable(vars, "count").Name)

	// gdb style arrow access folds to a dot
	require.NotNil(t, findVariable(vars, "p->y"))
	assert.Equal(t, "y", findVariable(vars, "p->y").Name)

	// implicit this
	require.NotNil(t, findVariable(vars, "field"))
	assert.Equal(t, "field", findVariable(vars, "field").Name)

	assert.Nil(t, findVariable(vars, "missing"))
}

func TestGroupTableMemoization(t *testing.T) {
	g := newGroupTable()
	key := groupKey{die: 0x42, rootID: RootGroupLocals}

	_, ok := g.lookup(key)
	assert.False(t, ok)

	vars := []SymbolVariable{{Name: "a", GroupID: RootGroupLocals}}
	g.store(key, vars)

	got, ok := g.lookup(key)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)

	// a different root id is a different enumeration
	_, ok = g.lookup(groupKey{die: 0x42, rootID: RootGroupGlobals})
	assert.False(t, ok)
}
