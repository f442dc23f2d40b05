package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`C:\build\src\Main.cpp`, "c:/build/src/Main.cpp"},
		{"/a/b/../c/./d.cpp", "/a/c/d.cpp"},
		{"./src/main.c", "src/main.c"},
		{"src//main.c", "src//main.c"},
		{"/usr/lib/../include/stdio.h", "/usr/include/stdio.h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), "input %q", tt.in)
	}
}

func TestPathMatchesSuffix(t *testing.T) {
	assert.True(t, pathMatchesSuffix("/build/src/Main.cpp", "Main.cpp"))
	assert.True(t, pathMatchesSuffix("/build/src/Main.cpp", "src/Main.cpp"))
	assert.True(t, pathMatchesSuffix("Main.cpp", "Main.cpp"))
	assert.False(t, pathMatchesSuffix("/build/src/MyMain.cpp", "Main.cpp"))
	assert.False(t, pathMatchesSuffix("Main.cpp", "/build/Main.cpp"))
}
