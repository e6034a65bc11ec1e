package enclave

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/", ""},
		{"///", ""},
		{"a", "a"},
		{"/a", "a"},
		{"a/", "a"},
		{"/a/b/c", "a/b/c"},
		{"a//b///c", "a/b/c"},
		{"//a//b//", "a/b"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanPath(tt.input), "CleanPath(%q)", tt.input)
		// Idempotent
		assert.Equal(t, tt.want, CleanPath(CleanPath(tt.input)), "CleanPath twice on %q", tt.input)
	}
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, SplitPath(""))
	assert.Nil(t, SplitPath("///"))
	assert.Equal(t, []string{"a"}, SplitPath("/a/"))
	assert.Equal(t, []string{"a", "b", "c"}, SplitPath("a//b/c"))
}

func TestParentDirectory(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a", ""},
		{"/a", ""},
		{"a/b", "a"},
		{"/a/b/c/", "a/b"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParentDirectory(tt.input), "ParentDirectory(%q)", tt.input)
	}
}

func TestIsInDirectory(t *testing.T) {
	tests := []struct {
		directory string
		path      string
		want      bool
	}{
		{"", "a", true},
		{"", "a/b", false},
		{"", "", false},
		{"a", "a/b", true},
		{"a", "a/b/c", false},
		{"a", "ab", false},
		{"a", "a", false},
		{"/a/", "/a/b", true},
		{"a/b", "a/b/c", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsInDirectory(tt.directory, tt.path),
			"IsInDirectory(%q, %q)", tt.directory, tt.path)
	}
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, "b", RelativePath("a", "a/b"))
	assert.Equal(t, "c", RelativePath("a/b", "/a/b/c"))
	assert.Equal(t, "a", RelativePath("", "a"))
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("a/b/c"))
	assert.NoError(t, ValidatePath(""))

	err := ValidatePath("a/b\x1cc")
	var storeErr *StoreError
	assert.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrInvalidArgument, storeErr.Code)
}
