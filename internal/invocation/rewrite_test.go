package invocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteForPreprocess(t *testing.T) {
	in := []string{"clang", "-c", "foo.cpp", "-o", "foo.o", "-Iinclude"}
	got := RewriteForPreprocess(in)

	assert.Equal(t, []string{
		"clang", "-D__clang_analyzer__=1", "-E", "-P", "foo.cpp", "-o", "-", "-Iinclude",
	}, got)
	// The input vector is untouched.
	assert.Equal(t, []string{"clang", "-c", "foo.cpp", "-o", "foo.o", "-Iinclude"}, in)
}

func TestRewriteLongOutputFlag(t *testing.T) {
	got := RewriteForPreprocess([]string{"clang", "--output", "foo.o", "-c", "foo.cpp"})
	assert.Equal(t, []string{
		"clang", "-D__clang_analyzer__=1", "--output", "-", "-E", "-P", "foo.cpp",
	}, got)
}

func TestRewriteWithoutCompileFlag(t *testing.T) {
	// No -c: nothing maps to -E, so no -P appears either.
	got := RewriteForPreprocess([]string{"clang", "foo.cpp"})
	assert.Equal(t, []string{"clang", "-D__clang_analyzer__=1", "foo.cpp"}, got)
}

func TestRewriteEmpty(t *testing.T) {
	assert.Empty(t, RewriteForPreprocess(nil))
}
