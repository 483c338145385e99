package highlight

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "foo", normalizePath("a/foo"))
	assert.Equal(t, "foo", normalizePath("b/foo"))
	assert.Equal(t, "foo", normalizePath("foo"))
}

func TestPathFromLine(t *testing.T) {
	tests := []struct {
		line   string
		want   string
		wantOK bool
	}{
		{line: "other"},
		{line: "diff --git"},
		{line: "diff --git ", wantOK: true},
		{line: "diff --git a/foo b/foo", want: "foo", wantOK: true},
		{line: "diff --git a/old.go b/new.go", want: "new.go", wantOK: true},
		{line: "diff --git \"a/foo bar\" \"b/foo bar\"", want: "foo bar", wantOK: true},
	}
	for _, tc := range tests {
		got, ok := PathFromLine(tc.line)
		assert.Equal(t, tc.wantOK, ok, tc.line)
		if ok {
			assert.Equal(t, tc.want, got, tc.line)
		}
	}
}

func TestLineCode(t *testing.T) {
	tests := []struct {
		line      string
		wantCode  string
		wantMatch bool
	}{
		{line: ""},
		{line: "diff --git a/x b/x"},
		{line: "+foo", wantCode: "foo", wantMatch: true},
		{line: "-bar", wantCode: "bar", wantMatch: true},
		{line: " baz", wantCode: "baz", wantMatch: true},
		{line: "+++ b/x"},
		{line: "--- a/x"},
		{line: "\\ No newline at end of file"},
	}
	for _, tc := range tests {
		code, ok := LineCode(tc.line)
		assert.Equal(t, tc.wantMatch, ok, tc.line)
		assert.Equal(t, tc.wantCode, code, tc.line)
	}
}

const sampleDiff = `diff --git a/main.go b/main.go
index 0000000..1111111 100644
--- a/main.go
+++ b/main.go
@@ -1,2 +1,2 @@
 package main
-var x = 1
+var x = 2
`

func TestDiffDisabledCopiesInput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(DefaultStyle, false, true).Diff(&buf, sampleDiff))
	assert.Equal(t, sampleDiff, buf.String())
}

func TestDiffColoursLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(DefaultStyle, true, true).Diff(&buf, sampleDiff))
	out := buf.String()
	assert.Contains(t, out, "\x1b[")
	assert.Equal(t, strings.Count(sampleDiff, "\n"), strings.Count(out, "\n"))
	assert.Contains(t, out, "diff --git a/main.go b/main.go")
}

func TestDiffWithoutSyntaxKeepsCode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New("no-such-style", true, false).Diff(&buf, sampleDiff))
	assert.Contains(t, buf.String(), "+var x = 2")
	assert.Contains(t, buf.String(), "-var x = 1")
}
