package credhelper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want Version
		ok   bool
	}{
		{name: "empty", in: ""},
		{name: "plain", in: "git version 2.44.0\n", want: Version{2, 44, 0}, ok: true},
		{name: "apple_git", in: "git version 2.39.3 (Apple Git-146)\n", want: Version{2, 39, 3}, ok: true},
		{name: "windows_suffix", in: "git version 2.39.3.windows.1\n", want: Version{2, 39, 3}, ok: true},
		{name: "no_prefix", in: "2.42.1\n", want: Version{2, 42, 1}, ok: true},
		{name: "no_patch", in: "git version 2.42\n", want: Version{2, 42, 0}, ok: true},
		{name: "invalid", in: "git version not-a-version\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseVersion(tt.in)
			require.Equal(t, tt.ok, ok, "got %+v", got)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValidateVersionOutput(t *testing.T) {
	t.Parallel()

	v, err := validateVersionOutput("git version 1.7.9\n")
	require.NoError(t, err)
	assert.Equal(t, "1.7.9", v.String())

	_, err = validateVersionOutput("git version 1.7.8\n")
	assert.ErrorContains(t, err, "too old")

	_, err = validateVersionOutput("garbage")
	assert.ErrorContains(t, err, "unable to parse")
}
