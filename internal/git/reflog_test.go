package git

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReflogLine = "0000000000000000000000000000000000000000 " +
	"1111111111111111111111111111111111111111 Jane Doe <jane@example.com> 1709294400 +0200\tOn main: wip"

func TestParseReflogLine(t *testing.T) {
	e, err := parseReflogLine(sampleReflogLine)
	require.NoError(t, err)
	assert.Equal(t, plumbing.ZeroHash, e.Old)
	assert.Equal(t, plumbing.NewHash("1111111111111111111111111111111111111111"), e.New)
	assert.Equal(t, "Jane Doe", e.Name)
	assert.Equal(t, "jane@example.com", e.Email)
	assert.Equal(t, int64(1709294400), e.When.Unix())
	_, offset := e.When.Zone()
	assert.Equal(t, 2*60*60, offset)
	assert.Equal(t, "On main: wip", e.Message)

	assert.Equal(t, sampleReflogLine+"\n", e.String())
}

func TestParseReflogLineMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"abc def",
		"0000000000000000000000000000000000000000 1111111111111111111111111111111111111111 no identity",
		"0000000000000000000000000000000000000000 1111111111111111111111111111111111111111 A <a@b> notanumber +0000",
	} {
		_, err := parseReflogLine(line)
		assert.Error(t, err, line)
	}
}

func TestReflogReadWrite(t *testing.T) {
	r := newRepo(t)
	ref := plumbing.ReferenceName("refs/test")

	entries, err := r.readReflog(ref)
	require.NoError(t, err)
	assert.Empty(t, entries)

	when := time.Unix(1709294400, 0).UTC()
	want := []reflogEntry{
		{Old: plumbing.ZeroHash, New: plumbing.NewHash("1111111111111111111111111111111111111111"), Name: "A", Email: "a@example.com", When: when, Message: "one"},
		{Old: plumbing.NewHash("1111111111111111111111111111111111111111"), New: plumbing.NewHash("2222222222222222222222222222222222222222"), Name: "A", Email: "a@example.com", When: when, Message: "two"},
	}
	require.NoError(t, r.writeReflog(ref, want))
	got, err := r.readReflog(ref)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].String(), got[i].String())
	}

	require.NoError(t, r.writeReflog(ref, nil))
	got, err = r.readReflog(ref)
	require.NoError(t, err)
	assert.Empty(t, got)
}
