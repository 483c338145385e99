package buildinfo

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo, ok bool) {
	t.Helper()
	orig := readBuildInfo
	t.Cleanup(func() { readBuildInfo = orig })
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, ok }
}

func TestReadWithoutBuildInfo(t *testing.T) {
	stubBuildInfo(t, nil, false)
	info := Read()
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "dev", info.String())
}

func TestReadDevelBuild(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.25.0",
		Main:      debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "3f2a1bc9d0e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "-tags", Value: "netgo"},
		},
	}, true)
	info := Read()
	assert.Equal(t, Info{
		Version:   "dev",
		Tags:      "netgo",
		Revision:  "3f2a1bc9d0e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4",
		Modified:  true,
		GoVersion: "go1.25.0",
	}, info)
	assert.Equal(t, "dev (3f2a1bc, dirty, tags: netgo)", info.String())
}

func TestReadTaggedBuild(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "v1.2.0"}}, true)
	assert.Equal(t, "v1.2.0", Read().String())
}
