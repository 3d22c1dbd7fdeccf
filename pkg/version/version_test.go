package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_ContainsVersionAndCommit(t *testing.T) {
	s := String()
	assert.Contains(t, s, Version)
	assert.Contains(t, s, Commit)
}

func TestGetInfo_ReflectsRuntime(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}
