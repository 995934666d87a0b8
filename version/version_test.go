package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo(t *testing.T) {
	dev := Info{Version: "dev", CommitHash: "0123456789abcdef", BuildTime: "now"}
	assert.Equal(t, "artificer dev (commit 0123456789abcdef, built now)", dev.String())
	assert.Equal(t, "0123456", dev.Short())
	_, ok := dev.Semver()
	assert.False(t, ok)

	rel := Info{Version: "v1.4.0-rc.1", CommitHash: "abc"}
	assert.Equal(t, "abc", rel.Short())
	v, ok := rel.Semver()
	require.True(t, ok)
	assert.Equal(t, uint64(1), v.Major())
	assert.Equal(t, "rc.1", v.Prerelease())
}
