//go:build linux

package usftp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStatVFS(t *testing.T) {
	vfs, err := LocalStatVFS("/")
	require.NoError(t, err)
	require.NotZero(t, vfs.Bsize)
	require.NotZero(t, vfs.Blocks)
	require.NotZero(t, vfs.TotalSpace())
}
