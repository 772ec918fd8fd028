//go:build !windows

package rlimit

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRaise(t *testing.T) {
	n, err := Raise()
	require.NoError(t, err)

	var rlim syscall.Rlimit
	err = syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim)
	require.NoError(t, err)
	require.Equal(t, uint64(rlim.Cur), n) //nolint:unconvert
	require.Equal(t, rlim.Max, rlim.Cur)
}
