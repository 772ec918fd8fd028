//go:build !windows

// Package rlimit contains a function to raise the file descriptor limit.
package rlimit

import (
	"syscall"
)

// Raise sets the soft limit of open file descriptors to the hard limit.
// Every stream with a destination holds a UDP socket.
func Raise() (uint64, error) {
	var rlim syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim)
	if err != nil {
		return 0, err
	}

	if rlim.Cur < rlim.Max {
		rlim.Cur = rlim.Max
		err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rlim)
		if err != nil {
			return 0, err
		}
	}

	return uint64(rlim.Cur), nil //nolint:unconvert
}
