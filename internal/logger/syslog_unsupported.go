//go:build windows || darwin

package logger

import (
	"fmt"
	"runtime"
)

func newSysLog(_ string) (sysLogWriter, error) {
	return nil, fmt.Errorf("syslog is not available on %s", runtime.GOOS)
}
