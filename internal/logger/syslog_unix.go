//go:build !windows && !darwin

package logger

import (
	"log/syslog"
)

type sysLogNative struct {
	w *syslog.Writer
}

func newSysLog(prefix string) (sysLogWriter, error) {
	w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, prefix)
	if err != nil {
		return nil, err
	}
	return &sysLogNative{w: w}, nil
}

// each level is sent with its own severity.
func (s *sysLogNative) write(level Level, msg string) error {
	switch level {
	case Debug:
		return s.w.Debug(msg)
	case Warn:
		return s.w.Warning(msg)
	case Error:
		return s.w.Err(msg)
	default:
		return s.w.Info(msg)
	}
}

func (s *sysLogNative) close() error {
	return s.w.Close()
}
