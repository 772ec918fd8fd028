// Package httpp contains the HTTP server shared by the API, metrics and pprof listeners.
package httpp

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/bluenviron/mtxplayer/internal/logger"
)

var (
	errInvalidReadTimeout  = errors.New("invalid ReadTimeout")
	errInvalidWriteTimeout = errors.New("invalid WriteTimeout")
)

const idleTimeout = 30 * time.Second

// Server serves a handler on a TCP listener.
// Requests are filtered, logged and bounded by WriteTimeout.
type Server struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Handler      http.Handler
	Parent       logger.Writer

	ln    net.Listener
	inner *http.Server
	done  chan struct{}
}

// Initialize initializes a Server.
func (s *Server) Initialize() error {
	if s.ReadTimeout <= 0 {
		return errInvalidReadTimeout
	}
	if s.WriteTimeout <= 0 {
		return errInvalidWriteTimeout
	}

	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return err
	}
	s.ln = ln

	var h http.Handler = &handlerFilterRequests{s.Handler}
	h = &handlerServerHeader{h}
	h = &handlerLogger{h, s.Parent}
	h = &handlerWriteTimeout{h, s.WriteTimeout}

	s.inner = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: s.ReadTimeout,
		ReadTimeout:       s.ReadTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          log.New(io.Discard, "", 0),
	}

	s.done = make(chan struct{})
	go s.run()

	return nil
}

// Close stops accepting connections and waits for in-flight requests,
// up to WriteTimeout.
func (s *Server) Close() {
	ctx, ctxCancel := context.WithTimeout(context.Background(), s.WriteTimeout)
	defer ctxCancel()

	err := s.inner.Shutdown(ctx)
	if err != nil {
		s.inner.Close() //nolint:errcheck
	}

	<-s.done
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) run() {
	defer close(s.done)

	err := s.inner.Serve(s.ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.Parent.Log(logger.Error, "%v", err)
	}
}
