// Package api contains the API server.
package api //nolint:revive

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/defs"
	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/player"
	"github.com/bluenviron/mtxplayer/internal/protocols/httpp"
)

// maximum size of a blob submitted through the API.
const maxBlobSize = 32 * 1024 * 1024

var errEmptyBlob = errors.New("blob is empty")

func queryUint(ctx *gin.Context, key string, required bool) (uint64, error) {
	str := ctx.Query(key)
	if str == "" {
		if required {
			return 0, fmt.Errorf("'%s' is missing", key)
		}
		return 0, nil
	}

	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid '%s'", key)
	}
	return v, nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, conf.ErrStreamNotFound),
		errors.Is(err, player.ErrStreamNotFound),
		errors.Is(err, player.ErrFragmentNotFound):
		return http.StatusNotFound

	case errors.Is(err, defs.ErrPlayFailed):
		return http.StatusUnprocessableEntity

	case errors.Is(err, player.ErrTerminated):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// API is an API server.
type API struct {
	Address      string
	ReadTimeout  conf.Duration
	WriteTimeout conf.Duration
	Player       defs.Player
	Parent       logger.Writer

	httpServer *httpp.Server
}

// Initialize initializes API.
func (a *API) Initialize() error {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck

	group := router.Group("/v1")

	group.GET("/streams/list", a.onStreamsList)
	group.GET("/streams/get/:name", a.onStreamsGet)
	group.GET("/streams/sdp/:name", a.onStreamsSDP)
	group.POST("/streams/play/:name", a.onStreamsPlay)
	group.POST("/streams/stop/:name", a.onStreamsStop)
	group.POST("/streams/pause/:name", a.onStreamsPause)
	group.POST("/streams/resume/:name", a.onStreamsResume)

	a.httpServer = &httpp.Server{
		Address:      a.Address,
		ReadTimeout:  time.Duration(a.ReadTimeout),
		WriteTimeout: time.Duration(a.WriteTimeout),
		Handler:      router,
		Parent:       a,
	}
	err := a.httpServer.Initialize()
	if err != nil {
		return err
	}

	a.Log(logger.Info, "listener opened on "+a.Address)

	return nil
}

// Close closes the API.
func (a *API) Close() {
	a.Log(logger.Info, "listener is closing")
	a.httpServer.Close()
}

// Log implements logger.Writer.
func (a *API) Log(level logger.Level, format string, args ...any) {
	a.Parent.Log(level, "[API] "+format, args...)
}

// Addr returns the listening address.
func (a *API) Addr() net.Addr {
	return a.httpServer.Addr()
}

func (a *API) writeError(ctx *gin.Context, status int, err error) {
	// show error in logs
	a.Log(logger.Error, err.Error())

	// add error to response
	ctx.JSON(status, &defs.APIError{
		Error: err.Error(),
	})
}
