// Package translator contains a client that receives translated audio
// from a WebSocket server and plays it.
package translator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/websocket"
)

const (
	defaultReconnectPause = 2 * time.Second
)

var errTerminated = errors.New("terminated")

// Player plays blobs.
type Player interface {
	Play(ssrc uint32, mediaSourceID uint64, blob []byte) uint64
}

// hello is sent to the server after connecting.
type hello struct {
	SessionID string `json:"sessionId"`
	Stream    string `json:"stream"`
	SSRC      uint32 `json:"ssrc"`
}

// Client connects to a translator and plays every binary message it receives.
// Each connection is a media source: blobs received through the same
// connection share the same media source ID.
type Client struct {
	URL            string
	StreamName     string
	SSRC           uint32
	ReconnectPause time.Duration
	Player         Player
	Parent         logger.Writer

	ctx       context.Context
	ctxCancel func()
	sessions  uint64
	received  atomic.Uint64
	discarded atomic.Uint64

	done chan struct{}
}

// Initialize initializes Client.
func (c *Client) Initialize() {
	if c.ReconnectPause == 0 {
		c.ReconnectPause = defaultReconnectPause
	}

	c.ctx, c.ctxCancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})

	c.Log(logger.Info, "started")

	go c.run()
}

// Close closes Client.
func (c *Client) Close() {
	c.Log(logger.Info, "stopped")
	c.ctxCancel()
	<-c.done
}

// Log implements logger.Writer.
func (c *Client) Log(level logger.Level, format string, args ...any) {
	c.Parent.Log(level, "[translator %s] "+format, append([]any{c.StreamName}, args...)...)
}

// Received returns the number of received blobs.
func (c *Client) Received() uint64 {
	return c.received.Load()
}

// Discarded returns the number of blobs that could not be played.
func (c *Client) Discarded() uint64 {
	return c.discarded.Load()
}

func (c *Client) run() {
	defer close(c.done)

	for {
		err := c.runInner()
		if errors.Is(err, errTerminated) {
			return
		}

		c.Log(logger.Warn, "%v, retrying in %v", err, c.ReconnectPause)

		select {
		case <-time.After(c.ReconnectPause):
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) runInner() error {
	conn, err := websocket.Dial(c.ctx, c.URL)
	if err != nil {
		if c.ctx.Err() != nil {
			return errTerminated
		}
		return err
	}
	defer conn.Close()

	c.sessions++
	mediaSourceID := c.sessions
	sessionID := uuid.New()

	c.Log(logger.Info, "connected to %s, session %s", c.URL, sessionID)

	err = conn.WriteJSON(hello{
		SessionID: sessionID.String(),
		Stream:    c.StreamName,
		SSRC:      c.SSRC,
	})
	if err != nil {
		return err
	}

	readErr := make(chan error)
	go func() {
		readErr <- c.runReader(conn, mediaSourceID)
	}()

	select {
	case err = <-readErr:
		return err

	case <-c.ctx.Done():
		conn.Close()
		<-readErr
		return errTerminated
	}
}

func (c *Client) runReader(conn *websocket.Conn, mediaSourceID uint64) error {
	for {
		blob, err := conn.ReadBinary(func(msg []byte) {
			c.Log(logger.Debug, "message: %s", msg)
		})
		if err != nil {
			return err
		}

		c.received.Add(1)

		if c.Player.Play(c.SSRC, mediaSourceID, blob) == 0 {
			c.discarded.Add(1)
			c.Log(logger.Warn, "discarded a blob of %d bytes", len(blob))
		}
	}
}
