// Package websocket provides WebSocket connectivity.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

var (
	pingInterval     = 30 * time.Second
	pingTimeout      = 5 * time.Second
	writeTimeout     = 2 * time.Second
	handshakeTimeout = 10 * time.Second
)

var errTerminated = errors.New("terminated")

// Conn is a client-side WebSocket connection with
// automatic, periodic ping-pong.
type Conn struct {
	wc *websocket.Conn

	// in
	terminate chan struct{}
	write     chan []byte

	// out
	writeErr chan error
	done     chan struct{}
}

// Dial connects to a WebSocket server.
func Dial(ctx context.Context, u string) (*Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	wc, res, err := dialer.DialContext(ctx, u, nil)
	if res != nil {
		res.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	c := &Conn{
		wc:        wc,
		terminate: make(chan struct{}),
		write:     make(chan []byte),
		writeErr:  make(chan error),
		done:      make(chan struct{}),
	}

	go c.run()

	return c, nil
}

// Close closes a Conn. It unblocks pending reads.
func (c *Conn) Close() {
	select {
	case <-c.terminate:
		return
	default:
	}

	close(c.terminate)
	<-c.done
	c.wc.Close() //nolint:errcheck
}

func (c *Conn) run() {
	defer close(c.done)

	c.wc.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout)) //nolint:errcheck

	c.wc.SetPongHandler(func(string) error {
		c.wc.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout)) //nolint:errcheck
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case byts := <-c.write:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			err := c.wc.WriteMessage(websocket.TextMessage, byts)
			c.writeErr <- err

		case <-pingTicker.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			c.wc.WriteMessage(websocket.PingMessage, nil)       //nolint:errcheck

		case <-c.terminate:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			c.wc.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ReadBinary reads the next binary message.
// Text messages are returned to onText, if set, and otherwise discarded.
func (c *Conn) ReadBinary(onText func([]byte)) ([]byte, error) {
	for {
		typ, byts, err := c.wc.ReadMessage()
		if err != nil {
			return nil, err
		}

		c.wc.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout)) //nolint:errcheck

		switch typ {
		case websocket.BinaryMessage:
			return byts, nil

		case websocket.TextMessage:
			if onText != nil {
				onText(byts)
			}
		}
	}
}

// WriteJSON writes a JSON object as a text message.
func (c *Conn) WriteJSON(in any) error {
	byts, err := json.Marshal(in)
	if err != nil {
		return err
	}

	select {
	case c.write <- byts:
		return <-c.writeErr
	case <-c.terminate:
		return errTerminated
	}
}
