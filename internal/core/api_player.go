package core

import (
	"errors"
	"sync"

	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/defs"
	"github.com/bluenviron/mtxplayer/internal/player"
	"github.com/bluenviron/mtxplayer/internal/rtpsink"
)

var errNoDestination = errors.New("stream has no destination")

// apiPlayer implements defs.Player by resolving stream names into SSRCs.
type apiPlayer struct {
	registry *player.Registry

	mutex   sync.RWMutex
	streams map[string]*conf.Stream
}

func (p *apiPlayer) setStreams(streams map[string]*conf.Stream) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.streams = streams
}

func (p *apiPlayer) lookup(name string) (*conf.Stream, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	s, ok := p.streams[name]
	if !ok {
		return nil, conf.ErrStreamNotFound
	}
	return s, nil
}

// Play implements defs.Player.
func (p *apiPlayer) Play(name string, mediaSourceID uint64, blob []byte) (uint64, error) {
	s, err := p.lookup(name)
	if err != nil {
		return 0, err
	}

	id := p.registry.Play(s.SSRC, mediaSourceID, blob)
	if id == 0 {
		return 0, defs.ErrPlayFailed
	}
	return id, nil
}

// Stop implements defs.Player.
func (p *apiPlayer) Stop(name string, mediaSourceID uint64, fragmentID uint64) (int, error) {
	s, err := p.lookup(name)
	if err != nil {
		return 0, err
	}
	return p.registry.Stop(s.SSRC, mediaSourceID, fragmentID)
}

// Pause implements defs.Player.
func (p *apiPlayer) Pause(name string, fragmentID uint64, paused bool) error {
	s, err := p.lookup(name)
	if err != nil {
		return err
	}
	return p.registry.Pause(s.SSRC, fragmentID, paused)
}

// APIStreamsList implements defs.Player.
func (p *apiPlayer) APIStreamsList() (*defs.APIStreamList, error) {
	return p.registry.APIStreamsList()
}

// APIStreamsGet implements defs.Player.
func (p *apiPlayer) APIStreamsGet(name string) (*defs.APIStream, error) {
	s, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	return p.registry.APIStreamsGet(s.SSRC)
}

// APIStreamsSDP implements defs.Player.
func (p *apiPlayer) APIStreamsSDP(name string) ([]byte, error) {
	s, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	if s.Destination == "" {
		return nil, errNoDestination
	}
	return rtpsink.SDP(s)
}
