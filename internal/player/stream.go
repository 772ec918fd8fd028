package player

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bluenviron/mtxplayer/internal/defs"
	"github.com/bluenviron/mtxplayer/internal/demuxer"
	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/mediatimer"
	"github.com/bluenviron/mtxplayer/internal/packetizer"
	"github.com/bluenviron/mtxplayer/internal/relay"
)

type streamEventType int

const (
	streamEventStarted streamEventType = iota
	streamEventPacket
	streamEventFinished
)

type streamEvent struct {
	typ           streamEventType
	fragmentID    uint64
	mediaSourceID uint64
	packet        *packetizer.Packet
}

type streamParent interface {
	logger.Writer
	notify(d relay.Drainer)
	newFragmentID() uint64
}

// stream owns the fragments played into a single SSRC and relays their
// events from the timer goroutine to the registry goroutine.
type stream struct {
	conf              StreamConf
	timer             *mediatimer.Service
	maxStalledTicks   int
	rtpMaxPayloadSize int
	parent            streamParent

	relay     *relay.Relay[streamEvent]
	mutex     sync.Mutex
	fragments map[uint64]*fragment

	fragmentsStarted  atomic.Uint64
	fragmentsFinished atomic.Uint64
	packetsSent       atomic.Uint64
	bytesSent         atomic.Uint64
}

func (s *stream) initialize(cb Callback) {
	s.fragments = make(map[uint64]*fragment)

	s.relay = &relay.Relay[streamEvent]{}
	s.relay.OnWake = func() {
		s.parent.notify(s.relay)
	}
	s.relay.SetHandler(func(e streamEvent) {
		s.deliver(cb, e)
	})
}

// Log implements logger.Writer.
func (s *stream) Log(level logger.Level, format string, args ...any) {
	s.parent.Log(level, "[stream %d] "+format, append([]any{s.conf.SSRC}, args...)...)
}

// resetCallback detaches the consumer and discards undelivered events.
func (s *stream) resetCallback() {
	s.relay.Reset()
}

func (s *stream) close() {
	s.resetCallback()

	s.mutex.Lock()
	fragments := make([]*fragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		fragments = append(fragments, f)
	}
	clear(s.fragments)
	s.mutex.Unlock()

	for _, f := range fragments {
		f.close()
	}
}

func openDemuxer(blob []byte) (demuxer.Demuxer, error) {
	dem, err := demuxer.New(blob)
	if err != nil {
		return nil, err
	}

	res := dem.AddBuffer(blob)
	if res.IsError() {
		return nil, fmt.Errorf("demuxer failed: %v", res)
	}

	return dem, nil
}

func (s *stream) play(mediaSourceID uint64, blob []byte) uint64 {
	dem, err := openDemuxer(blob)
	if err != nil {
		s.Log(logger.Warn, "unable to play blob of source %d: %v", mediaSourceID, err)
		return 0
	}

	trackIndex := -1
	for i := range dem.TracksCount() {
		mime, _ := dem.TrackMime(i)
		if mime == s.conf.Mime {
			if trackIndex < 0 {
				trackIndex = i
			} else {
				s.Log(logger.Debug, "ignoring additional %s track %d", mime, i)
			}
		}
	}

	if trackIndex < 0 {
		s.Log(logger.Warn, "blob of source %d has no %s track", mediaSourceID, s.conf.Mime)
		return 0
	}

	f := &fragment{
		id:            s.parent.newFragmentID(),
		mediaSourceID: mediaSourceID,
		demuxer:       dem,
		reopenDemuxer: func() (demuxer.Demuxer, error) {
			return openDemuxer(blob)
		},
		timer: s.timer,
		packetizerConf: packetizer.Conf{
			PayloadType:    s.conf.PayloadType,
			SSRC:           s.conf.SSRC,
			PayloadMaxSize: s.rtpMaxPayloadSize,
		},
		maxStalledTicks: s.maxStalledTicks,
		parent:          s,
	}

	err = f.initialize()
	if err != nil {
		s.Log(logger.Error, "unable to create fragment: %v", err)
		return 0
	}

	s.mutex.Lock()
	s.fragments[f.id] = f
	s.mutex.Unlock()

	err = f.start(trackIndex, s.conf.ClockRate)
	if err != nil {
		s.removeFragment(f)
		f.close()
		s.Log(logger.Error, "unable to start fragment: %v", err)
		return 0
	}

	s.Log(logger.Debug, "fragment %d created for source %d, track %d", f.id, mediaSourceID, trackIndex)

	return f.id
}

// stop tears down fragments of a media source. fragmentID 0 selects all of them.
func (s *stream) stop(mediaSourceID uint64, fragmentID uint64) int {
	s.mutex.Lock()
	var fragments []*fragment
	for id, f := range s.fragments {
		if f.mediaSourceID == mediaSourceID && (fragmentID == 0 || fragmentID == id) {
			fragments = append(fragments, f)
			delete(s.fragments, id)
		}
	}
	s.mutex.Unlock()

	for _, f := range fragments {
		f.close()
	}

	return len(fragments)
}

func (s *stream) setPaused(fragmentID uint64, paused bool) bool {
	s.mutex.Lock()
	f, ok := s.fragments[fragmentID]
	s.mutex.Unlock()

	if !ok {
		return false
	}

	f.setPaused(paused)
	return true
}

func (s *stream) isPlaying() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.fragments) != 0
}

func (s *stream) removeFragment(f *fragment) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if cur, ok := s.fragments[f.id]; ok && cur == f {
		delete(s.fragments, f.id)
	}
}

// onFragmentStarted implements fragmentParent.
func (s *stream) onFragmentStarted(f *fragment) {
	s.relay.Push(streamEvent{
		typ:           streamEventStarted,
		fragmentID:    f.id,
		mediaSourceID: f.mediaSourceID,
	})
}

// onFragmentPacket implements fragmentParent.
func (s *stream) onFragmentPacket(f *fragment, pkt *packetizer.Packet) {
	s.relay.Push(streamEvent{
		typ:           streamEventPacket,
		fragmentID:    f.id,
		mediaSourceID: f.mediaSourceID,
		packet:        pkt,
	})
}

// onFragmentFinished implements fragmentParent.
func (s *stream) onFragmentFinished(f *fragment, final bool) {
	s.relay.Push(streamEvent{
		typ:           streamEventFinished,
		fragmentID:    f.id,
		mediaSourceID: f.mediaSourceID,
	})

	if final {
		s.removeFragment(f)
	}
}

func (s *stream) deliver(cb Callback, e streamEvent) {
	switch e.typ {
	case streamEventStarted:
		s.fragmentsStarted.Add(1)
		cb.OnPlayStarted(e.fragmentID, e.mediaSourceID, s.conf.SSRC)

	case streamEventPacket:
		s.packetsSent.Add(1)
		s.bytesSent.Add(uint64(len(e.packet.Data)))
		cb.OnPlay(e.fragmentID, e.mediaSourceID, e.packet)

	case streamEventFinished:
		s.fragmentsFinished.Add(1)
		cb.OnPlayFinished(e.fragmentID, e.mediaSourceID, s.conf.SSRC)
	}
}

func (s *stream) apiItem() *defs.APIStream {
	s.mutex.Lock()
	cur := make([]*fragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		cur = append(cur, f)
	}
	s.mutex.Unlock()

	fragments := make([]*defs.APIFragment, len(cur))
	for i, f := range cur {
		fragments[i] = &defs.APIFragment{
			ID:            f.id,
			MediaSourceID: f.mediaSourceID,
			Paused:        f.isPaused(),
		}
	}

	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].ID < fragments[j].ID
	})

	return &defs.APIStream{
		Name:              s.conf.Name,
		SSRC:              s.conf.SSRC,
		Mime:              s.conf.Mime,
		ClockRate:         s.conf.ClockRate,
		PayloadType:       s.conf.PayloadType,
		Playing:           len(fragments) != 0,
		Fragments:         fragments,
		FragmentsStarted:  s.fragmentsStarted.Load(),
		FragmentsFinished: s.fragmentsFinished.Load(),
		PacketsSent:       s.packetsSent.Load(),
		BytesSent:         s.bytesSent.Load(),
	}
}
