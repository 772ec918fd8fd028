// Package player contains the playback engine.
package player

import (
	"context"
	"errors"
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

const (
	defaultMaxStalledTicks = 3
)

// errors.
var (
	ErrUnsupportedMime  = errors.New("unsupported mime type")
	ErrStreamExists     = errors.New("stream already exists")
	ErrStreamNotFound   = errors.New("stream not found")
	ErrFragmentNotFound = errors.New("fragment not found")
	ErrInvalidClockRate = errors.New("invalid clock rate")
	ErrTerminated       = errors.New("terminated")
)

// StreamConf is the configuration of a stream.
type StreamConf struct {
	Name        string
	SSRC        uint32
	ClockRate   int
	PayloadType uint8
	Mime        string
}

type registryAddStreamReq struct {
	conf StreamConf
	cb   Callback
	res  chan error
}

type registryRemoveStreamReq struct {
	ssrc uint32
	res  chan bool
}

type registryPlayReq struct {
	ssrc          uint32
	mediaSourceID uint64
	blob          []byte
	res           chan uint64
}

type registryStopRes struct {
	count int
	err   error
}

type registryStopReq struct {
	ssrc          uint32
	mediaSourceID uint64
	fragmentID    uint64
	res           chan registryStopRes
}

type registryPauseReq struct {
	ssrc       uint32
	fragmentID uint64
	paused     bool
	res        chan error
}

type registryIsPlayingReq struct {
	ssrc uint32
	res  chan bool
}

type registryAPIStreamsListReq struct {
	res chan []*stream
}

// Registry owns streams and routes blobs to them.
// Consumer callbacks are invoked by its internal goroutine.
type Registry struct {
	Timer             *mediatimer.Service
	MaxStalledTicks   int
	RTPMaxPayloadSize int
	Parent            logger.Writer

	ctx            context.Context
	ctxCancel      func()
	wg             sync.WaitGroup
	dispatcher     relay.Dispatcher
	streams        map[uint32]*stream
	lastFragmentID atomic.Uint64

	// in
	chAddStream      chan registryAddStreamReq
	chRemoveStream   chan registryRemoveStreamReq
	chPlay           chan registryPlayReq
	chStop           chan registryStopReq
	chPause          chan registryPauseReq
	chIsPlaying      chan registryIsPlayingReq
	chAPIStreamsList chan registryAPIStreamsListReq
}

// Initialize initializes Registry.
func (r *Registry) Initialize() error {
	if r.Timer == nil {
		return fmt.Errorf("timer service not provided")
	}
	if r.MaxStalledTicks == 0 {
		r.MaxStalledTicks = defaultMaxStalledTicks
	}

	r.ctx, r.ctxCancel = context.WithCancel(context.Background())

	r.dispatcher.Initialize()
	r.streams = make(map[uint32]*stream)
	r.chAddStream = make(chan registryAddStreamReq)
	r.chRemoveStream = make(chan registryRemoveStreamReq)
	r.chPlay = make(chan registryPlayReq)
	r.chStop = make(chan registryStopReq)
	r.chPause = make(chan registryPauseReq)
	r.chIsPlaying = make(chan registryIsPlayingReq)
	r.chAPIStreamsList = make(chan registryAPIStreamsListReq)

	r.Log(logger.Debug, "created")

	r.wg.Add(1)
	go r.run()

	return nil
}

// Close closes Registry. Every stream is removed.
func (r *Registry) Close() {
	r.Log(logger.Debug, "closing")
	r.ctxCancel()
	r.wg.Wait()
}

// Log implements logger.Writer.
func (r *Registry) Log(level logger.Level, format string, args ...any) {
	r.Parent.Log(level, "[registry] "+format, args...)
}

func (r *Registry) run() {
	defer r.wg.Done()

outer:
	for {
		select {
		case <-r.dispatcher.C():
			r.dispatcher.Dispatch()

		case req := <-r.chAddStream:
			req.res <- r.doAddStream(req.conf, req.cb)

		case req := <-r.chRemoveStream:
			req.res <- r.doRemoveStream(req.ssrc)

		case req := <-r.chPlay:
			req.res <- r.doPlay(req)

		case req := <-r.chStop:
			req.res <- r.doStop(req)

		case req := <-r.chPause:
			req.res <- r.doPause(req)

		case req := <-r.chIsPlaying:
			s, ok := r.streams[req.ssrc]
			req.res <- ok && s.isPlaying()

		case req := <-r.chAPIStreamsList:
			streams := make([]*stream, 0, len(r.streams))
			for _, s := range r.streams {
				streams = append(streams, s)
			}
			req.res <- streams

		case <-r.ctx.Done():
			break outer
		}
	}

	r.ctxCancel()

	for ssrc := range r.streams {
		r.doRemoveStream(ssrc)
	}
}

func (r *Registry) doAddStream(conf StreamConf, cb Callback) error {
	if !demuxer.Supports(conf.Mime) || !packetizer.Supported(conf.Mime) {
		return ErrUnsupportedMime
	}

	if conf.ClockRate <= 0 {
		return ErrInvalidClockRate
	}

	if _, ok := r.streams[conf.SSRC]; ok {
		return ErrStreamExists
	}

	s := &stream{
		conf:              conf,
		timer:             r.Timer,
		maxStalledTicks:   r.MaxStalledTicks,
		rtpMaxPayloadSize: r.RTPMaxPayloadSize,
		parent:            r,
	}
	s.initialize(cb)
	r.streams[conf.SSRC] = s

	s.Log(logger.Info, "added (%s, clock rate %d, payload type %d)", conf.Mime, conf.ClockRate, conf.PayloadType)

	return nil
}

func (r *Registry) doRemoveStream(ssrc uint32) bool {
	s, ok := r.streams[ssrc]
	if !ok {
		return false
	}

	delete(r.streams, ssrc)
	r.dispatcher.Forget(s.relay)
	s.close()

	s.Log(logger.Info, "removed")

	return true
}

func (r *Registry) doPlay(req registryPlayReq) uint64 {
	if len(req.blob) == 0 {
		return 0
	}

	s, ok := r.streams[req.ssrc]
	if !ok {
		return 0
	}

	return s.play(req.mediaSourceID, req.blob)
}

func (r *Registry) doStop(req registryStopReq) registryStopRes {
	s, ok := r.streams[req.ssrc]
	if !ok {
		return registryStopRes{err: ErrStreamNotFound}
	}

	return registryStopRes{count: s.stop(req.mediaSourceID, req.fragmentID)}
}

func (r *Registry) doPause(req registryPauseReq) error {
	s, ok := r.streams[req.ssrc]
	if !ok {
		return ErrStreamNotFound
	}

	if !s.setPaused(req.fragmentID, req.paused) {
		return ErrFragmentNotFound
	}

	return nil
}

// notify implements streamParent.
func (r *Registry) notify(d relay.Drainer) {
	r.dispatcher.Notify(d)
}

// newFragmentID implements streamParent.
func (r *Registry) newFragmentID() uint64 {
	return r.lastFragmentID.Add(1)
}

// AddStream adds a stream.
func (r *Registry) AddStream(conf StreamConf, cb Callback) error {
	req := registryAddStreamReq{
		conf: conf,
		cb:   cb,
		res:  make(chan error),
	}

	select {
	case r.chAddStream <- req:
		return <-req.res

	case <-r.ctx.Done():
		return ErrTerminated
	}
}

// RemoveStream removes a stream.
// After it returns, no callback of the stream is invoked anymore.
func (r *Registry) RemoveStream(ssrc uint32) bool {
	req := registryRemoveStreamReq{
		ssrc: ssrc,
		res:  make(chan bool),
	}

	select {
	case r.chRemoveStream <- req:
		return <-req.res

	case <-r.ctx.Done():
		return false
	}
}

// Play plays a blob into a stream.
// It returns the ID of the created fragment, or zero when no fragment was created.
func (r *Registry) Play(ssrc uint32, mediaSourceID uint64, blob []byte) uint64 {
	req := registryPlayReq{
		ssrc:          ssrc,
		mediaSourceID: mediaSourceID,
		blob:          blob,
		res:           make(chan uint64),
	}

	select {
	case r.chPlay <- req:
		return <-req.res

	case <-r.ctx.Done():
		return 0
	}
}

// Stop stops fragments of a media source. If fragmentID is zero, all fragments
// of the media source are stopped.
func (r *Registry) Stop(ssrc uint32, mediaSourceID uint64, fragmentID uint64) (int, error) {
	req := registryStopReq{
		ssrc:          ssrc,
		mediaSourceID: mediaSourceID,
		fragmentID:    fragmentID,
		res:           make(chan registryStopRes),
	}

	select {
	case r.chStop <- req:
		res := <-req.res
		return res.count, res.err

	case <-r.ctx.Done():
		return 0, ErrTerminated
	}
}

// Pause pauses or resumes the delivery of packets of a fragment.
func (r *Registry) Pause(ssrc uint32, fragmentID uint64, paused bool) error {
	req := registryPauseReq{
		ssrc:       ssrc,
		fragmentID: fragmentID,
		paused:     paused,
		res:        make(chan error),
	}

	select {
	case r.chPause <- req:
		return <-req.res

	case <-r.ctx.Done():
		return ErrTerminated
	}
}

// IsPlaying returns whether a stream has at least one fragment that is not finished.
func (r *Registry) IsPlaying(ssrc uint32) bool {
	req := registryIsPlayingReq{
		ssrc: ssrc,
		res:  make(chan bool),
	}

	select {
	case r.chIsPlaying <- req:
		return <-req.res

	case <-r.ctx.Done():
		return false
	}
}

// APIStreamsList returns the list of streams.
func (r *Registry) APIStreamsList() (*defs.APIStreamList, error) {
	req := registryAPIStreamsListReq{
		res: make(chan []*stream),
	}

	select {
	case r.chAPIStreamsList <- req:
		streams := <-req.res

		data := &defs.APIStreamList{
			Items: make([]*defs.APIStream, 0, len(streams)),
		}

		for _, s := range streams {
			data.Items = append(data.Items, s.apiItem())
		}

		sort.Slice(data.Items, func(i, j int) bool {
			return data.Items[i].SSRC < data.Items[j].SSRC
		})

		return data, nil

	case <-r.ctx.Done():
		return nil, ErrTerminated
	}
}

// APIStreamsGet returns a stream by SSRC.
func (r *Registry) APIStreamsGet(ssrc uint32) (*defs.APIStream, error) {
	data, err := r.APIStreamsList()
	if err != nil {
		return nil, err
	}

	for _, item := range data.Items {
		if item.SSRC == ssrc {
			return item, nil
		}
	}

	return nil, ErrStreamNotFound
}
