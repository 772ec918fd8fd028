package player

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/mtxplayer/internal/demuxer"
	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/mediatimer"
	"github.com/bluenviron/mtxplayer/internal/packetizer"
)

var errFragmentClosed = errors.New("fragment is closed")

type fragmentState int

const (
	fragmentStateIdle fragmentState = iota
	fragmentStateStarted
	fragmentStatePlaying
	fragmentStateFinished
)

type fragmentParent interface {
	logger.Writer
	onFragmentStarted(f *fragment)
	onFragmentPacket(f *fragment, pkt *packetizer.Packet)
	onFragmentFinished(f *fragment, final bool)
}

// fragment plays a single blob.
// Tasks are processed on the timer goroutine; start, setPaused and close
// are called by the stream. The mutex serializes them.
type fragment struct {
	id              uint64
	mediaSourceID   uint64
	demuxer         demuxer.Demuxer
	reopenDemuxer   func() (demuxer.Demuxer, error)
	timer           *mediatimer.Service
	packetizerConf  packetizer.Conf
	maxStalledTicks int
	parent          fragmentParent

	active  atomic.Bool
	timerID uint64

	mutex        sync.Mutex
	state        fragmentState
	tasks        []fragmentTask
	packetizer   packetizer.Packetizer
	trackIndex   int
	mime         string
	clockRate    int
	timeout      time.Duration
	lastPTS      int64
	hasLast      bool
	stalledTicks int
	paused       bool
}

func (f *fragment) initialize() error {
	var err error
	f.timerID, err = f.timer.Register(f)
	if err != nil {
		return err
	}

	f.active.Store(true)

	return nil
}

// Log implements logger.Writer.
func (f *fragment) Log(level logger.Level, format string, args ...any) {
	f.parent.Log(level, "[fragment %d] "+format, append([]any{f.id}, args...)...)
}

// start starts playing a track.
// A previous start is superseded: queued tasks are discarded and, when frames were
// already pulled, playback restarts from the first frame of a reopened demuxer.
func (f *fragment) start(trackIndex int, clockRate int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.active.Load() {
		return errFragmentClosed
	}

	if f.state == fragmentStatePlaying {
		dem, err := f.reopenDemuxer()
		if err != nil {
			return err
		}
		f.demuxer = dem
	}

	mime, ok := f.demuxer.TrackMime(trackIndex)
	if !ok {
		return fmt.Errorf("track %d not found", trackIndex)
	}

	conf := f.packetizerConf
	conf.ClockRate = clockRate

	p, err := packetizer.New(mime, conf)
	if err != nil {
		return err
	}
	f.packetizer = p

	if f.state == fragmentStatePlaying {
		f.parent.onFragmentFinished(f, false)
	}

	f.demuxer.SetClockRate(trackIndex, clockRate)

	f.state = fragmentStateStarted
	f.tasks = []fragmentTask{&taskStart{
		trackIndex: trackIndex,
		mime:       mime,
		clockRate:  clockRate,
	}}

	f.timeout = 0
	f.timer.SetTimeout(f.timerID, 0)
	f.timer.Start(f.timerID, false)

	return nil
}

func (f *fragment) setPaused(paused bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.paused = paused
}

func (f *fragment) isPaused() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.paused
}

// close tears the fragment down. If the fragment was started and not finished yet,
// a finish event is emitted.
func (f *fragment) close() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.active.Load() {
		return
	}

	f.active.Store(false)
	f.timer.Unregister(f.timerID)
	f.tasks = nil

	switch f.state {
	case fragmentStateStarted:
		f.parent.onFragmentStarted(f)
		f.parent.onFragmentFinished(f, true)

	case fragmentStatePlaying:
		f.parent.onFragmentFinished(f, true)
	}

	f.state = fragmentStateFinished
}

// OnTimer implements mediatimer.Callback.
func (f *fragment) OnTimer(_ uint64) {
	if !f.active.Load() {
		return
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.active.Load() {
		return
	}

	if len(f.tasks) == 0 {
		if f.state == fragmentStatePlaying {
			f.retryPull()
		}
		return
	}

	task := f.tasks[0]
	f.tasks[0] = nil
	f.tasks = f.tasks[1:]

	switch task := task.(type) {
	case *taskStart:
		f.processStart(task)

	case *taskFrame:
		f.processFrame(task)

	case *taskFinish:
		f.finish(task.result)
	}
}

func (f *fragment) processStart(task *taskStart) {
	f.trackIndex = task.trackIndex
	f.mime = task.mime
	f.clockRate = task.clockRate
	f.hasLast = false
	f.stalledTicks = 0

	f.parent.onFragmentStarted(f)
	f.state = fragmentStatePlaying

	f.pullFirst()
}

// pullFirst delivers the first frame immediately, then queues the next one.
func (f *fragment) pullFirst() {
	frame, res := f.demuxer.NextFrame(f.trackIndex)

	switch {
	case res == demuxer.ResultSuccess:
		f.stalledTicks = 0
		f.deliver(f.packetizer.AddFrame(frame), frame.PTS)
		f.pullNext()

	case res == demuxer.ResultNeedMoreData:
		f.setTimeout(packetizer.DefaultFrameDuration(f.mime, f.clockRate))

	default:
		f.finish(res)
	}
}

// pullNext queues the next frame and sets the delay until it.
func (f *fragment) pullNext() {
	frame, res := f.demuxer.NextFrame(f.trackIndex)

	switch {
	case res == demuxer.ResultSuccess:
		f.stalledTicks = 0
		f.tasks = append(f.tasks, &taskFrame{
			packet: f.packetizer.AddFrame(frame),
			pts:    frame.PTS,
		})
		f.setTimeout(f.delayUntil(frame.PTS))

	case res == demuxer.ResultNeedMoreData:
		f.setTimeout(packetizer.DefaultFrameDuration(f.mime, f.clockRate))

	default:
		f.tasks = append(f.tasks, &taskFinish{result: res})
		f.setTimeout(packetizer.DefaultFrameDuration(f.mime, f.clockRate))
	}
}

func (f *fragment) retryPull() {
	f.stalledTicks++

	if f.stalledTicks > f.maxStalledTicks {
		f.Log(logger.Warn, "no data after %d attempts, blob is truncated", f.maxStalledTicks)
		f.finish(demuxer.ResultNeedMoreData)
		return
	}

	if !f.hasLast {
		f.pullFirst()
	} else {
		f.pullNext()
	}
}

func (f *fragment) processFrame(task *taskFrame) {
	f.deliver(task.packet, task.pts)
	f.pullNext()
}

func (f *fragment) deliver(pkt *packetizer.Packet, pts int64) {
	f.lastPTS = pts
	f.hasLast = true

	if pkt != nil && !f.paused {
		f.parent.onFragmentPacket(f, pkt)
	}
}

// delayUntil returns the delay between the last delivered frame and a frame.
// Non-monotonic timestamps produce a zero delay.
func (f *fragment) delayUntil(pts int64) time.Duration {
	if !f.hasLast {
		return packetizer.DefaultFrameDuration(f.mime, f.clockRate)
	}

	diff := pts - f.lastPTS
	if diff <= 0 {
		return 0
	}

	return time.Duration(diff) * time.Second / time.Duration(f.clockRate)
}

func (f *fragment) setTimeout(d time.Duration) {
	if d == f.timeout {
		return
	}
	f.timeout = d
	f.timer.SetTimeout(f.timerID, d)
}

func (f *fragment) finish(res demuxer.Result) {
	if f.state != fragmentStatePlaying {
		return
	}

	if res.IsError() {
		f.Log(logger.Warn, "demuxer failed: %v", res)
	}

	f.active.Store(false)
	f.timer.Unregister(f.timerID)
	f.tasks = nil
	f.state = fragmentStateFinished

	f.parent.onFragmentFinished(f, true)
}
