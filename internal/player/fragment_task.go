package player

import (
	"github.com/bluenviron/mtxplayer/internal/demuxer"
	"github.com/bluenviron/mtxplayer/internal/packetizer"
)

// fragmentTask is a unit of work queued inside a fragment.
type fragmentTask interface {
	isFragmentTask()
}

type taskStart struct {
	trackIndex int
	mime       string
	clockRate  int
}

func (taskStart) isFragmentTask() {}

type taskFrame struct {
	// nil when the frame could not be packetized.
	packet *packetizer.Packet
	pts    int64
}

func (taskFrame) isFragmentTask() {}

type taskFinish struct {
	result demuxer.Result
}

func (taskFinish) isFragmentTask() {}
