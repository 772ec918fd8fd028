package packetizer

import (
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtpmpeg4audio"

	"github.com/bluenviron/mtxplayer/internal/demuxer"
)

// AU header layout of the mpeg4-generic AAC-hbr mode.
const (
	mpeg4AudioSizeLength       = 13
	mpeg4AudioIndexLength      = 3
	mpeg4AudioIndexDeltaLength = 3
)

type mpeg4Audio struct {
	base
	conf Conf

	encoder *rtpmpeg4audio.Encoder
}

func (p *mpeg4Audio) initialize() error {
	p.encoder = &rtpmpeg4audio.Encoder{
		PayloadMaxSize:   p.conf.PayloadMaxSize,
		PayloadType:      p.conf.PayloadType,
		SSRC:             &p.conf.SSRC,
		SizeLength:       mpeg4AudioSizeLength,
		IndexLength:      mpeg4AudioIndexLength,
		IndexDeltaLength: mpeg4AudioIndexDeltaLength,
	}
	return p.encoder.Init()
}

// AddFrame implements Packetizer.
// Access units that don't fit into a single packet are discarded.
func (p *mpeg4Audio) AddFrame(frame *demuxer.Frame) *Packet {
	if frame == nil || len(frame.Payload) == 0 {
		return nil
	}

	pkts, err := p.encoder.Encode([][]byte{frame.Payload})
	if err != nil || len(pkts) != 1 {
		return nil
	}

	return p.finalize(pkts[0], frame.PTS)
}
