package packetizer

import (
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtpsimpleaudio"

	"github.com/bluenviron/mtxplayer/internal/demuxer"
)

type opus struct {
	base
	conf Conf

	encoder *rtpsimpleaudio.Encoder
}

func (p *opus) initialize() error {
	p.encoder = &rtpsimpleaudio.Encoder{
		PayloadMaxSize: p.conf.PayloadMaxSize,
		PayloadType:    p.conf.PayloadType,
		SSRC:           &p.conf.SSRC,
	}
	return p.encoder.Init()
}

// AddFrame implements Packetizer.
func (p *opus) AddFrame(frame *demuxer.Frame) *Packet {
	if frame == nil || len(frame.Payload) == 0 {
		return nil
	}

	pkt, err := p.encoder.Encode(frame.Payload)
	if err != nil {
		return nil
	}

	return p.finalize(pkt, frame.PTS)
}
