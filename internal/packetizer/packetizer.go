// Package packetizer converts demuxed frames into RTP packets.
package packetizer

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/pion/rtp"

	"github.com/bluenviron/mtxplayer/internal/demuxer"
)

const (
	// maximum size of a RTP payload.
	defaultPayloadMaxSize = 1450

	// sequence numbers are picked in the lower half of the range.
	sequenceNumberMask = 0x7FFF
)

// ErrUnsupportedMime is returned when no packetizer exists for a mime type.
var ErrUnsupportedMime = errors.New("unsupported mime type")

// Packet is a RTP packet produced from a frame.
type Packet struct {
	Mime string

	// RTP timestamp relative to the first frame of the packetizer.
	TimestampOffset uint32

	// marshaled RTP packet.
	Data []byte

	// position of the payload inside Data.
	PayloadOffset int
	PayloadLength int
}

// Payload returns the RTP payload.
func (p *Packet) Payload() []byte {
	return p.Data[p.PayloadOffset : p.PayloadOffset+p.PayloadLength]
}

// Header decodes the RTP header.
func (p *Packet) Header() (*rtp.Header, error) {
	var h rtp.Header
	_, err := h.Unmarshal(p.Data)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Conf is the configuration of a packetizer.
type Conf struct {
	PayloadType    uint8
	SSRC           uint32
	ClockRate      int
	PayloadMaxSize int
}

// Packetizer converts frames into RTP packets.
// A Packetizer is bound to a single track of a single fragment.
type Packetizer interface {
	// AddFrame converts a frame into a packet.
	// It returns nil when the frame can't be converted.
	AddFrame(frame *demuxer.Frame) *Packet

	// SequenceNumber returns the sequence number of the next packet.
	SequenceNumber() uint16
}

// New allocates a packetizer.
func New(mime string, conf Conf) (Packetizer, error) {
	if conf.PayloadMaxSize == 0 {
		conf.PayloadMaxSize = defaultPayloadMaxSize
	}

	seq, err := randSequenceNumber()
	if err != nil {
		return nil, err
	}

	switch mime {
	case demuxer.MimeOpus:
		p := &opus{
			conf: conf,
			base: base{mime: mime, sequenceNumber: seq},
		}
		err = p.initialize()
		if err != nil {
			return nil, err
		}
		return p, nil

	case demuxer.MimeMPEG4Audio:
		p := &mpeg4Audio{
			conf: conf,
			base: base{mime: mime, sequenceNumber: seq},
		}
		err = p.initialize()
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	return nil, ErrUnsupportedMime
}

// Supported returns whether a packetizer exists for a mime type.
func Supported(mime string) bool {
	switch mime {
	case demuxer.MimeOpus, demuxer.MimeMPEG4Audio:
		return true
	}
	return false
}

// DefaultFrameSamples returns the number of samples of a frame of a codec.
func DefaultFrameSamples(mime string, clockRate int) uint32 {
	switch mime {
	case demuxer.MimeMPEG4Audio:
		return 1024
	}
	return uint32(clockRate / 50)
}

// DefaultFrameDuration returns the duration of a frame of a codec,
// used when the container doesn't provide it.
func DefaultFrameDuration(mime string, clockRate int) time.Duration {
	switch mime {
	case demuxer.MimeMPEG4Audio:
		if clockRate > 0 {
			return time.Duration(1024) * time.Second / time.Duration(clockRate)
		}
	}
	return 20 * time.Millisecond
}

func randSequenceNumber() (uint16, error) {
	var b [2]byte
	for {
		_, err := rand.Read(b[:])
		if err != nil {
			return 0, err
		}

		v := binary.BigEndian.Uint16(b[:]) & sequenceNumberMask
		if v != 0 {
			return v, nil
		}
	}
}

// base holds the state shared by every packetizer.
type base struct {
	mime           string
	sequenceNumber uint16
	hasFirst       bool
	firstPTS       int64
	lastOffset     int64
}

// finalize stamps the packet header. It is called only for frames that
// were converted successfully.
func (b *base) finalize(pkt *rtp.Packet, pts int64) *Packet {
	firstPTS := b.firstPTS
	if !b.hasFirst {
		firstPTS = pts
	}

	// offsets never go backwards
	offset := pts - firstPTS
	if b.hasFirst && offset < b.lastOffset {
		offset = b.lastOffset
	}

	pkt.Marker = !b.hasFirst
	pkt.Timestamp = uint32(offset)
	pkt.SequenceNumber = b.sequenceNumber

	byts, err := pkt.Marshal()
	if err != nil {
		return nil
	}

	b.hasFirst = true
	b.firstPTS = firstPTS
	b.lastOffset = offset
	b.sequenceNumber++

	return &Packet{
		Mime:            b.mime,
		TimestampOffset: uint32(offset),
		Data:            byts,
		PayloadOffset:   pkt.Header.MarshalSize(),
		PayloadLength:   len(pkt.Payload),
	}
}

// SequenceNumber implements Packetizer.
func (b *base) SequenceNumber() uint16 {
	return b.sequenceNumber
}
