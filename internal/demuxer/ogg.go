package demuxer

import (
	"bytes"
	"errors"
	"io"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	oggOpusClockRate = 48000
	maxBufferSize    = 32 * 1024 * 1024
	noGranule        = ^uint64(0)
)

// buffer is a growable io.Reader that can be rewound.
type buffer struct {
	data []byte
	pos  int
}

func (b *buffer) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

// Ogg is a demuxer of Ogg Opus blobs.
// Each page must carry one Opus packet.
type Ogg struct {
	buf          buffer
	reader       *oggreader.OggReader
	header       *oggreader.OggHeader
	clockRate    int
	lastGranule  uint64
	firstGranule uint64
	hasFirst     bool
	err          Result
}

// AddBuffer implements Demuxer.
func (d *Ogg) AddBuffer(buf []byte) Result {
	if len(buf) == 0 {
		return ResultInvalidArg
	}

	if d.err != ResultSuccess {
		return d.err
	}

	if len(d.buf.data)+len(buf) > maxBufferSize {
		d.err = ResultOutOfMemory
		return d.err
	}

	d.buf.data = append(d.buf.data, buf...)

	if d.reader == nil {
		d.buf.pos = 0

		reader, header, err := oggreader.NewWith(&d.buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.buf.pos = 0
				return ResultNeedMoreData
			}
			d.err = ResultParseError
			return d.err
		}

		d.reader = reader
		d.header = header
		d.clockRate = oggOpusClockRate
	}

	return ResultSuccess
}

// TracksCount implements Demuxer.
func (d *Ogg) TracksCount() int {
	if d.reader == nil {
		return 0
	}
	return 1
}

// TrackMime implements Demuxer.
func (d *Ogg) TrackMime(track int) (string, bool) {
	if d.reader == nil || track != 0 {
		return "", false
	}
	return MimeOpus, true
}

// TrackClockRate implements Demuxer.
func (d *Ogg) TrackClockRate(track int) int {
	if d.reader == nil || track != 0 {
		return 0
	}
	return d.clockRate
}

// SetClockRate implements Demuxer.
func (d *Ogg) SetClockRate(track int, clockRate int) {
	if d.reader == nil || track != 0 || clockRate <= 0 {
		return
	}
	d.clockRate = clockRate
}

// ChannelCount returns the channel count declared by the Opus header.
func (d *Ogg) ChannelCount() int {
	if d.header == nil {
		return 0
	}
	return int(d.header.Channels)
}

// NextFrame implements Demuxer.
func (d *Ogg) NextFrame(track int) (*Frame, Result) {
	if d.err != ResultSuccess {
		return nil, d.err
	}

	if d.reader == nil {
		return nil, ResultNeedMoreData
	}

	if track != 0 {
		return nil, ResultInvalidArg
	}

	for {
		start := d.buf.pos

		payload, pageHeader, err := d.reader.ParseNextPage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if start == len(d.buf.data) {
					return nil, ResultEndOfStream
				}
				d.buf.pos = start
				return nil, ResultNeedMoreData
			}

			d.err = ResultParseError
			return nil, d.err
		}

		if bytes.HasPrefix(payload, []byte("OpusTags")) || len(payload) == 0 {
			continue
		}

		granule := pageHeader.GranulePosition
		if granule == noGranule {
			granule = d.lastGranule
		}
		d.lastGranule = granule

		if !d.hasFirst {
			d.firstGranule = granule
			d.hasFirst = true
		}

		var pts int64
		if granule > d.firstGranule {
			pts = rescale(int64(granule-d.firstGranule), oggOpusClockRate, d.clockRate)
		}

		return &Frame{
			PTS:     pts,
			Payload: payload,
		}, ResultSuccess
	}
}
