package packetizer

import (
	"bytes"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mtxplayer/internal/demuxer"
)

func TestNewUnsupported(t *testing.T) {
	_, err := New("video/h264", Conf{})
	require.ErrorIs(t, err, ErrUnsupportedMime)
	require.False(t, Supported("video/h264"))
	require.True(t, Supported(demuxer.MimeOpus))
	require.True(t, Supported(demuxer.MimeMPEG4Audio))
}

func TestInitialSequenceNumber(t *testing.T) {
	for range 100 {
		p, err := New(demuxer.MimeOpus, Conf{PayloadType: 111, SSRC: 1000})
		require.NoError(t, err)

		seq := p.SequenceNumber()
		require.NotZero(t, seq)
		require.LessOrEqual(t, seq, uint16(0x7FFF))
	}
}

func TestOpus(t *testing.T) {
	p, err := New(demuxer.MimeOpus, Conf{PayloadType: 111, SSRC: 1000})
	require.NoError(t, err)

	seq := p.SequenceNumber()

	for i := range 3 {
		payload := []byte{0xfc, byte(i), 0x01}

		pkt := p.AddFrame(&demuxer.Frame{
			PTS:     int64(5000 + i*960),
			Payload: payload,
		})
		require.NotNil(t, pkt)
		require.Equal(t, demuxer.MimeOpus, pkt.Mime)
		require.Equal(t, uint32(i*960), pkt.TimestampOffset)
		require.Equal(t, payload, pkt.Payload())

		var dec rtp.Packet
		err = dec.Unmarshal(pkt.Data)
		require.NoError(t, err)

		require.Equal(t, i == 0, dec.Marker)
		require.Equal(t, uint8(111), dec.PayloadType)
		require.Equal(t, uint32(1000), dec.SSRC)
		require.Equal(t, seq+uint16(i), dec.SequenceNumber)
		require.Equal(t, uint32(i*960), dec.Timestamp)
		require.True(t, bytes.Equal(payload, dec.Payload))

		h, err := pkt.Header()
		require.NoError(t, err)
		require.Equal(t, dec.SequenceNumber, h.SequenceNumber)
	}
}

func TestEmptyFrame(t *testing.T) {
	p, err := New(demuxer.MimeOpus, Conf{PayloadType: 111, SSRC: 1000})
	require.NoError(t, err)

	seq := p.SequenceNumber()

	require.Nil(t, p.AddFrame(&demuxer.Frame{PTS: 100}))
	require.Nil(t, p.AddFrame(nil))
	require.Equal(t, seq, p.SequenceNumber())

	pkt := p.AddFrame(&demuxer.Frame{PTS: 1060, Payload: []byte{1, 2}})
	require.NotNil(t, pkt)
	require.Equal(t, uint32(0), pkt.TimestampOffset)

	h, err := pkt.Header()
	require.NoError(t, err)
	require.True(t, h.Marker)
}

func TestMPEG4Audio(t *testing.T) {
	p, err := New(demuxer.MimeMPEG4Audio, Conf{PayloadType: 96, SSRC: 2000})
	require.NoError(t, err)

	au := []byte{0x01, 0x02, 0x03, 0x04}

	pkt := p.AddFrame(&demuxer.Frame{PTS: 0, Payload: au})
	require.NotNil(t, pkt)

	var dec rtp.Packet
	err = dec.Unmarshal(pkt.Data)
	require.NoError(t, err)
	require.True(t, dec.Marker)
	require.Equal(t, uint8(96), dec.PayloadType)
	require.Equal(t, uint32(2000), dec.SSRC)

	// AU-headers-length (16 bits) + AU header (13+3 bits) + AU
	require.Equal(t, []byte{0x00, 0x10, 0x00, 0x20, 0x01, 0x02, 0x03, 0x04}, dec.Payload)

	pkt = p.AddFrame(&demuxer.Frame{PTS: 1024, Payload: au})
	require.NotNil(t, pkt)
	require.Equal(t, uint32(1024), pkt.TimestampOffset)

	err = dec.Unmarshal(pkt.Data)
	require.NoError(t, err)
	require.False(t, dec.Marker)
}

func TestMPEG4AudioTooBig(t *testing.T) {
	p, err := New(demuxer.MimeMPEG4Audio, Conf{PayloadType: 96, SSRC: 2000, PayloadMaxSize: 100})
	require.NoError(t, err)

	require.Nil(t, p.AddFrame(&demuxer.Frame{Payload: make([]byte, 500)}))
}

func TestDefaultFrameDuration(t *testing.T) {
	require.Equal(t, uint32(960), DefaultFrameSamples(demuxer.MimeOpus, 48000))
	require.Equal(t, uint32(1024), DefaultFrameSamples(demuxer.MimeMPEG4Audio, 44100))
	require.Equal(t, 20*time.Millisecond, DefaultFrameDuration(demuxer.MimeOpus, 48000))
	require.Equal(t, 1024*time.Second/48000, DefaultFrameDuration(demuxer.MimeMPEG4Audio, 48000))
}

func TestNonMonotonicOffsets(t *testing.T) {
	p, err := New(demuxer.MimeOpus, Conf{PayloadType: 111, SSRC: 1000})
	require.NoError(t, err)

	var offsets []uint32
	for _, pts := range []int64{960, 1920, 0, 2880} {
		pkt := p.AddFrame(&demuxer.Frame{PTS: pts, Payload: []byte{1}})
		require.NotNil(t, pkt)
		offsets = append(offsets, pkt.TimestampOffset)
	}

	require.Equal(t, []uint32{0, 960, 960, 1920}, offsets)
}
