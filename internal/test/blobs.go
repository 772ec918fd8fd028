package test

import (
	"bytes"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// OpusFrameSamples is the duration of a 20ms Opus frame at 48kHz.
const OpusFrameSamples = 960

// OpusFrames returns n distinct fake Opus frames.
func OpusFrames(n int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = []byte{0xfc, byte(i + 1), 0x02, 0x03, 0x04}
	}
	return frames
}

// OggOpusBlob returns an Ogg Opus blob containing the given frames,
// one frame per page, spaced by frameSamples.
func OggOpusBlob(frames [][]byte, frameSamples uint32) []byte {
	var buf bytes.Buffer

	w, err := oggwriter.NewWith(&buf, 48000, 2)
	if err != nil {
		panic(err)
	}

	for i, frame := range frames {
		err = w.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i) * frameSamples,
			},
			Payload: frame,
		})
		if err != nil {
			panic(err)
		}
	}

	return buf.Bytes()
}

// FMP4Track is a track of a fMP4 blob.
type FMP4Track struct {
	Codec     mp4.Codec
	TimeScale uint32
	Samples   []*fmp4.Sample
}

// FMP4OpusTrack returns an Opus track with the given frames.
func FMP4OpusTrack(frames [][]byte) *FMP4Track {
	t := &FMP4Track{
		Codec:     &mp4.CodecOpus{ChannelCount: 2},
		TimeScale: 48000,
	}
	for _, frame := range frames {
		t.Samples = append(t.Samples, &fmp4.Sample{
			Duration: OpusFrameSamples,
			Payload:  frame,
		})
	}
	return t
}

// FMP4MPEG4AudioTrack returns an AAC track with the given access units.
func FMP4MPEG4AudioTrack(aus [][]byte) *FMP4Track {
	t := &FMP4Track{
		Codec: &mp4.CodecMPEG4Audio{
			Config: mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   48000,
				ChannelCount: 2,
			},
		},
		TimeScale: 48000,
	}
	for _, au := range aus {
		t.Samples = append(t.Samples, &fmp4.Sample{
			Duration: 1024,
			Payload:  au,
		})
	}
	return t
}

// FMP4Blob returns a fragmented MP4 blob with an init segment and one part
// containing the samples of every track.
func FMP4Blob(tracks ...*FMP4Track) []byte {
	init := fmp4.Init{}
	part := &fmp4.Part{SequenceNumber: 1}

	for i, track := range tracks {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        i + 1,
			TimeScale: track.TimeScale,
			Codec:     track.Codec,
		})

		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       i + 1,
			BaseTime: 0,
			Samples:  track.Samples,
		})
	}

	var buf seekablebuffer.Buffer

	err := init.Marshal(&buf)
	if err != nil {
		panic(err)
	}

	var partBuf seekablebuffer.Buffer

	err = part.Marshal(&partBuf)
	if err != nil {
		panic(err)
	}

	return append(buf.Bytes(), partBuf.Bytes()...)
}
