package demuxer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mtxplayer/internal/test"
)

func pullAll(t *testing.T, d Demuxer, track int) ([]*Frame, Result) {
	var frames []*Frame
	for {
		frame, res := d.NextFrame(track)
		if res != ResultSuccess {
			return frames, res
		}
		require.NotNil(t, frame)
		frames = append(frames, frame)
	}
}

func TestDetect(t *testing.T) {
	for _, ca := range []struct {
		name string
		blob []byte
		c    Container
		ok   bool
	}{
		{"ogg", test.OggOpusBlob(test.OpusFrames(1), test.OpusFrameSamples), ContainerOgg, true},
		{"fmp4", test.FMP4Blob(test.FMP4OpusTrack(test.OpusFrames(1))), ContainerFMP4, true},
		{"webm", test.WebMBlob(test.WebMOpusTrack(test.OpusFrames(1))), ContainerWebM, true},
		{"garbage", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, 0, false},
		{"empty", nil, 0, false},
	} {
		t.Run(ca.name, func(t *testing.T) {
			c, ok := Detect(ca.blob)
			require.Equal(t, ca.ok, ok)
			require.Equal(t, ca.c, c)
		})
	}
}

func TestNewUnknownContainer(t *testing.T) {
	_, err := New([]byte("not a container"))
	require.ErrorIs(t, err, ErrUnknownContainer)
}

func TestOgg(t *testing.T) {
	frames := test.OpusFrames(3)
	blob := test.OggOpusBlob(frames, test.OpusFrameSamples)

	d, err := New(blob)
	require.NoError(t, err)
	require.IsType(t, &Ogg{}, d)

	res := d.AddBuffer(blob)
	require.Equal(t, ResultSuccess, res)
	require.Equal(t, 1, d.TracksCount())

	mime, ok := d.TrackMime(0)
	require.True(t, ok)
	require.Equal(t, MimeOpus, mime)
	require.Equal(t, 48000, d.TrackClockRate(0))
	require.Equal(t, 2, d.(*Ogg).ChannelCount())

	_, ok = d.TrackMime(1)
	require.False(t, ok)

	out, res := pullAll(t, d, 0)
	require.Equal(t, ResultEndOfStream, res)
	require.Len(t, out, 3)

	for i, frame := range out {
		require.Equal(t, frames[i], frame.Payload)
		require.Equal(t, int64(i*test.OpusFrameSamples), frame.PTS)
	}
}

func TestOggClockRate(t *testing.T) {
	blob := test.OggOpusBlob(test.OpusFrames(2), test.OpusFrameSamples)

	d := &Ogg{}
	require.Equal(t, ResultSuccess, d.AddBuffer(blob))
	d.SetClockRate(0, 8000)

	out, res := pullAll(t, d, 0)
	require.Equal(t, ResultEndOfStream, res)
	require.Equal(t, []int64{0, 160}, []int64{out[0].PTS, out[1].PTS})
}

func TestOggIncremental(t *testing.T) {
	blob := test.OggOpusBlob(test.OpusFrames(3), test.OpusFrameSamples)

	d := &Ogg{}

	require.Equal(t, ResultNeedMoreData, d.AddBuffer(blob[:10]))
	require.Equal(t, 0, d.TracksCount())

	_, res := d.NextFrame(0)
	require.Equal(t, ResultNeedMoreData, res)

	require.Equal(t, ResultSuccess, d.AddBuffer(blob[10:len(blob)-3]))

	out, res := pullAll(t, d, 0)
	require.Equal(t, ResultNeedMoreData, res)
	require.Len(t, out, 2)

	require.Equal(t, ResultSuccess, d.AddBuffer(blob[len(blob)-3:]))

	out, res = pullAll(t, d, 0)
	require.Equal(t, ResultEndOfStream, res)
	require.Len(t, out, 1)
	require.Equal(t, int64(2*test.OpusFrameSamples), out[0].PTS)
}

func TestOggCorrupted(t *testing.T) {
	blob := test.OggOpusBlob(test.OpusFrames(3), test.OpusFrameSamples)
	blob[len(blob)-1] ^= 0xFF

	d := &Ogg{}
	require.Equal(t, ResultSuccess, d.AddBuffer(blob))

	out, res := pullAll(t, d, 0)
	require.Equal(t, ResultParseError, res)
	require.Len(t, out, 2)

	_, res = d.NextFrame(0)
	require.Equal(t, ResultParseError, res)
}

func TestOggInvalidArg(t *testing.T) {
	d := &Ogg{}
	require.Equal(t, ResultInvalidArg, d.AddBuffer(nil))

	blob := test.OggOpusBlob(test.OpusFrames(1), test.OpusFrameSamples)
	require.Equal(t, ResultSuccess, d.AddBuffer(blob))

	_, res := d.NextFrame(3)
	require.Equal(t, ResultInvalidArg, res)
}

func TestFMP4(t *testing.T) {
	frames := test.OpusFrames(3)
	aus := [][]byte{{1, 2, 3}, {4, 5, 6}}

	blob := test.FMP4Blob(test.FMP4OpusTrack(frames), test.FMP4MPEG4AudioTrack(aus))

	d, err := New(blob)
	require.NoError(t, err)
	require.IsType(t, &FMP4{}, d)

	require.Equal(t, ResultSuccess, d.AddBuffer(blob))
	require.Equal(t, 2, d.TracksCount())

	mime, ok := d.TrackMime(0)
	require.True(t, ok)
	require.Equal(t, MimeOpus, mime)

	mime, ok = d.TrackMime(1)
	require.True(t, ok)
	require.Equal(t, MimeMPEG4Audio, mime)

	out, res := pullAll(t, d, 0)
	require.Equal(t, ResultEndOfStream, res)
	require.Len(t, out, 3)
	for i, frame := range out {
		require.Equal(t, frames[i], frame.Payload)
		require.Equal(t, int64(i*test.OpusFrameSamples), frame.PTS)
	}

	d.SetClockRate(1, 24000)

	out, res = pullAll(t, d, 1)
	require.Equal(t, ResultEndOfStream, res)
	require.Len(t, out, 2)
	require.Equal(t, int64(0), out[0].PTS)
	require.Equal(t, int64(512), out[1].PTS)
	require.Equal(t, aus[1], out[1].Payload)
}

func TestFMP4Incremental(t *testing.T) {
	blob := test.FMP4Blob(test.FMP4OpusTrack(test.OpusFrames(3)))

	d := &FMP4{}

	require.Equal(t, ResultNeedMoreData, d.AddBuffer(blob[:20]))
	require.Equal(t, 0, d.TracksCount())

	require.Equal(t, ResultSuccess, d.AddBuffer(blob[20:len(blob)-2]))
	require.Equal(t, 1, d.TracksCount())

	_, res := d.NextFrame(0)
	require.Equal(t, ResultNeedMoreData, res)

	require.Equal(t, ResultSuccess, d.AddBuffer(blob[len(blob)-2:]))

	out, res := pullAll(t, d, 0)
	require.Equal(t, ResultEndOfStream, res)
	require.Len(t, out, 3)
}

func TestWebM(t *testing.T) {
	frames := test.OpusFrames(3)
	aus := [][]byte{{1, 2, 3}, {4, 5, 6}}

	blob := test.WebMBlob(
		test.WebMOpusTrack(frames),
		&test.WebMTrack{
			CodecID:       "A_AAC",
			SampleRate:    44100,
			FrameDuration: 40,
			Frames:        aus,
		},
		&test.WebMTrack{
			CodecID:       "A_VORBIS",
			SampleRate:    48000,
			FrameDuration: 20,
			Frames:        [][]byte{{1}},
		})

	d, err := New(blob)
	require.NoError(t, err)
	require.IsType(t, &WebM{}, d)

	require.Equal(t, ResultSuccess, d.AddBuffer(blob))
	require.Equal(t, 2, d.TracksCount())

	mime, ok := d.TrackMime(0)
	require.True(t, ok)
	require.Equal(t, MimeOpus, mime)
	require.Equal(t, 48000, d.TrackClockRate(0))

	mime, ok = d.TrackMime(1)
	require.True(t, ok)
	require.Equal(t, MimeMPEG4Audio, mime)
	require.Equal(t, 44100, d.TrackClockRate(1))

	_, ok = d.TrackMime(2)
	require.False(t, ok)

	out, res := pullAll(t, d, 0)
	require.Equal(t, ResultEndOfStream, res)
	require.Len(t, out, 3)
	for i, frame := range out {
		require.Equal(t, frames[i], frame.Payload)
		require.Equal(t, int64(i*test.OpusFrameSamples), frame.PTS)
	}

	d.SetClockRate(1, 1000)

	out, res = pullAll(t, d, 1)
	require.Equal(t, ResultEndOfStream, res)
	require.Len(t, out, 2)
	require.Equal(t, int64(0), out[0].PTS)
	require.Equal(t, int64(40), out[1].PTS)
	require.Equal(t, aus[1], out[1].Payload)

	_, res = d.NextFrame(5)
	require.Equal(t, ResultInvalidArg, res)
}

func TestWebMInvalid(t *testing.T) {
	d := &WebM{}
	require.Equal(t, ResultInvalidArg, d.AddBuffer(nil))

	_, res := d.NextFrame(0)
	require.Equal(t, ResultNeedMoreData, res)
	require.Equal(t, 0, d.TracksCount())
}

func TestResult(t *testing.T) {
	require.False(t, ResultSuccess.IsError())
	require.False(t, ResultNeedMoreData.IsError())
	require.False(t, ResultEndOfStream.IsError())
	require.True(t, ResultInvalidArg.IsError())
	require.True(t, ResultOutOfMemory.IsError())
	require.True(t, ResultParseError.IsError())
	require.Equal(t, "need more data", ResultNeedMoreData.String())
}

func TestSupports(t *testing.T) {
	require.True(t, Supports(MimeOpus))
	require.True(t, Supports(MimeMPEG4Audio))
	require.False(t, Supports("video/h264"))
}
