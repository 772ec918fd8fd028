package demuxer

import (
	"bytes"
	"errors"
	"io"

	amp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

type fmp4Box struct {
	typ    string
	offset int
	size   int
}

// scanBoxes returns the complete top-level boxes of buf.
func scanBoxes(buf []byte) ([]fmp4Box, error) {
	var boxes []fmp4Box

	_, err := amp4.ReadBoxStructure(bytes.NewReader(buf), func(h *amp4.ReadHandle) (any, error) {
		if h.BoxInfo.Offset+h.BoxInfo.Size > uint64(len(buf)) {
			return nil, nil
		}

		boxes = append(boxes, fmp4Box{
			typ:    h.BoxInfo.Type.String(),
			offset: int(h.BoxInfo.Offset),
			size:   int(h.BoxInfo.Size),
		})
		return nil, nil
	})
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}

	return boxes, nil
}

type fmp4Track struct {
	id        int
	mime      string
	timeScale int
	clockRate int
	codec     mp4.Codec
	frames    []*Frame
}

// FMP4 is a demuxer of fragmented MP4 blobs.
type FMP4 struct {
	data     []byte
	consumed int
	tracks   []*fmp4Track
	hasInit  bool
	err      Result
}

// AddBuffer implements Demuxer.
func (d *FMP4) AddBuffer(buf []byte) Result {
	if len(buf) == 0 {
		return ResultInvalidArg
	}

	if d.err != ResultSuccess {
		return d.err
	}

	if len(d.data)+len(buf) > maxBufferSize {
		d.err = ResultOutOfMemory
		return d.err
	}

	d.data = append(d.data, buf...)

	err := d.parse()
	if err != nil {
		d.err = ResultParseError
		return d.err
	}

	if !d.hasInit {
		return ResultNeedMoreData
	}

	return ResultSuccess
}

func (d *FMP4) parse() error {
	base := d.consumed

	boxes, err := scanBoxes(d.data[base:])
	if err != nil {
		return err
	}

	for i := 0; i < len(boxes); {
		box := boxes[i]
		start := base + box.offset
		end := start + box.size

		if !d.hasInit {
			if box.typ == "moov" {
				var init fmp4.Init
				err = init.Unmarshal(bytes.NewReader(d.data[d.consumed:end]))
				if err != nil {
					return err
				}

				d.hasInit = true
				d.fillTracks(&init)
				d.consumed = end
			}
			i++
			continue
		}

		if box.typ != "moof" {
			d.consumed = end
			i++
			continue
		}

		if i+1 >= len(boxes) {
			break
		}

		mdat := boxes[i+1]
		if mdat.typ != "mdat" {
			return errors.New("moof is not followed by mdat")
		}
		end = base + mdat.offset + mdat.size

		var parts fmp4.Parts
		err = parts.Unmarshal(d.data[start:end])
		if err != nil {
			return err
		}

		d.fillFrames(parts)
		d.consumed = end
		i += 2
	}

	return nil
}

func (d *FMP4) fillTracks(init *fmp4.Init) {
	for _, track := range init.Tracks {
		var mime string

		switch track.Codec.(type) {
		case *mp4.CodecOpus:
			mime = MimeOpus

		case *mp4.CodecMPEG4Audio:
			mime = MimeMPEG4Audio

		default:
			mime = "unsupported"
		}

		d.tracks = append(d.tracks, &fmp4Track{
			id:        track.ID,
			mime:      mime,
			timeScale: int(track.TimeScale),
			clockRate: int(track.TimeScale),
			codec:     track.Codec,
		})
	}
}

func (d *FMP4) trackByID(id int) *fmp4Track {
	for _, t := range d.tracks {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (d *FMP4) fillFrames(parts fmp4.Parts) {
	for _, part := range parts {
		for _, partTrack := range part.Tracks {
			track := d.trackByID(partTrack.ID)
			if track == nil {
				continue
			}

			dts := int64(partTrack.BaseTime)

			for _, sample := range partTrack.Samples {
				track.frames = append(track.frames, &Frame{
					PTS:     dts + int64(sample.PTSOffset),
					Payload: sample.Payload,
				})
				dts += int64(sample.Duration)
			}
		}
	}
}

// TracksCount implements Demuxer.
func (d *FMP4) TracksCount() int {
	return len(d.tracks)
}

// TrackMime implements Demuxer.
func (d *FMP4) TrackMime(track int) (string, bool) {
	if track < 0 || track >= len(d.tracks) {
		return "", false
	}
	return d.tracks[track].mime, true
}

// TrackClockRate implements Demuxer.
func (d *FMP4) TrackClockRate(track int) int {
	if track < 0 || track >= len(d.tracks) {
		return 0
	}
	return d.tracks[track].clockRate
}

// SetClockRate implements Demuxer.
func (d *FMP4) SetClockRate(track int, clockRate int) {
	if track < 0 || track >= len(d.tracks) || clockRate <= 0 {
		return
	}
	d.tracks[track].clockRate = clockRate
}

// TrackCodec returns the codec of a track.
func (d *FMP4) TrackCodec(track int) mp4.Codec {
	if track < 0 || track >= len(d.tracks) {
		return nil
	}
	return d.tracks[track].codec
}

// NextFrame implements Demuxer.
func (d *FMP4) NextFrame(track int) (*Frame, Result) {
	if d.err != ResultSuccess {
		return nil, d.err
	}

	if !d.hasInit {
		return nil, ResultNeedMoreData
	}

	if track < 0 || track >= len(d.tracks) {
		return nil, ResultInvalidArg
	}

	t := d.tracks[track]

	if len(t.frames) == 0 {
		if d.consumed < len(d.data) {
			return nil, ResultNeedMoreData
		}
		return nil, ResultEndOfStream
	}

	frame := t.frames[0]
	t.frames = t.frames[1:]

	return &Frame{
		PTS:     rescale(frame.PTS, t.timeScale, t.clockRate),
		Payload: frame.Payload,
	}, ResultSuccess
}
