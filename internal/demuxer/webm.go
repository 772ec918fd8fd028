package demuxer

import (
	"bytes"
	"errors"
	"io"
	"sort"

	"github.com/at-wat/ebml-go"
)

const (
	webmDefaultTimecodeScale = 1000000
	webmOpusClockRate        = 48000
)

type webmAudio struct {
	SamplingFrequency float64 `ebml:"SamplingFrequency"`
}

type webmTrackEntry struct {
	TrackNumber     uint64     `ebml:"TrackNumber"`
	CodecID         string     `ebml:"CodecID"`
	DefaultDuration uint64     `ebml:"DefaultDuration"`
	Audio           *webmAudio `ebml:"Audio"`
}

type webmBlockGroup struct {
	Block ebml.Block `ebml:"Block"`
}

type webmCluster struct {
	Timecode    uint64           `ebml:"Timecode"`
	SimpleBlock []ebml.Block     `ebml:"SimpleBlock"`
	BlockGroup  []webmBlockGroup `ebml:"BlockGroup"`
}

type webmSegment struct {
	Info struct {
		TimecodeScale uint64 `ebml:"TimecodeScale"`
	} `ebml:"Info"`
	Tracks struct {
		TrackEntry []webmTrackEntry `ebml:"TrackEntry"`
	} `ebml:"Tracks"`
	Cluster []webmCluster `ebml:"Cluster"`
}

type webmDocument struct {
	Segment webmSegment `ebml:"Segment"`
}

type webmTrack struct {
	number    uint64
	mime      string
	timeScale int
	clockRate int
	frames    []*Frame
}

// WebM is a demuxer of WebM and Matroska blobs.
// Frames are available once the whole blob has been added.
type WebM struct {
	data   []byte
	tracks []*webmTrack
	parsed bool
	err    Result
}

// AddBuffer implements Demuxer.
func (d *WebM) AddBuffer(buf []byte) Result {
	if len(buf) == 0 {
		return ResultInvalidArg
	}

	if d.err != ResultSuccess {
		return d.err
	}

	if d.parsed {
		return ResultSuccess
	}

	if len(d.data)+len(buf) > maxBufferSize {
		d.err = ResultOutOfMemory
		return d.err
	}

	d.data = append(d.data, buf...)

	var doc webmDocument
	err := ebml.Unmarshal(bytes.NewReader(d.data), &doc)
	switch {
	case err == nil:

	// segments and clusters of unknown size end with the blob.
	case errors.Is(err, io.EOF) && len(doc.Segment.Tracks.TrackEntry) != 0:

	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ResultNeedMoreData

	default:
		d.err = ResultParseError
		return d.err
	}

	d.fillTracks(&doc.Segment)
	d.parsed = true
	d.data = nil

	return ResultSuccess
}

func (d *WebM) fillTracks(seg *webmSegment) {
	timecodeScale := seg.Info.TimecodeScale
	if timecodeScale == 0 {
		timecodeScale = webmDefaultTimecodeScale
	}

	for _, entry := range seg.Tracks.TrackEntry {
		track := &webmTrack{
			number: entry.TrackNumber,
		}

		switch entry.CodecID {
		case "A_OPUS":
			track.mime = MimeOpus
			track.timeScale = webmOpusClockRate

		case "A_AAC", "A_AAC/MPEG4/LC":
			track.mime = MimeMPEG4Audio
			if entry.Audio != nil {
				track.timeScale = int(entry.Audio.SamplingFrequency)
			}

		default:
			continue
		}

		if track.timeScale <= 0 {
			continue
		}
		track.clockRate = track.timeScale

		d.fillFrames(seg, track, timecodeScale, entry.DefaultDuration)
		d.tracks = append(d.tracks, track)
	}
}

func (d *WebM) fillFrames(seg *webmSegment, track *webmTrack, timecodeScale uint64, defaultDuration uint64) {
	type timedBlock struct {
		ns   int64
		data [][]byte
	}

	var blocks []timedBlock

	for _, cluster := range seg.Cluster {
		add := func(b *ebml.Block) {
			if b.TrackNumber != track.number {
				return
			}
			ns := (int64(cluster.Timecode) + int64(b.Timecode)) * int64(timecodeScale)
			blocks = append(blocks, timedBlock{ns, b.Data})
		}

		for i := range cluster.SimpleBlock {
			add(&cluster.SimpleBlock[i])
		}
		for i := range cluster.BlockGroup {
			add(&cluster.BlockGroup[i].Block)
		}
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].ns < blocks[j].ns
	})

	var first int64
	if len(blocks) != 0 {
		first = blocks[0].ns
	}

	for _, b := range blocks {
		for i, payload := range b.data {
			if len(payload) == 0 {
				continue
			}

			ns := b.ns - first + int64(i)*int64(defaultDuration)
			track.frames = append(track.frames, &Frame{
				PTS:     rescale(ns, 1000000000, track.timeScale),
				Payload: payload,
			})
		}
	}
}

// TracksCount implements Demuxer.
func (d *WebM) TracksCount() int {
	return len(d.tracks)
}

func (d *WebM) track(i int) *webmTrack {
	if i < 0 || i >= len(d.tracks) {
		return nil
	}
	return d.tracks[i]
}

// TrackMime implements Demuxer.
func (d *WebM) TrackMime(track int) (string, bool) {
	t := d.track(track)
	if t == nil {
		return "", false
	}
	return t.mime, true
}

// TrackClockRate implements Demuxer.
func (d *WebM) TrackClockRate(track int) int {
	t := d.track(track)
	if t == nil {
		return 0
	}
	return t.clockRate
}

// SetClockRate implements Demuxer.
func (d *WebM) SetClockRate(track int, clockRate int) {
	t := d.track(track)
	if t == nil || clockRate <= 0 {
		return
	}
	t.clockRate = clockRate
}

// NextFrame implements Demuxer.
func (d *WebM) NextFrame(track int) (*Frame, Result) {
	if d.err != ResultSuccess {
		return nil, d.err
	}

	if !d.parsed {
		return nil, ResultNeedMoreData
	}

	t := d.track(track)
	if t == nil {
		return nil, ResultInvalidArg
	}

	if len(t.frames) == 0 {
		return nil, ResultEndOfStream
	}

	frame := t.frames[0]
	t.frames = t.frames[1:]

	return &Frame{
		PTS:     rescale(frame.PTS, t.timeScale, t.clockRate),
		Payload: frame.Payload,
	}, ResultSuccess
}
