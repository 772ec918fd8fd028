package test

import (
	"bytes"

	"github.com/at-wat/ebml-go"
)

type webmHeader struct {
	EBMLVersion     uint64 `ebml:"EBMLVersion"`
	EBMLReadVersion uint64 `ebml:"EBMLReadVersion"`
}

type webmAudio struct {
	SamplingFrequency float64 `ebml:"SamplingFrequency"`
	Channels          uint64  `ebml:"Channels"`
}

type webmTrackEntry struct {
	TrackNumber uint64    `ebml:"TrackNumber"`
	TrackUID    uint64    `ebml:"TrackUID"`
	TrackType   uint64    `ebml:"TrackType"`
	CodecID     string    `ebml:"CodecID"`
	Audio       webmAudio `ebml:"Audio"`
}

type webmInfo struct {
	TimecodeScale uint64 `ebml:"TimecodeScale"`
}

type webmTracks struct {
	TrackEntry []webmTrackEntry `ebml:"TrackEntry"`
}

type webmCluster struct {
	Timecode    uint64       `ebml:"Timecode"`
	SimpleBlock []ebml.Block `ebml:"SimpleBlock"`
}

type webmSegment struct {
	Info    webmInfo      `ebml:"Info"`
	Tracks  webmTracks    `ebml:"Tracks"`
	Cluster []webmCluster `ebml:"Cluster"`
}

type webmDocument struct {
	Header  webmHeader  `ebml:"EBML"`
	Segment webmSegment `ebml:"Segment"`
}

// WebMTrack is a track of a WebM blob.
type WebMTrack struct {
	CodecID    string
	SampleRate float64
	// duration of each frame, in milliseconds.
	FrameDuration int16
	Frames        [][]byte
}

// WebMOpusTrack returns an Opus track with 20ms frames.
func WebMOpusTrack(frames [][]byte) *WebMTrack {
	return &WebMTrack{
		CodecID:       "A_OPUS",
		SampleRate:    48000,
		FrameDuration: 20,
		Frames:        frames,
	}
}

// WebMBlob returns a WebM blob with millisecond timecodes and
// the frames of every track in a single cluster.
func WebMBlob(tracks ...*WebMTrack) []byte {
	doc := webmDocument{
		Header: webmHeader{
			EBMLVersion:     1,
			EBMLReadVersion: 1,
		},
		Segment: webmSegment{
			Info: webmInfo{
				TimecodeScale: 1000000,
			},
			Cluster: []webmCluster{{}},
		},
	}

	for i, track := range tracks {
		num := uint64(i + 1)

		doc.Segment.Tracks.TrackEntry = append(doc.Segment.Tracks.TrackEntry, webmTrackEntry{
			TrackNumber: num,
			TrackUID:    num,
			TrackType:   2,
			CodecID:     track.CodecID,
			Audio: webmAudio{
				SamplingFrequency: track.SampleRate,
				Channels:          2,
			},
		})

		for j, frame := range track.Frames {
			doc.Segment.Cluster[0].SimpleBlock = append(doc.Segment.Cluster[0].SimpleBlock, ebml.Block{
				TrackNumber: num,
				Timecode:    int16(j) * track.FrameDuration,
				Keyframe:    true,
				Data:        [][]byte{frame},
			})
		}
	}

	var buf bytes.Buffer
	err := ebml.Marshal(&doc, &buf)
	if err != nil {
		panic(err)
	}

	return buf.Bytes()
}
