// Package demuxer contains container demuxers that extract audio frames from blobs.
package demuxer

import (
	"bytes"
	"errors"
)

// supported mime types.
const (
	MimeOpus       = "audio/opus"
	MimeMPEG4Audio = "audio/mpeg4-generic"
)

// ErrUnknownContainer is returned when a blob is not in a supported container.
var ErrUnknownContainer = errors.New("unknown container")

// Frame is a frame extracted from a container.
type Frame struct {
	// presentation timestamp, expressed in units of the track clock rate.
	PTS int64

	Payload []byte
}

// Demuxer extracts frames from a container.
// It is not safe for concurrent use.
type Demuxer interface {
	// AddBuffer appends container data.
	AddBuffer(buf []byte) Result

	// TracksCount returns the number of tracks found so far.
	TracksCount() int

	// TrackMime returns the mime type of a track.
	TrackMime(track int) (string, bool)

	// TrackClockRate returns the clock rate used for frame timestamps.
	TrackClockRate(track int) int

	// SetClockRate sets the clock rate of frame timestamps of a track.
	SetClockRate(track int, clockRate int)

	// NextFrame pulls the next frame of a track.
	NextFrame(track int) (*Frame, Result)
}

// Container is a container type.
type Container int

// containers.
const (
	ContainerOgg Container = iota + 1
	ContainerFMP4
	ContainerWebM
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// String implements fmt.Stringer.
func (c Container) String() string {
	switch c {
	case ContainerOgg:
		return "Ogg"
	case ContainerFMP4:
		return "fMP4"
	case ContainerWebM:
		return "WebM"
	}
	return "unknown"
}

// Detect detects the container of a blob from its first bytes.
func Detect(blob []byte) (Container, bool) {
	if len(blob) >= 4 && bytes.Equal(blob[:4], []byte("OggS")) {
		return ContainerOgg, true
	}

	if bytes.HasPrefix(blob, ebmlMagic) {
		return ContainerWebM, true
	}

	if len(blob) >= 8 {
		switch string(blob[4:8]) {
		case "ftyp", "styp", "moov":
			return ContainerFMP4, true
		}
	}

	return 0, false
}

// New allocates a demuxer suited to the container of blob.
// The blob is not added to the demuxer.
func New(blob []byte) (Demuxer, error) {
	c, ok := Detect(blob)
	if !ok {
		return nil, ErrUnknownContainer
	}

	switch c {
	case ContainerOgg:
		return &Ogg{}, nil

	case ContainerWebM:
		return &WebM{}, nil

	default:
		return &FMP4{}, nil
	}
}

// Supports returns whether frames of a mime type can be extracted by at least one demuxer.
func Supports(mime string) bool {
	switch mime {
	case MimeOpus, MimeMPEG4Audio:
		return true
	}
	return false
}

func rescale(v int64, from int, to int) int64 {
	if from == to || from == 0 {
		return v
	}

	from64 := int64(from)
	to64 := int64(to)
	secs := v / from64
	dec := v % from64
	return secs*to64 + dec*to64/from64
}
