package conf

import (
	"encoding/json"
	"fmt"

	"github.com/bluenviron/mtxplayer/internal/conf/jsonwrapper"
	"github.com/bluenviron/mtxplayer/internal/demuxer"
)

// Codec is the codec of a stream.
type Codec string

// codecs.
const (
	CodecOpus       Codec = "opus"
	CodecMPEG4Audio Codec = "mpeg4audio"
)

// Mime returns the mime type associated with the codec.
func (c Codec) Mime() string {
	switch c {
	case CodecMPEG4Audio:
		return demuxer.MimeMPEG4Audio
	}
	return demuxer.MimeOpus
}

// DefaultClockRate returns the clock rate used when the stream doesn't set one.
func (c Codec) DefaultClockRate() int {
	return 48000
}

// MarshalJSON implements json.Marshaler.
func (c Codec) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Codec) UnmarshalJSON(b []byte) error {
	var in string
	if err := jsonwrapper.Unmarshal(b, &in); err != nil {
		return err
	}

	switch Codec(in) {
	case CodecOpus, CodecMPEG4Audio:
		*c = Codec(in)

	default:
		return fmt.Errorf("unsupported codec: '%s'", in)
	}

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (c *Codec) UnmarshalEnv(_ string, v string) error {
	return c.UnmarshalJSON([]byte(`"` + v + `"`))
}
