package conf

import (
	"fmt"
	"net"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"time"
)

var reStreamName = regexp.MustCompile(`^[a-z0-9]+$`)

// Stream is a stream configuration.
type Stream struct {
	Name string `json:"-"`

	SSRC              uint32   `json:"ssrc"`
	Codec             Codec    `json:"codec"`
	ClockRate         int      `json:"clockRate"`
	PayloadType       uint8    `json:"payloadType"`
	Destination       string   `json:"destination"`
	RTCPPeriod        Duration `json:"rtcpPeriod"`
	Translator        string   `json:"translator"`
	RunOnPlayStarted  string   `json:"runOnPlayStarted"`
	RunOnPlayFinished string   `json:"runOnPlayFinished"`
}

func (pconf *Stream) setDefaults() {
	if pconf.Codec == "" {
		pconf.Codec = CodecOpus
	}
	if pconf.ClockRate == 0 {
		pconf.ClockRate = pconf.Codec.DefaultClockRate()
	}
	if pconf.PayloadType == 0 {
		switch pconf.Codec {
		case CodecMPEG4Audio:
			pconf.PayloadType = 96
		default:
			pconf.PayloadType = 111
		}
	}
	if pconf.RTCPPeriod == 0 {
		pconf.RTCPPeriod = Duration(5 * time.Second)
	}
}

// Equal checks whether two streams are equal.
func (pconf *Stream) Equal(other *Stream) bool {
	return reflect.DeepEqual(pconf, other)
}

// DestinationAddr returns the UDP address packets are sent to.
func (pconf *Stream) DestinationAddr() (*net.UDPAddr, error) {
	u, err := url.Parse(pconf.Destination)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "udp" {
		return nil, fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, err
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("invalid port '%s'", portStr)
	}

	return net.ResolveUDPAddr("udp", net.JoinHostPort(host, portStr))
}

func (pconf *Stream) validate(name string) error {
	if !reStreamName.MatchString(name) {
		return fmt.Errorf("invalid stream name '%s': it must contain only lowercase letters and digits", name)
	}

	pconf.Name = name

	pconf.setDefaults()

	if pconf.SSRC == 0 {
		return fmt.Errorf("'ssrc' must be set")
	}

	if pconf.ClockRate <= 0 || pconf.ClockRate > 192000 {
		return fmt.Errorf("invalid 'clockRate': %d", pconf.ClockRate)
	}

	if pconf.PayloadType < 96 || pconf.PayloadType > 127 {
		return fmt.Errorf("'payloadType' must be a dynamic payload type (96-127)")
	}

	if pconf.RTCPPeriod < 0 {
		return fmt.Errorf("'rtcpPeriod' must be greater than zero")
	}

	if pconf.Destination != "" {
		if _, err := pconf.DestinationAddr(); err != nil {
			return fmt.Errorf("invalid 'destination': %w", err)
		}
	}

	if pconf.Translator != "" {
		u, err := url.Parse(pconf.Translator)
		if err != nil {
			return fmt.Errorf("invalid 'translator': %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("invalid 'translator': unsupported scheme '%s'", u.Scheme)
		}
	}

	return nil
}
