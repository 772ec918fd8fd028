package rtpsink

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pion/sdp/v3"

	"github.com/bluenviron/mtxplayer/internal/conf"
)

func streamFormat(sconf *conf.Stream) format.Format {
	switch sconf.Codec {
	case conf.CodecMPEG4Audio:
		return &format.MPEG4Audio{
			PayloadTyp: sconf.PayloadType,
			Config: &mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   sconf.ClockRate,
				ChannelCount: 2,
			},
			SizeLength:       13,
			IndexLength:      3,
			IndexDeltaLength: 3,
		}

	default:
		return &format.Opus{
			PayloadTyp:   sconf.PayloadType,
			ChannelCount: 2,
		}
	}
}

func marshalFMTP(fmtp map[string]string) string {
	keys := make([]string, 0, len(fmtp))
	for k := range fmtp {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fmtp[k]
	}
	return strings.Join(parts, "; ")
}

// SDP returns a session description that allows receivers to decode the stream.
func SDP(sconf *conf.Stream) ([]byte, error) {
	addr, err := sconf.DestinationAddr()
	if err != nil {
		return nil, err
	}

	addressType := "IP4"
	if addr.IP.To4() == nil {
		addressType = "IP6"
	}

	forma := streamFormat(sconf)
	pt := strconv.FormatUint(uint64(sconf.PayloadType), 10)

	attributes := []sdp.Attribute{
		{Key: "rtpmap", Value: pt + " " + forma.RTPMap()},
	}

	if fmtp := forma.FMTP(); len(fmtp) != 0 {
		attributes = append(attributes, sdp.Attribute{Key: "fmtp", Value: pt + " " + marshalFMTP(fmtp)})
	}

	attributes = append(attributes,
		sdp.Attribute{Key: "ssrc", Value: strconv.FormatUint(uint64(sconf.SSRC), 10) + " cname:" + sconf.Name},
		sdp.Attribute{Key: "sendonly"},
	)

	sd := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(sconf.SSRC),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    addressType,
			UnicastAddress: "127.0.0.1",
		},
		SessionName: sdp.SessionName(sconf.Name),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType,
			Address:     &sdp.Address{Address: addr.IP.String()},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{{
			MediaName: sdp.MediaName{
				Media:   "audio",
				Port:    sdp.RangedPort{Value: addr.Port},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{pt},
			},
			Attributes: attributes,
		}},
	}

	return sd.Marshal()
}

// SDP returns the session description of the sink.
func (s *Sink) SDP() ([]byte, error) {
	return SDP(s.Conf)
}
