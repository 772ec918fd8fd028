package rtpsink

import (
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/demuxer"
	"github.com/bluenviron/mtxplayer/internal/packetizer"
	"github.com/bluenviron/mtxplayer/internal/test"
)

// listenPair listens on two consecutive UDP ports.
func listenPair(t *testing.T) (*net.UDPConn, *net.UDPConn, int) {
	for range 20 {
		rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)

		port := rtpConn.LocalAddr().(*net.UDPAddr).Port

		rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port + 1})
		if err != nil {
			rtpConn.Close()
			continue
		}

		t.Cleanup(func() {
			rtpConn.Close()
			rtcpConn.Close()
		})

		return rtpConn, rtcpConn, port
	}

	t.Fatal("unable to find two consecutive ports")
	return nil, nil, 0
}

func readRTP(t *testing.T, conn *net.UDPConn) *rtp.Packet {
	buf := make([]byte, 1500)
	err := conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	var pkt rtp.Packet
	err = pkt.Unmarshal(buf[:n])
	require.NoError(t, err)
	return &pkt
}

func playFragment(t *testing.T, s *Sink, fragmentID uint64, frameCount int) {
	p, err := packetizer.New(demuxer.MimeOpus, packetizer.Conf{PayloadType: 100, SSRC: 5})
	require.NoError(t, err)

	s.OnPlayStarted(fragmentID, 42, 1000)

	for i := range frameCount {
		pkt := p.AddFrame(&demuxer.Frame{
			PTS:     int64(i) * 960,
			Payload: []byte{1, 2, 3, 4, byte(i)},
		})
		require.NotNil(t, pkt)
		s.OnPlay(fragmentID, 42, pkt)
	}

	s.OnPlayFinished(fragmentID, 42, 1000)
}

func TestSink(t *testing.T) {
	rtpConn, rtcpConn, port := listenPair(t)

	s := &Sink{
		Conf: &conf.Stream{
			Name:        "out",
			SSRC:        1000,
			Codec:       conf.CodecOpus,
			ClockRate:   48000,
			PayloadType: 111,
			Destination: "udp://127.0.0.1:" + strconv.Itoa(port),
			RTCPPeriod:  conf.Duration(100 * time.Millisecond),
		},
		WriteQueueSize: 64,
		Parent:         test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	playFragment(t, s, 1, 3)
	playFragment(t, s, 2, 2)

	pkts := make([]*rtp.Packet, 5)
	for i := range pkts {
		pkts[i] = readRTP(t, rtpConn)
	}

	base := pkts[0].Timestamp

	for i, pkt := range pkts {
		require.Equal(t, uint32(1000), pkt.SSRC)
		require.Equal(t, uint8(111), pkt.PayloadType)
		require.Equal(t, pkts[0].SequenceNumber+uint16(i), pkt.SequenceNumber)
		require.Equal(t, base+uint32(i)*960, pkt.Timestamp)
		require.Equal(t, i == 0 || i == 3, pkt.Marker)
	}

	require.Equal(t, []byte{1, 2, 3, 4, 2}, pkts[2].Payload)
	require.Equal(t, []byte{1, 2, 3, 4, 1}, pkts[4].Payload)

	buf := make([]byte, 1500)
	err = rtcpConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	require.NoError(t, err)

	for {
		var n int
		n, _, err = rtcpConn.ReadFromUDP(buf)
		require.NoError(t, err)

		var rpkts []rtcp.Packet
		rpkts, err = rtcp.Unmarshal(buf[:n])
		require.NoError(t, err)

		sr, ok := rpkts[0].(*rtcp.SenderReport)
		require.True(t, ok)
		require.Equal(t, uint32(1000), sr.SSRC)

		if sr.PacketCount == 5 {
			require.Equal(t, uint32(5*5), sr.OctetCount)
			break
		}
	}

	require.Eventually(t, func() bool {
		return s.PacketsSent() == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSinkNoSenderReportBeforePackets(t *testing.T) {
	_, rtcpConn, port := listenPair(t)

	s := &Sink{
		Conf: &conf.Stream{
			Name:        "out",
			SSRC:        1000,
			Codec:       conf.CodecOpus,
			ClockRate:   48000,
			PayloadType: 111,
			Destination: "udp://127.0.0.1:" + strconv.Itoa(port),
			RTCPPeriod:  conf.Duration(20 * time.Millisecond),
		},
		WriteQueueSize: 64,
		Parent:         test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	err = rtcpConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	require.NoError(t, err)

	_, _, err = rtcpConn.ReadFromUDP(make([]byte, 1500))
	require.Error(t, err)
}

func TestSinkInvalidDestination(t *testing.T) {
	s := &Sink{
		Conf: &conf.Stream{
			Name:        "out",
			Destination: "tcp://127.0.0.1:5000",
		},
		WriteQueueSize: 64,
		Parent:         test.NilLogger,
	}
	err := s.Initialize()
	require.EqualError(t, err, "unsupported scheme 'tcp'")
}

func TestSDP(t *testing.T) {
	for _, ca := range []struct {
		name     string
		conf     *conf.Stream
		contains []string
	}{
		{
			"opus",
			&conf.Stream{
				Name:        "out",
				SSRC:        1000,
				Codec:       conf.CodecOpus,
				ClockRate:   48000,
				PayloadType: 111,
				Destination: "udp://127.0.0.1:5000",
			},
			[]string{
				"s=out\r\n",
				"c=IN IP4 127.0.0.1\r\n",
				"m=audio 5000 RTP/AVP 111\r\n",
				"a=rtpmap:111 opus/48000/2\r\n",
				"a=ssrc:1000 cname:out\r\n",
				"a=sendonly\r\n",
			},
		},
		{
			"mpeg4audio",
			&conf.Stream{
				Name:        "aac",
				SSRC:        2000,
				Codec:       conf.CodecMPEG4Audio,
				ClockRate:   48000,
				PayloadType: 96,
				Destination: "udp://127.0.0.1:6000",
			},
			[]string{
				"m=audio 6000 RTP/AVP 96\r\n",
				"a=rtpmap:96 mpeg4-generic/48000/2\r\n",
				"a=fmtp:96 ",
				"mode=AAC-hbr",
				"sizelength=13",
			},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			byts, err := SDP(ca.conf)
			require.NoError(t, err)

			for _, c := range ca.contains {
				require.True(t, strings.Contains(string(byts), c), "missing %q in %q", c, string(byts))
			}
		})
	}
}
