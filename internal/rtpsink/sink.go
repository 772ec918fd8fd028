// Package rtpsink contains a playback consumer that sends RTP packets over UDP.
package rtpsink

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4/pkg/rtcpsender"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/bluenviron/mtxplayer/internal/asyncwriter"
	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/counterdumper"
	"github.com/bluenviron/mtxplayer/internal/errordumper"
	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/packetizer"
)

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// Sink is a player.Callback that sends packets of a stream to a UDP destination.
// Timestamps and sequence numbers are continuous across fragments.
// Sender reports are sent to the port following the destination one,
// once the first packet has been sent.
type Sink struct {
	Conf           *conf.Stream
	WriteQueueSize int
	Parent         logger.Writer

	rtpAddr    *net.UDPAddr
	rtcpAddr   *net.UDPAddr
	conn       *net.UDPConn
	writer     *asyncwriter.Writer
	rtcpSender *rtcpsender.RTCPSender
	errs       *errordumper.Dumper
	sent       *counterdumper.CounterDumper

	mutex          sync.Mutex
	sequenceNumber uint16
	nextTimestamp  uint32
	bases          map[uint64]uint32
}

// Initialize initializes Sink.
func (s *Sink) Initialize() error {
	var err error
	s.rtpAddr, err = s.Conf.DestinationAddr()
	if err != nil {
		return err
	}

	s.rtcpAddr = &net.UDPAddr{
		IP:   s.rtpAddr.IP,
		Port: s.rtpAddr.Port + 1,
		Zone: s.rtpAddr.Zone,
	}

	v, err := randUint32()
	if err != nil {
		return err
	}
	s.sequenceNumber = uint16(v)

	s.nextTimestamp, err = randUint32()
	if err != nil {
		return err
	}

	s.conn, err = net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}

	s.writer = &asyncwriter.Writer{
		QueueSize: s.WriteQueueSize,
		Parent:    s,
	}
	err = s.writer.Initialize()
	if err != nil {
		s.conn.Close()
		return err
	}

	s.errs = &errordumper.Dumper{
		OnReport: func(count uint64, last error) {
			if count == 1 {
				s.Log(logger.Warn, "write error: %v", last)
			} else {
				s.Log(logger.Warn, "%d write errors, last was: %v", count, last)
			}
		},
	}
	s.errs.Start()

	s.sent = &counterdumper.CounterDumper{
		OnReport: func(delta uint64, total uint64) {
			s.Log(logger.Debug, "%d packets sent (%d total)", delta, total)
		},
	}
	s.sent.Start()

	s.bases = make(map[uint64]uint32)

	s.writer.Start()

	s.rtcpSender = &rtcpsender.RTCPSender{
		ClockRate: s.Conf.ClockRate,
		Period:    time.Duration(s.Conf.RTCPPeriod),
		TimeNow:   time.Now,
		WritePacketRTCP: func(pkt rtcp.Packet) {
			byts, err := pkt.Marshal()
			if err != nil {
				s.errs.Add(err)
				return
			}
			s.write(byts, s.rtcpAddr, false)
		},
	}
	s.rtcpSender.Initialize()

	s.Log(logger.Info, "sending to %s", s.rtpAddr)

	return nil
}

// Close closes Sink.
func (s *Sink) Close() {
	s.rtcpSender.Close()
	s.writer.Stop()
	s.sent.Stop()
	s.errs.Stop()
	s.conn.Close()
}

// Log implements logger.Writer.
func (s *Sink) Log(level logger.Level, format string, args ...any) {
	s.Parent.Log(level, "[sink %s] "+format, append([]any{s.Conf.Name}, args...)...)
}

// PacketsSent returns the number of packets written to the socket.
func (s *Sink) PacketsSent() uint64 {
	return s.sent.Total()
}

// LocalAddr returns the address packets are sent from.
func (s *Sink) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Sink) write(byts []byte, addr *net.UDPAddr, count bool) {
	s.writer.Push(func() error {
		_, err := s.conn.WriteToUDP(byts, addr)
		if err != nil {
			s.errs.Add(err)
			return nil
		}

		if count {
			s.sent.Increase()
		}
		return nil
	})
}

// rewrite moves a packet of a fragment onto the timeline of the sink.
func (s *Sink) rewrite(fragmentID uint64, pkt *packetizer.Packet) ([]byte, error) {
	var p rtp.Packet
	err := p.Unmarshal(pkt.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid packet: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	base, ok := s.bases[fragmentID]
	if !ok {
		base = s.nextTimestamp
		s.bases[fragmentID] = base
	}

	p.SSRC = s.Conf.SSRC
	p.PayloadType = s.Conf.PayloadType
	p.SequenceNumber = s.sequenceNumber
	p.Timestamp = base + pkt.TimestampOffset

	byts, err := p.Marshal()
	if err != nil {
		return nil, err
	}

	s.sequenceNumber++

	end := p.Timestamp + packetizer.DefaultFrameSamples(s.Conf.Codec.Mime(), s.Conf.ClockRate)
	if int32(end-s.nextTimestamp) > 0 {
		s.nextTimestamp = end
	}

	s.rtcpSender.ProcessPacket(&p, time.Now(), true)

	return byts, nil
}

// OnPlayStarted implements player.Callback.
func (s *Sink) OnPlayStarted(fragmentID uint64, mediaSourceID uint64, _ uint32) {
	s.Log(logger.Debug, "fragment %d of source %d started", fragmentID, mediaSourceID)
}

// OnPlay implements player.Callback.
func (s *Sink) OnPlay(fragmentID uint64, _ uint64, pkt *packetizer.Packet) {
	byts, err := s.rewrite(fragmentID, pkt)
	if err != nil {
		s.errs.Add(err)
		return
	}

	s.write(byts, s.rtpAddr, true)
}

// OnPlayFinished implements player.Callback.
func (s *Sink) OnPlayFinished(fragmentID uint64, mediaSourceID uint64, _ uint32) {
	s.mutex.Lock()
	delete(s.bases, fragmentID)
	s.mutex.Unlock()

	s.Log(logger.Debug, "fragment %d of source %d finished", fragmentID, mediaSourceID)
}
