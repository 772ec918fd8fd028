// Package metrics contains the metrics provider.
package metrics

import (
	"net"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/defs"
	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/protocols/httpp"
)

var streamLabels = []string{"name", "ssrc"}

var (
	descStreams = prometheus.NewDesc(
		"mtxplayer_streams", "Number of streams.", nil, nil)
	descPlaying = prometheus.NewDesc(
		"mtxplayer_stream_playing", "Whether the stream is playing at least one fragment.", streamLabels, nil)
	descFragments = prometheus.NewDesc(
		"mtxplayer_stream_fragments", "Number of fragments owned by the stream.", streamLabels, nil)
	descFragmentsStarted = prometheus.NewDesc(
		"mtxplayer_stream_fragments_started_total", "Number of fragments that started playing.", streamLabels, nil)
	descFragmentsFinished = prometheus.NewDesc(
		"mtxplayer_stream_fragments_finished_total", "Number of fragments that finished playing.", streamLabels, nil)
	descPacketsSent = prometheus.NewDesc(
		"mtxplayer_stream_packets_sent_total", "Number of packets delivered to consumers.", streamLabels, nil)
	descBytesSent = prometheus.NewDesc(
		"mtxplayer_stream_bytes_sent_total", "Number of payload bytes delivered to consumers.", streamLabels, nil)
)

type metricsPlayer interface {
	APIStreamsList() (*defs.APIStreamList, error)
}

// streamsCollector reads stream statistics at scrape time.
type streamsCollector struct {
	player metricsPlayer
	parent logger.Writer
}

func (c *streamsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descStreams
	ch <- descPlaying
	ch <- descFragments
	ch <- descFragmentsStarted
	ch <- descFragmentsFinished
	ch <- descPacketsSent
	ch <- descBytesSent
}

func (c *streamsCollector) Collect(ch chan<- prometheus.Metric) {
	data, err := c.player.APIStreamsList()
	if err != nil {
		c.parent.Log(logger.Warn, "unable to collect streams: %v", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(descStreams, prometheus.GaugeValue, float64(len(data.Items)))

	for _, s := range data.Items {
		labels := []string{s.Name, strconv.FormatUint(uint64(s.SSRC), 10)}

		playing := 0.0
		if s.Playing {
			playing = 1
		}

		ch <- prometheus.MustNewConstMetric(descPlaying, prometheus.GaugeValue, playing, labels...)
		ch <- prometheus.MustNewConstMetric(descFragments, prometheus.GaugeValue,
			float64(len(s.Fragments)), labels...)
		ch <- prometheus.MustNewConstMetric(descFragmentsStarted, prometheus.CounterValue,
			float64(s.FragmentsStarted), labels...)
		ch <- prometheus.MustNewConstMetric(descFragmentsFinished, prometheus.CounterValue,
			float64(s.FragmentsFinished), labels...)
		ch <- prometheus.MustNewConstMetric(descPacketsSent, prometheus.CounterValue,
			float64(s.PacketsSent), labels...)
		ch <- prometheus.MustNewConstMetric(descBytesSent, prometheus.CounterValue,
			float64(s.BytesSent), labels...)
	}
}

// Metrics is a metrics provider.
type Metrics struct {
	Address      string
	ReadTimeout  conf.Duration
	WriteTimeout conf.Duration
	Player       metricsPlayer
	Parent       logger.Writer

	httpServer *httpp.Server
}

// Initialize initializes Metrics.
func (m *Metrics) Initialize() error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		&streamsCollector{player: m.Player, parent: m},
	)

	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	m.httpServer = &httpp.Server{
		Address:      m.Address,
		ReadTimeout:  time.Duration(m.ReadTimeout),
		WriteTimeout: time.Duration(m.WriteTimeout),
		Handler:      router,
		Parent:       m,
	}
	err := m.httpServer.Initialize()
	if err != nil {
		return err
	}

	m.Log(logger.Info, "listener opened on "+m.Address)

	return nil
}

// Close closes Metrics.
func (m *Metrics) Close() {
	m.Log(logger.Info, "listener is closing")
	m.httpServer.Close()
}

// Log implements logger.Writer.
func (m *Metrics) Log(level logger.Level, format string, args ...any) {
	m.Parent.Log(level, "[metrics] "+format, args...)
}

// Addr returns the listening address.
func (m *Metrics) Addr() net.Addr {
	return m.httpServer.Addr()
}

