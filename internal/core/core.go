// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/bluenviron/mtxplayer/internal/api"
	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/confwatcher"
	"github.com/bluenviron/mtxplayer/internal/externalcmd"
	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/mediatimer"
	"github.com/bluenviron/mtxplayer/internal/metrics"
	"github.com/bluenviron/mtxplayer/internal/player"
	"github.com/bluenviron/mtxplayer/internal/pprof"
	"github.com/bluenviron/mtxplayer/internal/rlimit"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"mtxplayer.yml",
	"/usr/local/etc/mtxplayer.yml",
	"/usr/etc/mtxplayer.yml",
	"/etc/mtxplayer/mtxplayer.yml",
}

// RTP header size, subtracted from the UDP payload size.
const rtpHeaderSize = 12

var cli struct {
	Version  bool   `help:"print version"`
	Confpath string `arg:"" optional:""`
}

// Core is an instance of mtxplayer.
type Core struct {
	ctx             context.Context
	ctxCancel       func()
	confPath        string
	conf            *conf.Conf
	loggerMutex     sync.RWMutex
	logger          *logger.Logger
	externalCmdPool *externalcmd.Pool
	timer           *mediatimer.Service
	registry        *player.Registry
	apiPlayer       *apiPlayer
	outputs         map[string]*streamOutput
	api             *api.API
	metrics         *metrics.Metrics
	pprof           *pprof.PPROF
	confWatcher     *confwatcher.ConfWatcher

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("mtxplayer "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is mtxplayer.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		done:      make(chan struct{}),
	}

	p.conf, p.confPath, err = conf.Load(cli.Confpath, defaultConfPaths)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	err = p.createResources(true)
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources(nil)
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log implements logger.Writer.
func (p *Core) Log(level logger.Level, format string, args ...any) {
	p.loggerMutex.RLock()
	defer p.loggerMutex.RUnlock()

	if p.logger != nil {
		p.logger.Log(level, format, args...)
	}
}

func newLogger(c *conf.Conf) (*logger.Logger, error) {
	l := &logger.Logger{
		Level:        logger.Level(c.LogLevel),
		Destinations: c.LogDestinations,
		Structured:   c.LogStructured,
		File:         c.LogFile,
		SysLogPrefix: c.SysLogPrefix,
	}
	err := l.Initialize()
	if err != nil {
		return nil, err
	}
	return l, nil
}

func loggerDestinationsChanged(newConf *conf.Conf, oldConf *conf.Conf) bool {
	return !reflect.DeepEqual(newConf.LogDestinations, oldConf.LogDestinations) ||
		newConf.LogStructured != oldConf.LogStructured ||
		newConf.LogFile != oldConf.LogFile ||
		newConf.SysLogPrefix != oldConf.SysLogPrefix
}

func (p *Core) setLogger(l *logger.Logger) *logger.Logger {
	p.loggerMutex.Lock()
	defer p.loggerMutex.Unlock()

	old := p.logger
	p.logger = l
	return old
}

// reloadLogger applies the logging configuration while other components keep logging.
func (p *Core) reloadLogger(newConf *conf.Conf) error {
	if !loggerDestinationsChanged(newConf, p.conf) {
		if newConf.LogLevel != p.conf.LogLevel {
			p.loggerMutex.RLock()
			p.logger.SetLevel(logger.Level(newConf.LogLevel))
			p.loggerMutex.RUnlock()
		}
		return nil
	}

	l, err := newLogger(newConf)
	if err != nil {
		return err
	}

	old := p.setLogger(l)
	old.Close()

	return nil
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() <-chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

outer:
	for {
		select {
		case <-confChanged:
			p.Log(logger.Info, "reloading configuration (file changed)")

			newConf, _, err := conf.Load(p.confPath, nil)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

			err = p.reloadConf(newConf)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.ctxCancel()

	p.closeResources(nil)
}

func (p *Core) createResources(initial bool) error {
	var err error

	if initial {
		var l *logger.Logger
		l, err = newLogger(p.conf)
		if err != nil {
			return err
		}
		p.setLogger(l)
	}

	if initial {
		p.Log(logger.Info, "mtxplayer %s", version)

		if p.confPath != "" {
			p.Log(logger.Debug, "configuration loaded from %s", p.confPath)
		} else {
			p.Log(logger.Warn, "configuration file not found, using the default configuration")
		}

		if n, err2 := rlimit.Raise(); err2 != nil {
			p.Log(logger.Warn, "unable to raise the file descriptor limit: %v", err2)
		} else if n != 0 {
			p.Log(logger.Debug, "file descriptor limit is %d", n)
		}

		p.externalCmdPool = &externalcmd.Pool{}
		p.externalCmdPool.Initialize()
	}

	if p.timer == nil {
		p.timer = &mediatimer.Service{
			MaxHandles: p.conf.TimerMaxHandles,
			Parent:     p,
		}
		err = p.timer.Initialize()
		if err != nil {
			p.timer = nil
			return err
		}
	}

	if p.registry == nil {
		p.registry = &player.Registry{
			Timer:             p.timer,
			MaxStalledTicks:   p.conf.MaxStalledTicks,
			RTPMaxPayloadSize: p.conf.UDPMaxPayload - rtpHeaderSize,
			Parent:            p,
		}
		err = p.registry.Initialize()
		if err != nil {
			p.registry = nil
			return err
		}

		p.apiPlayer = &apiPlayer{registry: p.registry}
	}

	if p.outputs == nil {
		p.outputs = make(map[string]*streamOutput)
	}

	for _, name := range p.conf.StreamNames() {
		if _, ok := p.outputs[name]; ok {
			continue
		}

		o := &streamOutput{
			conf:            p.conf.Streams[name],
			writeQueueSize:  p.conf.WriteQueueSize,
			registry:        p.registry,
			externalCmdPool: p.externalCmdPool,
			parent:          p,
		}
		err = o.initialize()
		if err != nil {
			return fmt.Errorf("stream '%s': %w", name, err)
		}
		p.outputs[name] = o
	}

	p.apiPlayer.setStreams(p.conf.Streams)

	if p.conf.API && p.api == nil {
		i := &api.API{
			Address:      p.conf.APIAddress,
			ReadTimeout:  p.conf.ReadTimeout,
			WriteTimeout: p.conf.WriteTimeout,
			Player:       p.apiPlayer,
			Parent:       p,
		}
		err = i.Initialize()
		if err != nil {
			return err
		}
		p.api = i
	}

	if p.conf.Metrics && p.metrics == nil {
		i := &metrics.Metrics{
			Address:      p.conf.MetricsAddress,
			ReadTimeout:  p.conf.ReadTimeout,
			WriteTimeout: p.conf.WriteTimeout,
			Player:       p.apiPlayer,
			Parent:       p,
		}
		err = i.Initialize()
		if err != nil {
			return err
		}
		p.metrics = i
	}

	if p.conf.PPROF && p.pprof == nil {
		i := &pprof.PPROF{
			Address:      p.conf.PPROFAddress,
			ReadTimeout:  p.conf.ReadTimeout,
			WriteTimeout: p.conf.WriteTimeout,
			Parent:       p,
		}
		err = i.Initialize()
		if err != nil {
			return err
		}
		p.pprof = i
	}

	if initial && p.confPath != "" {
		p.confWatcher = &confwatcher.ConfWatcher{
			FilePath: p.confPath,
			Parent:   p,
		}
		err = p.confWatcher.Initialize()
		if err != nil {
			p.confWatcher = nil
			return err
		}
	}

	return nil
}

func (p *Core) closeResources(newConf *conf.Conf) {
	closeTimer := newConf == nil ||
		newConf.TimerMaxHandles != p.conf.TimerMaxHandles

	closeRegistry := closeTimer ||
		newConf.MaxStalledTicks != p.conf.MaxStalledTicks ||
		newConf.UDPMaxPayload != p.conf.UDPMaxPayload

	closeAllStreams := closeRegistry ||
		newConf.WriteQueueSize != p.conf.WriteQueueSize

	closeAPI := closeRegistry ||
		newConf.API != p.conf.API ||
		newConf.APIAddress != p.conf.APIAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout

	closeMetrics := closeRegistry ||
		newConf.Metrics != p.conf.Metrics ||
		newConf.MetricsAddress != p.conf.MetricsAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout

	closePPROF := newConf == nil ||
		newConf.PPROF != p.conf.PPROF ||
		newConf.PPROFAddress != p.conf.PPROFAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout

	if newConf == nil && p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	if closePPROF && p.pprof != nil {
		p.pprof.Close()
		p.pprof = nil
	}

	if closeMetrics && p.metrics != nil {
		p.metrics.Close()
		p.metrics = nil
	}

	if closeAPI && p.api != nil {
		p.api.Close()
		p.api = nil
	}

	for name, o := range p.outputs {
		if closeAllStreams {
			o.close()
			delete(p.outputs, name)
			continue
		}

		newStream, ok := newConf.Streams[name]
		if !ok || !newStream.Equal(o.conf) {
			o.close()
			delete(p.outputs, name)
		}
	}

	if closeRegistry && p.registry != nil {
		p.registry.Close()
		p.registry = nil
		p.apiPlayer = nil
	}

	if closeTimer && p.timer != nil {
		p.timer.Close()
		p.timer = nil
	}

	if newConf == nil && p.externalCmdPool != nil {
		p.Log(logger.Info, "waiting for running hooks")
		p.externalCmdPool.Close()
		p.externalCmdPool = nil
	}

	if newConf == nil {
		if l := p.setLogger(nil); l != nil {
			l.Close()
		}
	}
}

func (p *Core) reloadConf(newConf *conf.Conf) error {
	err := p.reloadLogger(newConf)
	if err != nil {
		return err
	}

	p.closeResources(newConf)
	p.conf = newConf
	return p.createResources(false)
}
