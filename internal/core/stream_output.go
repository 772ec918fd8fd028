package core

import (
	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/externalcmd"
	"github.com/bluenviron/mtxplayer/internal/hooks"
	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/player"
	"github.com/bluenviron/mtxplayer/internal/rtpsink"
	"github.com/bluenviron/mtxplayer/internal/translator"
)

// streamOutput groups the resources attached to a configured stream.
type streamOutput struct {
	conf            *conf.Stream
	writeQueueSize  int
	registry        *player.Registry
	externalCmdPool *externalcmd.Pool
	parent          logger.Writer

	sink       *rtpsink.Sink
	onPlay     *hooks.OnPlay
	translator *translator.Client
}

func (o *streamOutput) initialize() error {
	var callbacks player.MultiCallback

	if o.conf.Destination != "" {
		o.sink = &rtpsink.Sink{
			Conf:           o.conf,
			WriteQueueSize: o.writeQueueSize,
			Parent:         o.parent,
		}
		err := o.sink.Initialize()
		if err != nil {
			return err
		}
		callbacks = append(callbacks, o.sink)
	}

	if o.conf.RunOnPlayStarted != "" || o.conf.RunOnPlayFinished != "" {
		o.onPlay = &hooks.OnPlay{
			Logger:          o.parent,
			ExternalCmdPool: o.externalCmdPool,
			Conf:            o.conf,
		}
		callbacks = append(callbacks, o.onPlay)
	}

	err := o.registry.AddStream(player.StreamConf{
		Name:        o.conf.Name,
		SSRC:        o.conf.SSRC,
		ClockRate:   o.conf.ClockRate,
		PayloadType: o.conf.PayloadType,
		Mime:        o.conf.Codec.Mime(),
	}, callbacks)
	if err != nil {
		o.closeConsumers()
		return err
	}

	if o.conf.Translator != "" {
		o.translator = &translator.Client{
			URL:        o.conf.Translator,
			StreamName: o.conf.Name,
			SSRC:       o.conf.SSRC,
			Player:     o.registry,
			Parent:     o.parent,
		}
		o.translator.Initialize()
	}

	return nil
}

func (o *streamOutput) close() {
	if o.translator != nil {
		o.translator.Close()
	}

	// once RemoveStream returns, callbacks are not called anymore.
	o.registry.RemoveStream(o.conf.SSRC)

	o.closeConsumers()
}

func (o *streamOutput) closeConsumers() {
	if o.onPlay != nil {
		o.onPlay.Close()
	}
	if o.sink != nil {
		o.sink.Close()
	}
}
