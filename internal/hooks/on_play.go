// Package hooks contains hook implementations.
package hooks

import (
	"strconv"
	"sync"

	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/externalcmd"
	"github.com/bluenviron/mtxplayer/internal/logger"
	"github.com/bluenviron/mtxplayer/internal/packetizer"
)

// OnPlay runs runOnPlayStarted and runOnPlayFinished commands of a stream.
// It implements player.Callback.
// A runOnPlayStarted command is stopped when the fragment finishes.
type OnPlay struct {
	Logger          logger.Writer
	ExternalCmdPool *externalcmd.Pool
	Conf            *conf.Stream

	mutex   sync.Mutex
	running map[uint64]*externalcmd.Cmd
}

func (h *OnPlay) env(fragmentID uint64, mediaSourceID uint64) externalcmd.Environment {
	return externalcmd.Environment{
		"MTX_STREAM":      h.Conf.Name,
		"MTX_SSRC":        strconv.FormatUint(uint64(h.Conf.SSRC), 10),
		"MTX_SOURCE_ID":   strconv.FormatUint(mediaSourceID, 10),
		"MTX_FRAGMENT_ID": strconv.FormatUint(fragmentID, 10),
	}
}

// OnPlayStarted implements player.Callback.
func (h *OnPlay) OnPlayStarted(fragmentID uint64, mediaSourceID uint64, _ uint32) {
	if h.Conf.RunOnPlayStarted == "" {
		return
	}

	h.Logger.Log(logger.Info, "runOnPlayStarted command started (fragment %d)", fragmentID)

	cmd := externalcmd.NewCmd(
		h.ExternalCmdPool,
		h.Conf.RunOnPlayStarted,
		h.env(fragmentID, mediaSourceID),
		func(err error) {
			h.Logger.Log(logger.Info, "runOnPlayStarted command exited: %v", err)
		})

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.running == nil {
		h.running = make(map[uint64]*externalcmd.Cmd)
	}
	h.running[fragmentID] = cmd
}

// OnPlay implements player.Callback.
func (h *OnPlay) OnPlay(_ uint64, _ uint64, _ *packetizer.Packet) {
}

// OnPlayFinished implements player.Callback.
func (h *OnPlay) OnPlayFinished(fragmentID uint64, mediaSourceID uint64, _ uint32) {
	h.mutex.Lock()
	cmd, ok := h.running[fragmentID]
	delete(h.running, fragmentID)
	h.mutex.Unlock()

	if ok {
		cmd.Close()
		h.Logger.Log(logger.Info, "runOnPlayStarted command stopped (fragment %d)", fragmentID)
	}

	if h.Conf.RunOnPlayFinished != "" {
		h.Logger.Log(logger.Info, "runOnPlayFinished command launched (fragment %d)", fragmentID)
		externalcmd.NewCmd(
			h.ExternalCmdPool,
			h.Conf.RunOnPlayFinished,
			h.env(fragmentID, mediaSourceID),
			nil)
	}
}

// Close stops commands that are still running.
func (h *OnPlay) Close() {
	h.mutex.Lock()
	running := h.running
	h.running = nil
	h.mutex.Unlock()

	for _, cmd := range running {
		cmd.Close()
	}
}
