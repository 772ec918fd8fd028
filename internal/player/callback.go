package player

import (
	"github.com/bluenviron/mtxplayer/internal/packetizer"
)

// Callback receives playback events of a stream.
// Methods are called on the registry goroutine, in order for each fragment:
// OnPlayStarted, zero or more OnPlay, OnPlayFinished.
// They must not call Registry methods synchronously.
type Callback interface {
	OnPlayStarted(fragmentID uint64, mediaSourceID uint64, ssrc uint32)
	OnPlay(fragmentID uint64, mediaSourceID uint64, pkt *packetizer.Packet)
	OnPlayFinished(fragmentID uint64, mediaSourceID uint64, ssrc uint32)
}

// CallbackFuncs implements Callback with optional functions.
type CallbackFuncs struct {
	Started  func(fragmentID uint64, mediaSourceID uint64, ssrc uint32)
	Packet   func(fragmentID uint64, mediaSourceID uint64, pkt *packetizer.Packet)
	Finished func(fragmentID uint64, mediaSourceID uint64, ssrc uint32)
}

// OnPlayStarted implements Callback.
func (c *CallbackFuncs) OnPlayStarted(fragmentID uint64, mediaSourceID uint64, ssrc uint32) {
	if c.Started != nil {
		c.Started(fragmentID, mediaSourceID, ssrc)
	}
}

// OnPlay implements Callback.
func (c *CallbackFuncs) OnPlay(fragmentID uint64, mediaSourceID uint64, pkt *packetizer.Packet) {
	if c.Packet != nil {
		c.Packet(fragmentID, mediaSourceID, pkt)
	}
}

// OnPlayFinished implements Callback.
func (c *CallbackFuncs) OnPlayFinished(fragmentID uint64, mediaSourceID uint64, ssrc uint32) {
	if c.Finished != nil {
		c.Finished(fragmentID, mediaSourceID, ssrc)
	}
}

// MultiCallback forwards events to several callbacks, in order.
type MultiCallback []Callback

// OnPlayStarted implements Callback.
func (m MultiCallback) OnPlayStarted(fragmentID uint64, mediaSourceID uint64, ssrc uint32) {
	for _, c := range m {
		c.OnPlayStarted(fragmentID, mediaSourceID, ssrc)
	}
}

// OnPlay implements Callback.
func (m MultiCallback) OnPlay(fragmentID uint64, mediaSourceID uint64, pkt *packetizer.Packet) {
	for _, c := range m {
		c.OnPlay(fragmentID, mediaSourceID, pkt)
	}
}

// OnPlayFinished implements Callback.
func (m MultiCallback) OnPlayFinished(fragmentID uint64, mediaSourceID uint64, ssrc uint32) {
	for _, c := range m {
		c.OnPlayFinished(fragmentID, mediaSourceID, ssrc)
	}
}
