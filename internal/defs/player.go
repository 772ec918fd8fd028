package defs

import "errors"

// ErrPlayFailed is returned when no fragment could be created from a blob.
var ErrPlayFailed = errors.New("blob cannot be played")

// Player is the entry point of the playback engine, as seen by outer surfaces.
// Streams are identified by name.
type Player interface {
	Play(name string, mediaSourceID uint64, blob []byte) (uint64, error)
	Stop(name string, mediaSourceID uint64, fragmentID uint64) (int, error)
	Pause(name string, fragmentID uint64, paused bool) error
	APIStreamsList() (*APIStreamList, error)
	APIStreamsGet(name string) (*APIStream, error)
	APIStreamsSDP(name string) ([]byte, error)
}
