// Package defs contains shared definitions.
package defs

// APIError is a generic error.
type APIError struct {
	Error string `json:"error"`
}

// APIFragment is a fragment that is being played.
type APIFragment struct {
	ID            uint64 `json:"id"`
	MediaSourceID uint64 `json:"mediaSourceId"`
	Paused        bool   `json:"paused"`
}

// APIStream is a stream.
type APIStream struct {
	Name              string         `json:"name"`
	SSRC              uint32         `json:"ssrc"`
	Mime              string         `json:"mime"`
	ClockRate         int            `json:"clockRate"`
	PayloadType       uint8          `json:"payloadType"`
	Playing           bool           `json:"playing"`
	Fragments         []*APIFragment `json:"fragments"`
	FragmentsStarted  uint64         `json:"fragmentsStarted"`
	FragmentsFinished uint64         `json:"fragmentsFinished"`
	PacketsSent       uint64         `json:"packetsSent"`
	BytesSent         uint64         `json:"bytesSent"`
}

// APIStreamList is a list of streams.
type APIStreamList struct {
	ItemCount int          `json:"itemCount"`
	PageCount int          `json:"pageCount"`
	Items     []*APIStream `json:"items"`
}

// APIPlayResult is the result of a play request.
type APIPlayResult struct {
	FragmentID uint64 `json:"fragmentId"`
}

// APIStopResult is the result of a stop request.
type APIStopResult struct {
	Stopped int `json:"stopped"`
}
