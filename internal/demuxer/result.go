package demuxer

// Result is the outcome of a demuxer operation.
type Result int

// results.
const (
	ResultSuccess Result = iota
	ResultNeedMoreData
	ResultEndOfStream
	ResultInvalidArg
	ResultOutOfMemory
	ResultParseError
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultNeedMoreData:
		return "need more data"
	case ResultEndOfStream:
		return "end of stream"
	case ResultInvalidArg:
		return "invalid argument"
	case ResultOutOfMemory:
		return "out of memory"
	case ResultParseError:
		return "parse error"
	}
	return "unknown"
}

// IsError returns whether the result is an unrecoverable error.
func (r Result) IsError() bool {
	switch r {
	case ResultInvalidArg, ResultOutOfMemory, ResultParseError:
		return true
	}
	return false
}
