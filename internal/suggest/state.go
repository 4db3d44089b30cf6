package suggest

// State is a step of one Fetch.
//
//	Idle -> AwaitingStream -> StreamWon -> Done
//	Idle -> AwaitingStream -> StreamTimedOut -> AwaitingHTTP -> (HTTPWon | HTTPFailed) -> Done
//
// StreamTimedOut is also entered when the stream fails before the timer fires.
type State int

const (
	StateIdle State = iota
	StateAwaitingStream
	StateStreamWon
	StateStreamTimedOut
	StateAwaitingHTTP
	StateHTTPWon
	StateHTTPFailed
	StateDone
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateAwaitingStream: "awaiting_stream",
	StateStreamWon:      "stream_won",
	StateStreamTimedOut: "stream_timed_out",
	StateAwaitingHTTP:   "awaiting_http",
	StateHTTPWon:        "http_won",
	StateHTTPFailed:     "http_failed",
	StateDone:           "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Observer is told about every state transition of every request.
// It is called from the goroutine running Fetch and must not block.
type Observer func(requestID string, s State)
