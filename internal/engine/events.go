package engine

// EventType tags one element of a streaming execution's event sequence.
type EventType string

const (
	EventStdout EventType = "stdout"
	EventStderr EventType = "stderr"
	EventError  EventType = "error"
	EventDone   EventType = "done"
)

// Event is one streaming-mode event. Output events carry the line text in
// Data; an error event carries a human-readable failure notice; the single
// terminal done event carries the final exit code.
type Event struct {
	Type     EventType
	Data     string
	ExitCode int
}

// streamBuffer smooths bursts without letting a slow consumer buffer
// unbounded output.
const streamBuffer = 16

func eventTypeFor(s Stream) EventType {
	if s == StreamStderr {
		return EventStderr
	}
	return EventStdout
}
