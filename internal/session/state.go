package session

import "fmt"

// State is a session's position in its lifecycle.
type State int32

const (
	Created State = iota
	Compiling
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Compiling:
		return "compiling"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// validTransitions lists every allowed edge. Anything else is a bug.
var validTransitions = map[State][]State{
	Created:   {Compiling},
	Compiling: {Running, Terminated},
	Running:   {Terminated},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reason says why a session terminated.
type Reason string

const (
	ReasonExited        Reason = "exited"
	ReasonCompileFailed Reason = "compile_failed"
	ReasonStopped       Reason = "stopped"
	ReasonDisconnected  Reason = "disconnected"
	ReasonIdle          Reason = "idle_timeout"
	ReasonLifetime      Reason = "max_lifetime"
	ReasonShutdown      Reason = "shutdown"
	ReasonError         Reason = "error"
)

// Notice is delivered to the sink exactly once, when the session ends.
type Notice struct {
	Reason   Reason `json:"reason"`
	ExitCode int    `json:"exit_code"`
	Message  string `json:"message"`
}

// Sink receives a session's output. Started is called once the program
// is running and before any Output. Output is called from a single
// goroutine, in order; p is only valid for the duration of the call.
// Returning an error from Started or Output stops the session as
// disconnected.
type Sink interface {
	Started(id string) error
	Output(p []byte) error
	Terminated(n Notice) error
}
