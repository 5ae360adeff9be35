package orchestrator

// Phase is where the session stands in the send cycle:
// Idle -> Sending -> (Streaming | AwaitingAnswer) -> Idle. A failed attempt
// passes through Error and always lands back in Idle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
	PhaseAwaitingAnswer
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseAwaitingAnswer:
		return "awaiting_answer"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}
