package session

// Phase is the lifecycle position of a peer session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingRemote
	PhaseNegotiating
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingRemote:
		return "awaiting-remote"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}
