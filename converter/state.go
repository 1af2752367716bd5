package converter

// jobState tracks one conversion for logging.
type jobState int

const (
	stateSubmitted jobState = iota
	statePolling
	stateComplete
	stateFailed
)

func (s jobState) String() string {
	switch s {
	case stateSubmitted:
		return "submitted"
	case statePolling:
		return "polling"
	case stateComplete:
		return "complete"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
