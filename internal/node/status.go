package node

// Status represents the execution state of a node in the graph.
type Status int32

const (
	// StatusPending is the initial state: some predecessor has not succeeded yet.
	StatusPending Status = iota
	// StatusReady means every predecessor succeeded and the node waits for a worker.
	StatusReady
	// StatusRunning means a worker is executing the node.
	StatusRunning
	// StatusSucceeded means the task returned without error.
	StatusSucceeded
	// StatusFailed means the task returned an error or panicked.
	StatusFailed
	// StatusSkipped means the node never ran because an ancestor failed.
	StatusSkipped
)

var statusNames = [...]string{
	StatusPending:   "pending",
	StatusReady:     "ready",
	StatusRunning:   "running",
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
	StatusSkipped:   "skipped",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusReady, StatusSkipped},
	StatusReady:   {StatusRunning, StatusSkipped},
	StatusRunning: {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether a node may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
