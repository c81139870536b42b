package calls

// Status is the lifecycle state of a Call.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// MapProviderStatus translates a provider-native status into a Status.
// It is total: unrecognized values (including "") map to StatusPending.
func MapProviderStatus(providerStatus string) Status {
	switch providerStatus {
	case "queued", "scheduled":
		return StatusPending
	case "in-progress":
		return StatusInProgress
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusFailed }

// CanTransition reports whether s may move to next.
// Statuses only move forward: PENDING -> IN_PROGRESS -> {COMPLETED, FAILED}.
// Staying in place is allowed; terminal statuses never change.
func (s Status) CanTransition(next Status) bool {
	if next.rank() < 0 {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// advance returns next when the transition is allowed, otherwise s.
func (s Status) advance(next Status) Status {
	if s.CanTransition(next) {
		return next
	}
	return s
}
