package supervisor

import "time"

// Phase is the lifecycle phase of the supervised process.
type Phase string

const (
	PhaseStopped        Phase = "stopped"
	PhaseStarting       Phase = "starting"
	PhaseHealthChecking Phase = "health_checking"
	PhaseReady          Phase = "ready"
	PhaseFailed         Phase = "failed"
)

// phaseNames lists every phase for the phase gauge.
var phaseNames = []string{
	string(PhaseStopped),
	string(PhaseStarting),
	string(PhaseHealthChecking),
	string(PhaseReady),
	string(PhaseFailed),
}

// State is a point-in-time view of the supervised process.
type State struct {
	Phase               Phase     `json:"phase"`
	PID                 int       `json:"pid,omitempty"`
	StartedAt           time.Time `json:"started_at,omitzero"`
	LastHealthCheckAt   time.Time `json:"last_health_check_at,omitzero"`
	HealthAttempts      int       `json:"health_attempts"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Restarts            int       `json:"restarts"`
	LastError           string    `json:"last_error,omitempty"`
}

// Ready reports whether the state allows routing requests to the gateway.
func (s State) Ready() bool {
	return s.Phase == PhaseReady
}
