package domain

// Phase is the local connection phase of one participant.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected" // no code bound, or no role held
	PhaseHosting      Phase = "hosting"      // local client is host, guest vacant
	PhaseGuesting     Phase = "guesting"     // local client is guest, host vacant
	PhasePaired       Phase = "paired"       // both roles filled, one of them local
)

// PhaseOf derives the phase of clientID purely from a reloaded session record.
func PhaseOf(s *Session, clientID string) Phase {
	if !s.HasRole(clientID) {
		return PhaseDisconnected
	}
	if s.Full() {
		return PhasePaired
	}
	if s.Host == clientID {
		return PhaseHosting
	}
	return PhaseGuesting
}

// Severity classifies a user-visible notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
