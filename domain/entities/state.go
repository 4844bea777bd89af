package entities

// SessionState is the single enumerated indicator state owned by the
// orchestrator. Exactly one value at any instant.
type SessionState string

const (
	StateIdle      SessionState = "IDLE"
	StateListening SessionState = "LISTENING"
	StateThinking  SessionState = "THINKING"
	StateSpeaking  SessionState = "SPEAKING"
)

func (s SessionState) String() string {
	return string(s)
}
