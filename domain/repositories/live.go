package repositories

import (
	"context"

	"github.com/nexalabs/nexa-server/domain/entities"
)

// LiveClient is one full-duplex streaming session with the generative
// backend. Lifecycle: Closed -> Connecting -> Open -> Closed. A client
// instance carries at most one session; Connect fails if one is already
// connecting or open. Close is idempotent from any state.
type LiveClient interface {
	Connect(ctx context.Context, identity entities.UserIdentity, location string) error
	// SendAudio forwards one encoded 16kHz mono linear-PCM chunk. No-op
	// unless the session is open.
	SendAudio(data []byte) error
	// Events delivers server events in production order. The channel is
	// closed after a SessionClosed or SessionError event.
	Events() <-chan LiveEvent
	Close() error
}

// LiveEvent is the closed union of server events from a streaming session.
// The client forwards these without interpretation; acting on them is the
// orchestrator's job.
type LiveEvent interface {
	liveEvent()
}

// InputTranscript carries a partial transcription of user speech.
type InputTranscript struct {
	Text string
}

// OutputTranscript carries a partial transcription of assistant speech.
type OutputTranscript struct {
	Text string
}

// TurnComplete marks the end of one assistant turn.
type TurnComplete struct{}

// AudioChunk carries one fragment of synthesized speech, 24kHz mono PCM.
type AudioChunk struct {
	Data []byte
}

// Interrupted signals the backend detected the user talking over the
// assistant; pending output should be flushed.
type Interrupted struct{}

// SessionError reports a transport or backend failure. The session is
// closed afterwards.
type SessionError struct {
	Err error
}

// SessionClosed signals the session ended, either by request or by the
// server.
type SessionClosed struct {
	Reason string
}

func (InputTranscript) liveEvent()  {}
func (OutputTranscript) liveEvent() {}
func (TurnComplete) liveEvent()     {}
func (AudioChunk) liveEvent()       {}
func (Interrupted) liveEvent()      {}
func (SessionError) liveEvent()     {}
func (SessionClosed) liveEvent()    {}
