package repositories

import (
	"context"

	"github.com/nexalabs/nexa-server/domain/entities"
)

// InferenceClient is the turn-based request/response contract with the
// generative backend. Complete never returns an error: on failure it
// resolves to a fixed user-facing fallback string.
type InferenceClient interface {
	// Complete sends the full prior-turn context plus the new utterance and
	// returns one finished response. The response may contain action
	// markers; the caller strips them. Location is optional ("" for none).
	Complete(ctx context.Context, utterance string, identity entities.UserIdentity, history entities.ConversationRecord, location string) string
}

// SpeechSynthesizer converts a finished response into raw linear-PCM audio
// at 24000 Hz mono. Returns nil on empty input or any failure; errors are
// logged, never propagated.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) []byte
}
