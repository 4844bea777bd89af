package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/nexalabs/nexa-server/adapters/llm"
	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

const (
	defaultLiveModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultLiveVoice   = "Kore"
	inputAudioMIMEType = "audio/pcm;rate=16000"
	eventBuffer        = 256
)

// GeminiLiveConfig holds configuration for the GeminiLive adapter
type GeminiLiveConfig struct {
	APIKey string // Required: Google AI API key
	Model  string // Optional: live model name
	Voice  string // Optional: prebuilt voice name (default: "Kore")
}

// NewGeminiLiveConfigFromEnv creates a GeminiLiveConfig from environment variables
func NewGeminiLiveConfigFromEnv() GeminiLiveConfig {
	apiKey := os.Getenv("GOOGLE_AI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return GeminiLiveConfig{
		APIKey: apiKey,
		Model:  os.Getenv("GEMINI_LIVE_MODEL"),
		Voice:  os.Getenv("GEMINI_LIVE_VOICE"),
	}
}

// liveSession is the subset of *genai.Session the adapter uses.
// Narrowing to an interface lets tests drive the receive loop with a fake.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// GeminiLive implements LiveClient over the Gemini Live API. It holds at
// most one upstream session at a time; a receive goroutine translates
// server messages into LiveEvent values on the Events channel. The channel
// is closed when the session ends, after a terminal SessionError or
// SessionClosed event.
type GeminiLive struct {
	client *genai.Client
	model  string
	voice  string
	logger *zap.Logger

	// dial is swappable in tests
	dial func(ctx context.Context, config *genai.LiveConnectConfig) (liveSession, error)

	mu      sync.Mutex
	session liveSession
	events  chan repositories.LiveEvent
	stop    chan struct{}
	closing bool
}

// Ensure GeminiLive implements the LiveClient interface
var _ repositories.LiveClient = (*GeminiLive)(nil)

// NewGeminiLive creates a new Gemini live session adapter
func NewGeminiLive(ctx context.Context, config GeminiLiveConfig, logger *zap.Logger) (*GeminiLive, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultLiveModel
		logger.Info("Using default live model", zap.String("model", model))
	}

	voice := config.Voice
	if voice == "" {
		voice = defaultLiveVoice
		logger.Info("Using default live voice", zap.String("voice", voice))
	}

	g := &GeminiLive{
		client: client,
		model:  model,
		voice:  voice,
		logger: logger,
	}
	g.dial = func(ctx context.Context, cfg *genai.LiveConnectConfig) (liveSession, error) {
		return client.Live.Connect(ctx, model, cfg)
	}
	return g, nil
}

// Connect opens an upstream live session for the given identity. It fails
// if a session is already active; callers must Close first.
func (g *GeminiLive) Connect(ctx context.Context, identity entities.UserIdentity, location string) error {
	g.mu.Lock()
	if g.session != nil {
		g.mu.Unlock()
		return fmt.Errorf("live session already active")
	}
	g.mu.Unlock()

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: genai.NewContentFromText(
			llm.SystemDirective(identity, location, time.Now()), genai.RoleUser),
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}

	session, err := g.dial(ctx, config)
	if err != nil {
		return fmt.Errorf("connect live session: %w", err)
	}

	g.mu.Lock()
	if g.session != nil {
		// Lost the race with a concurrent Connect.
		g.mu.Unlock()
		_ = session.Close()
		return fmt.Errorf("live session already active")
	}
	g.session = session
	g.events = make(chan repositories.LiveEvent, eventBuffer)
	g.stop = make(chan struct{})
	g.closing = false
	events, stop := g.events, g.stop
	g.mu.Unlock()

	g.logger.Info("Live session connected",
		zap.String("model", g.model),
		zap.String("user", identity.DisplayName))

	go g.receiveLoop(session, events, stop)
	return nil
}

// SendAudio forwards one 16 kHz PCM frame to the upstream session.
func (g *GeminiLive) SendAudio(pcm []byte) error {
	g.mu.Lock()
	session := g.session
	g.mu.Unlock()
	if session == nil {
		return fmt.Errorf("live session not connected")
	}
	return session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pcm, MIMEType: inputAudioMIMEType},
	})
}

// Events yields translated server events for the current session. Returns
// nil before the first Connect. The channel closes when the session ends.
func (g *GeminiLive) Events() <-chan repositories.LiveEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.events
}

// Close tears down the active session. Safe to call when no session is
// active, and safe to call more than once.
func (g *GeminiLive) Close() error {
	g.mu.Lock()
	session := g.session
	if session == nil || g.closing {
		g.mu.Unlock()
		return nil
	}
	g.closing = true
	close(g.stop)
	g.mu.Unlock()

	// Closing the upstream session unblocks Receive in the receive loop,
	// which emits SessionClosed and releases the slot. Closing stop also
	// frees the loop if it is blocked on a consumer that went away.
	return session.Close()
}

func (g *GeminiLive) receiveLoop(session liveSession, events chan repositories.LiveEvent, stop chan struct{}) {
	defer func() {
		g.mu.Lock()
		if g.session == session {
			g.session = nil
		}
		g.mu.Unlock()
		close(events)
	}()

	for {
		msg, err := session.Receive()
		if err != nil {
			g.mu.Lock()
			requested := g.closing
			g.mu.Unlock()
			switch {
			case requested:
				emitFinal(events, repositories.SessionClosed{Reason: "client requested close"})
			case errors.Is(err, io.EOF):
				emitFinal(events, repositories.SessionClosed{Reason: "server closed session"})
			default:
				g.logger.Error("Live session receive failed", zap.Error(err))
				emitFinal(events, repositories.SessionError{Err: err})
			}
			return
		}
		for _, event := range translate(msg) {
			if !g.emit(events, stop, event) {
				return
			}
		}
	}
}

func (g *GeminiLive) emit(events chan repositories.LiveEvent, stop chan struct{}, event repositories.LiveEvent) bool {
	select {
	case events <- event:
		return true
	case <-stop:
		return false
	}
}

// emitFinal delivers a terminal event without blocking. The events channel
// is buffered, so the only way this drops is a consumer that stopped
// reading entirely.
func emitFinal(events chan repositories.LiveEvent, event repositories.LiveEvent) {
	select {
	case events <- event:
	default:
	}
}

// translate maps one server message to ordered client events. Interruption
// comes first so consumers can flush before handling anything else in the
// same message; TurnComplete always comes last.
func translate(msg *genai.LiveServerMessage) []repositories.LiveEvent {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	content := msg.ServerContent

	var events []repositories.LiveEvent
	if content.Interrupted {
		events = append(events, repositories.Interrupted{})
	}
	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		events = append(events, repositories.InputTranscript{Text: content.InputTranscription.Text})
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		events = append(events, repositories.OutputTranscript{Text: content.OutputTranscription.Text})
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				events = append(events, repositories.AudioChunk{Data: part.InlineData.Data})
			}
		}
	}
	if content.TurnComplete {
		events = append(events, repositories.TurnComplete{})
	}
	return events
}
