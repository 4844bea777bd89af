package tts

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

const (
	defaultGeminiTTSModel = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice    = "Kore"
	geminiTTSTimeout      = 30 * time.Second
)

// GeminiTTSConfig holds configuration for the GeminiSynthesizer adapter
type GeminiTTSConfig struct {
	APIKey string // Required: Google AI API key
	Model  string // Optional: TTS model name (default: "gemini-2.5-flash-preview-tts")
	Voice  string // Optional: prebuilt voice name (default: "Kore")
}

// GeminiSynthesizer implements SpeechSynthesizer using the Gemini TTS models.
// Output is raw 24 kHz LINEAR16 PCM, the format the playback pipeline expects.
type GeminiSynthesizer struct {
	client *genai.Client
	model  string
	voice  string
	logger *zap.Logger

	// generate is swappable in tests
	generate func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Ensure GeminiSynthesizer implements the SpeechSynthesizer interface
var _ repositories.SpeechSynthesizer = (*GeminiSynthesizer)(nil)

// NewGeminiTTSConfigFromEnv creates a GeminiTTSConfig from environment variables
func NewGeminiTTSConfigFromEnv() GeminiTTSConfig {
	apiKey := os.Getenv("GOOGLE_AI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return GeminiTTSConfig{
		APIKey: apiKey,
		Model:  os.Getenv("GEMINI_TTS_MODEL"),
		Voice:  os.Getenv("GEMINI_TTS_VOICE"),
	}
}

// NewGeminiSynthesizer creates a new Gemini TTS synthesizer instance
func NewGeminiSynthesizer(ctx context.Context, config GeminiTTSConfig, logger *zap.Logger) (*GeminiSynthesizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiTTSModel
		logger.Info("Using default TTS model", zap.String("model", model))
	}

	voice := config.Voice
	if voice == "" {
		voice = defaultGeminiVoice
		logger.Info("Using default TTS voice", zap.String("voice", voice))
	}

	s := &GeminiSynthesizer{
		client: client,
		model:  model,
		voice:  voice,
		logger: logger,
	}
	s.generate = func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return client.Models.GenerateContent(ctx, model, contents, config)
	}
	return s, nil
}

// Synthesize converts text to 24 kHz PCM. Inline action markup is stripped
// before synthesis, and whitespace-only input skips the backend call
// entirely. Any failure is logged and reported as nil audio so the caller
// can fall back to text-only replies.
func (s *GeminiSynthesizer) Synthesize(ctx context.Context, text string) []byte {
	speakable := entities.StripActionMarkers(text)
	if speakable == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, geminiTTSTimeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(speakable, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: s.voice,
				},
			},
		},
	}

	resp, err := s.generate(ctx, s.model, contents, config)
	if err != nil {
		s.logger.Error("Speech synthesis request failed", zap.Error(err))
		return nil
	}

	audio := inlineAudio(resp)
	if len(audio) == 0 {
		s.logger.Warn("Speech synthesis returned no audio", zap.Int("textLength", len(speakable)))
		return nil
	}

	s.logger.Info("Finished synthesizing speech", zap.Int("totalBytes", len(audio)))
	return audio
}

// inlineAudio collects the inline PCM bytes from a generation response.
func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var audio []byte
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil {
			audio = append(audio, part.InlineData.Data...)
		}
	}
	return audio
}
