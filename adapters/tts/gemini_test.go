package tts

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

func audioResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{
						{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: data}},
					},
				},
			},
		},
	}
}

func testSynthesizer(generate func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)) *GeminiSynthesizer {
	return &GeminiSynthesizer{
		model:    defaultGeminiTTSModel,
		voice:    defaultGeminiVoice,
		logger:   zap.NewNop(),
		generate: generate,
	}
}

func TestSynthesizeReturnsAudioBytes(t *testing.T) {
	want := []byte{1, 2, 3, 4}
	s := testSynthesizer(func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return audioResponse(want), nil
	})

	got := s.Synthesize(context.Background(), "hello there")
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(got))
	}
}

func TestSynthesizeStripsActionMarkup(t *testing.T) {
	var spoken string
	s := testSynthesizer(func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		spoken = contents[0].Parts[0].Text
		return audioResponse([]byte{1}), nil
	})

	s.Synthesize(context.Background(), "Opening it now. [[OPEN:YOUTUBE]]")
	if spoken != "Opening it now." {
		t.Errorf("markup reached synthesis input: %q", spoken)
	}
}

func TestSynthesizeSkipsEmptyInput(t *testing.T) {
	called := false
	s := testSynthesizer(func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		called = true
		return audioResponse([]byte{1}), nil
	})

	for _, in := range []string{"", "   ", "[[CALL:123]]"} {
		if audio := s.Synthesize(context.Background(), in); audio != nil {
			t.Errorf("Synthesize(%q) = %d bytes, want nil", in, len(audio))
		}
	}
	if called {
		t.Error("backend called for unspeakable input")
	}
}

func TestSynthesizeSwallowsFailure(t *testing.T) {
	s := testSynthesizer(func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("backend unavailable")
	})

	if audio := s.Synthesize(context.Background(), "hello"); audio != nil {
		t.Errorf("expected nil audio on failure, got %d bytes", len(audio))
	}
}

func TestSynthesizeRequestsAudioModality(t *testing.T) {
	var captured *genai.GenerateContentConfig
	s := testSynthesizer(func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		captured = config
		return audioResponse([]byte{1}), nil
	})

	s.Synthesize(context.Background(), "hello")
	if captured == nil {
		t.Fatal("backend not called")
	}
	if len(captured.ResponseModalities) != 1 || captured.ResponseModalities[0] != "AUDIO" {
		t.Errorf("unexpected response modalities %v", captured.ResponseModalities)
	}
	if captured.SpeechConfig == nil || captured.SpeechConfig.VoiceConfig == nil ||
		captured.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig == nil ||
		captured.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != defaultGeminiVoice {
		t.Error("voice config not set")
	}
}
