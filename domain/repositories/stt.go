package repositories

import "context"

// AudioConfig describes captured audio for speech recognition.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// SpeechToText transcribes one finalized utterance for the turn-based flow.
type SpeechToText interface {
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// SpeechToTextStreaming is an open recognition stream fed chunk by chunk.
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	End() (string, error)
}
