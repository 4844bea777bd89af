package stt

import (
	"context"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/domain/repositories"
	"github.com/nexalabs/nexa-server/internal/audio"
)

const defaultLanguage = "en-US"

// MicrophoneConfig is the capture format the browser client sends for the
// turn-based flow: 16 kHz mono LINEAR16.
func MicrophoneConfig() repositories.AudioConfig {
	return repositories.AudioConfig{
		SampleRate: audio.InputSampleRate,
		Encoding:   "LINEAR16",
		Language:   defaultLanguage,
	}
}

// GoogleSpeechToText implements SpeechToText over Google Cloud
// Speech-to-Text streaming recognition.
type GoogleSpeechToText struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a new Google speech recognizer. Credentials
// come from the ambient GOOGLE_APPLICATION_CREDENTIALS setup.
func NewGoogleSpeechToText(logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{logger: logger}
}

// TranscribeAudio transcribes one finalized utterance in a single shot.
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	stream, err := g.InitTranscribeStreaming(ctx, config)
	if err != nil {
		return "", fmt.Errorf("failed to initialize streaming: %w", err)
	}
	if err := stream.Stream(audioData); err != nil {
		return "", fmt.Errorf("failed to stream audio data: %w", err)
	}
	return stream.End()
}

// InitTranscribeStreaming opens a recognition stream for chunked capture.
func (g *GoogleSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := audioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	language := config.Language
	if language == "" {
		language = defaultLanguage
	}

	// One utterance per stream; interim results are not consumed.
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(config.SampleRate),
					LanguageCode:    language,
				},
				InterimResults:  false,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	g.logger.Debug("Opened recognition stream",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("language", language))

	return &googleRecognitionStream{
		client:     client,
		stream:     stream,
		ctx:        ctx,
		resultChan: make(chan string, 1),
		errorChan:  make(chan error, 1),
	}, nil
}

type googleRecognitionStream struct {
	client         *speech.Client
	stream         speechpb.Speech_StreamingRecognizeClient
	ctx            context.Context
	audioReceived  bool
	receiverActive bool
	resultChan     chan string
	errorChan      chan error
}

// Stream forwards one chunk of captured audio.
func (g *googleRecognitionStream) Stream(data []byte) error {
	if !g.receiverActive {
		g.receiverActive = true
		go g.receiveResults()
	}

	if len(data) == 0 {
		return nil
	}
	g.audioReceived = true

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

// End closes the stream and waits for the final transcript.
func (g *googleRecognitionStream) End() (string, error) {
	defer g.client.Close()

	if !g.audioReceived {
		return "", fmt.Errorf("no audio data received")
	}
	if err := g.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-g.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for result: %w", g.ctx.Err())
	case err := <-g.errorChan:
		return "", err
	case result := <-g.resultChan:
		if result == "" {
			return "", fmt.Errorf("no speech detected in audio")
		}
		return result, nil
	}
}

func (g *googleRecognitionStream) receiveResults() {
	var final string
	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			g.resultChan <- final
			return
		}
		if err != nil {
			g.errorChan <- fmt.Errorf("failed to receive response: %w", err)
			return
		}
		for _, result := range resp.Results {
			if result.IsFinal && len(result.Alternatives) > 0 {
				final = result.Alternatives[0].Transcript
			}
		}
	}
}

// audioEncoding maps the capture formats browser clients produce.
func audioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "LINEAR16", "WAV":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
