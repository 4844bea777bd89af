package websocket

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/internal/audio"
	"github.com/nexalabs/nexa-server/usecase"
)

func TestParseControlMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, parsed interface{})
	}{
		{
			name:  "mic pressed",
			input: `{"type":"mic_pressed"}`,
			check: func(t *testing.T, parsed interface{}) {
				env, ok := parsed.(controlEnvelope)
				if !ok || env.Type != MessageTypeMicPressed {
					t.Errorf("unexpected parse result %#v", parsed)
				}
			},
		},
		{
			name:  "stream start",
			input: `{"type":"stream_start"}`,
			check: func(t *testing.T, parsed interface{}) {
				env, ok := parsed.(controlEnvelope)
				if !ok || env.Type != MessageTypeStreamStart {
					t.Errorf("unexpected parse result %#v", parsed)
				}
			},
		},
		{
			name:  "utterance",
			input: `{"type":"utterance","text":"turn on the lights"}`,
			check: func(t *testing.T, parsed interface{}) {
				msg, ok := parsed.(UtteranceControl)
				if !ok || msg.Text != "turn on the lights" {
					t.Errorf("unexpected parse result %#v", parsed)
				}
			},
		},
		{
			name:  "recognition error",
			input: `{"type":"recognition_error","benign":true}`,
			check: func(t *testing.T, parsed interface{}) {
				msg, ok := parsed.(RecognitionErrorControl)
				if !ok || !msg.Benign {
					t.Errorf("unexpected parse result %#v", parsed)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseControlMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseControlMessage failed: %v", err)
			}
			tt.check(t, parsed)
		})
	}
}

func TestParseControlMessageRejectsUnknownType(t *testing.T) {
	if _, err := ParseControlMessage([]byte(`{"type":"reboot"}`)); err == nil {
		t.Errorf("expected error for unknown control type")
	}
}

func TestParseControlMessageRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseControlMessage([]byte(`{"type":`)); err == nil {
		t.Errorf("expected error for malformed JSON")
	}
}

func TestEncodeAudioChunkRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	var msg AudioChunkMessage
	if err := json.Unmarshal(encodeAudioChunk(pcm), &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != MessageTypeAudioChunk {
		t.Errorf("unexpected type %q", msg.Type)
	}
	if msg.SampleRate != audio.OutputSampleRate {
		t.Errorf("expected sample rate %d, got %d", audio.OutputSampleRate, msg.SampleRate)
	}
	decoded, err := audio.DecodeTransport(msg.Audio)
	if err != nil {
		t.Fatalf("DecodeTransport failed: %v", err)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Errorf("expected %v, got %v", pcm, decoded)
	}
}

func TestEncodeStateChanged(t *testing.T) {
	var msg StateChangedMessage
	if err := json.Unmarshal(encodeStateChanged(entities.StateSpeaking), &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.State != entities.StateSpeaking {
		t.Errorf("expected SPEAKING, got %s", msg.State)
	}
}

func TestEncodeAction(t *testing.T) {
	var msg ActionMessage
	payload := encodeAction(usecase.ClientDirective{Kind: "dial", URL: "tel:+15550100"})
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Kind != "dial" || msg.URL != "tel:+15550100" {
		t.Errorf("unexpected action %+v", msg)
	}
}
