package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/internal/audio"
	"github.com/nexalabs/nexa-server/usecase"
)

// MessageType defines the type of a JSON WebSocket message.
type MessageType string

// Server-to-client message types.
const (
	MessageTypeStateChanged MessageType = "state_changed"
	MessageTypeChatMessage  MessageType = "chat_message"
	MessageTypeAudioChunk   MessageType = "audio_chunk"
	MessageTypeAction       MessageType = "action"
	MessageTypeAlert        MessageType = "alert"
	MessageTypeError        MessageType = "error"
)

// Client-to-server control message types. Microphone audio itself arrives
// as binary frames, not JSON.
const (
	MessageTypeMicPressed       MessageType = "mic_pressed"
	MessageTypeUtterance        MessageType = "utterance"
	MessageTypeRecognitionError MessageType = "recognition_error"
	MessageTypeTranscribeStart  MessageType = "transcribe_start"
	MessageTypeTranscribeEnd    MessageType = "transcribe_end"
	MessageTypeStreamStart      MessageType = "stream_start"
	MessageTypeStreamStop       MessageType = "stream_stop"
	MessageTypeLogout           MessageType = "logout"
)

// StateChangedMessage announces a session state transition.
type StateChangedMessage struct {
	Type  MessageType           `json:"type"`
	State entities.SessionState `json:"state"`
}

// ChatMessage carries one finalized transcript entry.
type ChatMessage struct {
	Type      MessageType      `json:"type"`
	Speaker   entities.Speaker `json:"speaker"`
	Text      string           `json:"text"`
	Timestamp int64            `json:"timestamp"`
}

// AudioChunkMessage carries one segment of synthesized speech, base64
// encoded 16-bit linear PCM.
type AudioChunkMessage struct {
	Type       MessageType `json:"type"`
	Audio      string      `json:"audio"`
	SampleRate int         `json:"sample_rate"`
}

// ActionMessage instructs the client to perform one side effect.
type ActionMessage struct {
	Type MessageType `json:"type"`
	Kind string      `json:"kind"`
	URL  string      `json:"url"`
}

// AlertMessage signals an abnormal condition the client may surface.
type AlertMessage struct {
	Type MessageType `json:"type"`
	Kind string      `json:"kind"`
}

// ErrorMessage reports a rejected control request.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// UtteranceControl is the payload of an utterance control message.
type UtteranceControl struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// RecognitionErrorControl reports a client-side capture failure. Benign
// covers no-speech and user-initiated aborts.
type RecognitionErrorControl struct {
	Type   MessageType `json:"type"`
	Benign bool        `json:"benign"`
}

// controlEnvelope is the minimal shape needed to dispatch a control
// message.
type controlEnvelope struct {
	Type MessageType `json:"type"`
}

// ParseControlMessage decodes one client control message into its typed
// form. Unknown types are an error; the read loop logs and drops them.
func ParseControlMessage(data []byte) (interface{}, error) {
	var envelope controlEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed control message: %w", err)
	}

	switch envelope.Type {
	case MessageTypeMicPressed, MessageTypeTranscribeStart, MessageTypeTranscribeEnd,
		MessageTypeStreamStart, MessageTypeStreamStop, MessageTypeLogout:
		return envelope, nil
	case MessageTypeUtterance:
		var msg UtteranceControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("malformed utterance message: %w", err)
		}
		return msg, nil
	case MessageTypeRecognitionError:
		var msg RecognitionErrorControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("malformed recognition error message: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown control message type %q", envelope.Type)
	}
}

// Outbound message constructors. Each returns the marshaled JSON payload.

func encodeStateChanged(state entities.SessionState) []byte {
	data, _ := json.Marshal(StateChangedMessage{Type: MessageTypeStateChanged, State: state})
	return data
}

func encodeChatMessage(message entities.ConversationMessage) []byte {
	data, _ := json.Marshal(ChatMessage{
		Type:      MessageTypeChatMessage,
		Speaker:   message.Speaker,
		Text:      message.Text,
		Timestamp: message.CreatedAt,
	})
	return data
}

func encodeAudioChunk(pcm []byte) []byte {
	data, _ := json.Marshal(AudioChunkMessage{
		Type:       MessageTypeAudioChunk,
		Audio:      audio.EncodeTransport(pcm),
		SampleRate: audio.OutputSampleRate,
	})
	return data
}

func encodeAction(directive usecase.ClientDirective) []byte {
	data, _ := json.Marshal(ActionMessage{Type: MessageTypeAction, Kind: directive.Kind, URL: directive.URL})
	return data
}

func encodeAlert(kind string) []byte {
	data, _ := json.Marshal(AlertMessage{Type: MessageTypeAlert, Kind: kind})
	return data
}

func encodeError(code, message string) []byte {
	data, _ := json.Marshal(ErrorMessage{Type: MessageTypeError, Code: code, Message: message})
	return data
}
