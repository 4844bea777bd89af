package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/adapters"
	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
	"github.com/nexalabs/nexa-server/internal/audio"
	"github.com/nexalabs/nexa-server/usecase"
)

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(OrchestratorDeps{}, zap.NewNop())
	go hub.Run()

	client := &Client{
		connectionID: "conn-1",
		send:         make(chan WriteData, 1),
		logger:       zap.NewNop(),
	}

	hub.register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.unregister <- client
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	// Unregister closes the outbound queue.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Errorf("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Errorf("send channel not closed")
	}
}

func TestClientEmitterEnqueuesFrames(t *testing.T) {
	client := &Client{
		send:   make(chan WriteData, 8),
		logger: zap.NewNop(),
	}

	client.StateChanged(entities.StateListening)
	client.MessageAppended(entities.NewMessage(entities.SpeakerAssistant, "hello"))
	client.Alert("transport_failure")

	var state StateChangedMessage
	decodeFrame(t, <-client.send, &state)
	if state.State != entities.StateListening {
		t.Errorf("expected LISTENING, got %s", state.State)
	}

	var chat ChatMessage
	decodeFrame(t, <-client.send, &chat)
	if chat.Speaker != entities.SpeakerAssistant || chat.Text != "hello" {
		t.Errorf("unexpected chat message %+v", chat)
	}

	var alert AlertMessage
	decodeFrame(t, <-client.send, &alert)
	if alert.Kind != "transport_failure" {
		t.Errorf("unexpected alert %+v", alert)
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	client := &Client{
		send:   make(chan WriteData, 1),
		logger: zap.NewNop(),
	}

	client.StateChanged(entities.StateListening)
	done := make(chan struct{})
	go func() {
		// Must not block even though the queue is full.
		client.StateChanged(entities.StateThinking)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("enqueue blocked on full queue")
	}
}

type fakeSTT struct {
	stream *fakeSTTStream
}

func (f *fakeSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	return "", nil
}

func (f *fakeSTT) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	f.stream = &fakeSTTStream{}
	return f.stream, nil
}

type fakeSTTStream struct {
	frames [][]byte
	ended  bool
}

func (f *fakeSTTStream) Stream(data []byte) error {
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeSTTStream) End() (string, error) {
	f.ended = true
	return "hello there", nil
}

func TestServerSideTranscriptionFlow(t *testing.T) {
	stt := &fakeSTT{}
	store := adapters.NewMemoryStore()
	client := &Client{
		send:   make(chan WriteData, 8),
		stt:    stt,
		framer: audio.NewFramer(4),
		logger: zap.NewNop(),
	}
	client.orchestrator = usecase.NewOrchestrator("conn-t", usecase.Dependencies{
		Store:    store,
		Sessions: store,
		Emitter:  client,
		Clock:    clock.New(),
		Logger:   zap.NewNop(),
	})

	client.handleTranscribeStart()
	if stt.stream == nil {
		t.Fatalf("expected recognition stream opened")
	}

	// Two 4-sample frames plus a remainder.
	client.processAudio(make([]byte, 18))
	if len(stt.stream.frames) != 2 {
		t.Fatalf("expected 2 complete frames, got %d", len(stt.stream.frames))
	}

	client.handleTranscribeEnd()
	if !stt.stream.ended {
		t.Errorf("expected recognition stream ended")
	}
	// The 2-byte remainder is flushed before the stream ends.
	if len(stt.stream.frames) != 3 {
		t.Errorf("expected flushed remainder frame, got %d frames", len(stt.stream.frames))
	}
	if client.sttStream != nil {
		t.Errorf("expected stream slot cleared")
	}
}

func TestTranscribeStartWithoutRecognizer(t *testing.T) {
	client := &Client{
		send:   make(chan WriteData, 8),
		logger: zap.NewNop(),
	}

	client.handleTranscribeStart()

	var errMsg ErrorMessage
	decodeFrame(t, <-client.send, &errMsg)
	if errMsg.Code != "transcription_unavailable" {
		t.Errorf("unexpected error %+v", errMsg)
	}
}

func decodeFrame(t *testing.T, frame WriteData, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		t.Fatalf("failed to decode frame %s: %v", frame.Payload, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
