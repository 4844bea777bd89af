package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
	"github.com/nexalabs/nexa-server/internal/audio"
	"github.com/nexalabs/nexa-server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Outbound queue depth per client. Audio chunks dominate; a 256 deep
	// queue covers several seconds of speech.
	sendQueueSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Restrict origins once the production client host is fixed
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// OrchestratorDeps holds the shared backends from which each connection's
// orchestrator is assembled. LiveFactory returns a fresh streaming client
// per connection; a live client carries at most one session.
type OrchestratorDeps struct {
	Store       repositories.ConversationStore
	Sessions    repositories.IdentitySessionStore
	Inference   repositories.InferenceClient
	Synth       repositories.SpeechSynthesizer
	STT         repositories.SpeechToText
	LiveFactory func() repositories.LiveClient
	Location    repositories.LocationResolver
	Actions     *usecase.ActionExecutor
	Clock       clock.Clock
}

// Hub maintains the set of active clients.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	deps   OrchestratorDeps
	logger *zap.Logger
}

// NewHub creates a WebSocket hub.
func NewHub(deps OrchestratorDeps, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deps:       deps,
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connectionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("connectionID", client.connectionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connectionID]; ok {
				delete(h.clients, client.connectionID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("connectionID", client.connectionID))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WriteData is one outbound websocket frame.
type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// Client binds one websocket connection to its session orchestrator and
// relays messages in both directions. It implements usecase.UIEmitter;
// emitter calls only enqueue, the write pump does the I/O.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	send chan WriteData

	connectionID string
	identity     entities.UserIdentity

	orchestrator *usecase.Orchestrator

	// framer recuts incoming microphone data into fixed-size chunks
	// before they are forwarded upstream.
	framer *audio.Framer

	// sttStream is the open recognition stream while the client relies on
	// server-side transcription for a turn-based capture. Only the read
	// loop touches it.
	stt       repositories.SpeechToText
	sttStream repositories.SpeechToTextStreaming

	logger *zap.Logger
}

// HandleWebSocket upgrades an authenticated request and runs the
// connection until the peer goes away.
func HandleWebSocket(hub *Hub, c echo.Context, identity entities.UserIdentity, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	connectionID := uuid.NewString()
	client := &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan WriteData, sendQueueSize),
		connectionID: connectionID,
		identity:     identity,
		framer:       audio.NewFramer(audio.FrameSamples),
		stt:          hub.deps.STT,
		logger:       logger.With(zap.String("connectionID", connectionID)),
	}
	client.orchestrator = usecase.NewOrchestrator(connectionID, usecase.Dependencies{
		Store:     hub.deps.Store,
		Sessions:  hub.deps.Sessions,
		Inference: hub.deps.Inference,
		Synth:     hub.deps.Synth,
		Live:      hub.deps.LiveFactory(),
		Location:  hub.deps.Location,
		Actions:   hub.deps.Actions,
		Emitter:   client,
		Clock:     hub.deps.Clock,
		Logger:    client.logger,
	})

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	// The greeting exchange blocks on inference; run it off the
	// connection goroutine.
	go func() {
		if err := client.orchestrator.Login(context.Background(), identity); err != nil {
			client.logger.Error("Session login failed", zap.Error(err))
			client.enqueueText(encodeError("login_failed", "could not start session"))
		}
	}()

	return nil
}

// UIEmitter implementation. All of these run under the orchestrator lock,
// so they only enqueue.

func (c *Client) StateChanged(state entities.SessionState) {
	c.enqueueText(encodeStateChanged(state))
}

func (c *Client) MessageAppended(message entities.ConversationMessage) {
	c.enqueueText(encodeChatMessage(message))
}

func (c *Client) ActionDirective(directive usecase.ClientDirective) {
	c.enqueueText(encodeAction(directive))
}

func (c *Client) AudioSegment(pcm []byte) {
	c.enqueueText(encodeAudioChunk(pcm))
}

func (c *Client) Alert(kind string) {
	c.enqueueText(encodeAlert(kind))
}

// enqueueText queues one JSON frame without blocking. A peer that stops
// reading loses messages rather than stalling the session.
func (c *Client) enqueueText(payload []byte) {
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Outbound queue full, dropping message")
	}
}

// readPump pumps messages from the websocket connection to the
// orchestrator.
func (c *Client) readPump() {
	defer func() {
		c.orchestrator.Logout(context.Background())
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processControlMessage(message)
		case websocket.BinaryMessage:
			c.processAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the send queue to the websocket
// connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processControlMessage dispatches one JSON control message.
func (c *Client) processControlMessage(message []byte) {
	parsed, err := ParseControlMessage(message)
	if err != nil {
		c.logger.Warn("Dropping control message", zap.Error(err))
		return
	}

	switch msg := parsed.(type) {
	case controlEnvelope:
		switch msg.Type {
		case MessageTypeMicPressed:
			c.orchestrator.MicPressed()
		case MessageTypeTranscribeStart:
			c.handleTranscribeStart()
		case MessageTypeTranscribeEnd:
			c.handleTranscribeEnd()
		case MessageTypeStreamStart:
			go func() {
				if err := c.orchestrator.StartStreaming(context.Background()); err != nil {
					c.logger.Warn("Stream start rejected", zap.Error(err))
					c.enqueueText(encodeError("stream_start_rejected", err.Error()))
				}
			}()
		case MessageTypeStreamStop:
			c.flushPendingAudio()
			go c.orchestrator.StopStreaming(context.Background())
		case MessageTypeLogout:
			go c.orchestrator.Logout(context.Background())
		}
	case UtteranceControl:
		// Blocks for the full exchange; keep the read loop free for a
		// barge-in mic press.
		go c.orchestrator.UtteranceFinalized(context.Background(), msg.Text)
	case RecognitionErrorControl:
		c.orchestrator.RecognitionFailed(msg.Benign)
	}
}

// processAudio recuts one binary microphone frame and forwards the
// resulting fixed-size chunks. While a server-side recognition stream is
// open the chunks feed it; otherwise they go to the streaming session.
func (c *Client) processAudio(data []byte) {
	for _, frame := range c.framer.Push(data) {
		c.forwardFrame(frame)
	}
}

func (c *Client) forwardFrame(frame []byte) {
	if c.sttStream != nil {
		if err := c.sttStream.Stream(frame); err != nil {
			c.logger.Error("Failed to stream audio to recognizer", zap.Error(err))
		}
		return
	}
	c.orchestrator.ForwardAudio(frame)
}

// handleTranscribeStart opens a server-side recognition stream for a
// client without local speech recognition. The capture format matches
// what the browser microphone produces.
func (c *Client) handleTranscribeStart() {
	if c.stt == nil {
		c.logger.Warn("Server-side transcription requested but not configured")
		c.enqueueText(encodeError("transcription_unavailable", "server-side transcription is not configured"))
		return
	}
	if c.sttStream != nil {
		c.logger.Warn("Transcription stream already open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := c.stt.InitTranscribeStreaming(ctx, repositories.AudioConfig{
		SampleRate: audio.InputSampleRate,
		Encoding:   "LINEAR16",
		Language:   "en-US",
	})
	if err != nil {
		c.logger.Error("Failed to open recognition stream", zap.Error(err))
		c.orchestrator.RecognitionFailed(false)
		return
	}
	c.sttStream = stream
}

// handleTranscribeEnd closes the recognition stream and feeds the final
// transcript into the turn-based flow. Silence counts as a benign failure.
func (c *Client) handleTranscribeEnd() {
	if c.sttStream == nil {
		return
	}
	c.flushPendingAudio()

	text, err := c.sttStream.End()
	c.sttStream = nil
	if err != nil {
		c.logger.Error("Recognition stream failed", zap.Error(err))
		c.orchestrator.RecognitionFailed(false)
		return
	}
	if text == "" {
		c.orchestrator.RecognitionFailed(true)
		return
	}
	go c.orchestrator.UtteranceFinalized(context.Background(), text)
}

// flushPendingAudio forwards whatever partial frame remains before the
// stream closes.
func (c *Client) flushPendingAudio() {
	if rest := c.framer.Flush(); len(rest) > 0 {
		c.forwardFrame(rest)
	}
}
