package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
	"github.com/nexalabs/nexa-server/internal/audio"
)

const (
	// GreetingFirstLogin is the sentinel utterance for a user with no
	// stored history; GreetingReturning for everyone else.
	GreetingFirstLogin = "[INITIAL_GREETING]"
	GreetingReturning  = "[RETURNING_GREETING]"
)

// greetingStyles rotate per scope across logins so consecutive sessions do
// not open with identical phrasing. The session store tracks the counter.
var greetingStyles = []string{
	"Keep the opening short and energetic.",
	"Open by acknowledging the time of day.",
	"Keep the opening calm and understated.",
	"Open with a brief status-report flavor.",
}

// greetingUtterance attaches the rotation's delivery instruction to the
// greeting sentinel.
func greetingUtterance(sentinel string, index int) string {
	return sentinel + " " + greetingStyles[index%len(greetingStyles)]
}

const (
	// textOnlyDisplayDelay holds THINKING visible briefly when a response
	// has no audio, so the reply does not flash past.
	textOnlyDisplayDelay = 1 * time.Second

	// morningReminderHour is when the admin duty reminder fires.
	morningReminderHour   = 8
	morningReminderText   = "Sir, today is cafe duty. Please get ready on time."
	reminderCheckInterval = time.Minute
)

// AlertTransportFailure distinguishes an abnormal streaming stop from a
// graceful one; clients may play an audible cue.
const AlertTransportFailure = "transport_failure"

// ErrNotReady is returned when a control request is not valid in the
// current session state.
var ErrNotReady = errors.New("session not ready for this operation")

// UIEmitter receives orchestrator output bound for the connected client.
// Calls are made while the orchestrator holds its lock; implementations
// must not call back into the orchestrator and should only enqueue.
type UIEmitter interface {
	StateChanged(state entities.SessionState)
	MessageAppended(message entities.ConversationMessage)
	ActionDirective(directive ClientDirective)
	AudioSegment(pcm []byte)
	Alert(kind string)
}

// Dependencies wires an Orchestrator.
type Dependencies struct {
	Store     repositories.ConversationStore
	Sessions  repositories.IdentitySessionStore
	Inference repositories.InferenceClient
	Synth     repositories.SpeechSynthesizer
	Live      repositories.LiveClient
	Location  repositories.LocationResolver
	Actions   *ActionExecutor
	Emitter   UIEmitter
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Orchestrator is the per-connection session state machine. It owns the
// visible session state, the memory bank, and the playback timeline, and
// consumes one event at a time under a single lock. Slow backend calls
// release the lock and re-validate a turn epoch on return, so a barge-in
// or logout quietly discards late results.
type Orchestrator struct {
	connectionID string
	store        repositories.ConversationStore
	sessions     repositories.IdentitySessionStore
	inference    repositories.InferenceClient
	synth        repositories.SpeechSynthesizer
	live         repositories.LiveClient
	resolver     repositories.LocationResolver
	actions      *ActionExecutor
	emitter      UIEmitter
	clk          clock.Clock
	logger       *zap.Logger

	scheduler *audio.Scheduler

	mu         sync.Mutex
	state      entities.SessionState
	identity   *entities.UserIdentity
	memoryBank entities.ConversationRecord
	location   string // coarse location, "" when unresolved

	// turnEpoch invalidates in-flight turn-based work on barge-in or
	// logout. Cooperative cancellation, checked after every await.
	turnEpoch int

	streaming  bool
	liveEvents <-chan repositories.LiveEvent
	inputBuf   strings.Builder
	outputBuf  strings.Builder

	reminderStop chan struct{}
	lastReminder time.Time
	displayTimer *clock.Timer
}

// NewOrchestrator creates an orchestrator for one client connection.
func NewOrchestrator(connectionID string, deps Dependencies) *Orchestrator {
	o := &Orchestrator{
		connectionID: connectionID,
		store:        deps.Store,
		sessions:     deps.Sessions,
		inference:    deps.Inference,
		synth:        deps.Synth,
		live:         deps.Live,
		resolver:     deps.Location,
		actions:      deps.Actions,
		emitter:      deps.Emitter,
		clk:          deps.Clock,
		logger:       deps.Logger,
		state:        entities.StateIdle,
	}
	o.scheduler = audio.NewScheduler(deps.Clock, o.playbackDrained)
	return o
}

// State returns the current session state.
func (o *Orchestrator) State() entities.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// MemoryBank returns a copy of the in-memory conversation bank.
func (o *Orchestrator) MemoryBank() entities.ConversationRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	bank := make(entities.ConversationRecord, len(o.memoryBank))
	copy(bank, o.memoryBank)
	return bank
}

// Login binds an identity, loads its memory bank, and issues the greeting
// exchange. The on-screen transcript always starts empty; the stored
// record is the authoritative backend context.
func (o *Orchestrator) Login(ctx context.Context, identity entities.UserIdentity) error {
	if err := identity.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	if o.identity != nil {
		o.mu.Unlock()
		o.Logout(ctx)
		o.mu.Lock()
	}
	o.identity = &identity
	o.setStateLocked(entities.StateIdle)
	epoch := o.turnEpoch
	o.mu.Unlock()

	if err := o.sessions.SaveIdentity(ctx, o.connectionID, identity); err != nil {
		o.logger.Warn("Failed to persist session identity", zap.Error(err))
	}

	bank := o.loadBank(ctx, identity)
	location := ""
	if o.resolver != nil {
		location = o.resolver.Resolve(ctx)
	}

	scope := "user"
	if identity.IsAdmin() {
		scope = "admin"
	}
	greetingIndex, err := o.sessions.NextGreetingIndex(ctx, scope)
	if err != nil {
		o.logger.Warn("Failed to advance greeting rotation", zap.Error(err))
		greetingIndex = 0
	}

	o.mu.Lock()
	if o.identity == nil || o.turnEpoch != epoch {
		o.mu.Unlock()
		return nil
	}
	o.memoryBank = bank
	o.location = location
	o.mu.Unlock()

	sentinel := GreetingReturning
	if len(bank) == 0 {
		sentinel = GreetingFirstLogin
	}
	o.runTurn(ctx, identity, greetingUtterance(sentinel, greetingIndex), false)

	if identity.IsAdmin() {
		o.startReminderLoop()
	}
	return nil
}

// Logout tears down everything: streaming session, pending audio,
// transcript, memory bank, identity.
func (o *Orchestrator) Logout(ctx context.Context) {
	o.mu.Lock()
	o.turnEpoch++
	wasStreaming := o.streaming
	o.streaming = false
	o.identity = nil
	o.memoryBank = nil
	o.location = ""
	o.inputBuf.Reset()
	o.outputBuf.Reset()
	o.stopDisplayTimerLocked()
	if o.reminderStop != nil {
		close(o.reminderStop)
		o.reminderStop = nil
	}
	o.scheduler.Flush()
	o.scheduler.Reset()
	o.setStateLocked(entities.StateIdle)
	o.mu.Unlock()

	if wasStreaming && o.live != nil {
		if err := o.live.Close(); err != nil {
			o.logger.Warn("Failed to close live session on logout", zap.Error(err))
		}
	}
	if err := o.sessions.ClearIdentity(ctx, o.connectionID); err != nil {
		o.logger.Warn("Failed to clear session identity", zap.Error(err))
	}
}

// MicPressed handles the turn-based microphone control. From IDLE it opens
// capture; from LISTENING it is a no-op server-side (the client finalizes
// the utterance); from THINKING or SPEAKING it is a barge-in:
// cancel-and-restart straight back into capture.
func (o *Orchestrator) MicPressed() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.identity == nil || o.streaming {
		return
	}

	switch o.state {
	case entities.StateIdle:
		o.setStateLocked(entities.StateListening)
	case entities.StateThinking, entities.StateSpeaking:
		o.turnEpoch++
		o.stopDisplayTimerLocked()
		o.scheduler.Flush()
		o.scheduler.Reset()
		o.setStateLocked(entities.StateListening)
	}
}

// RecognitionFailed reports a capture error from the client. Benign
// conditions (no speech, user aborted) leave the state alone; real
// failures return to IDLE.
func (o *Orchestrator) RecognitionFailed(benign bool) {
	if benign {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == entities.StateListening {
		o.setStateLocked(entities.StateIdle)
	}
}

// UtteranceFinalized runs one turn-based exchange for a finalized
// utterance. Blocks until the exchange resolves or is superseded.
func (o *Orchestrator) UtteranceFinalized(ctx context.Context, text string) {
	o.mu.Lock()
	if o.identity == nil || o.streaming || o.state != entities.StateListening {
		o.mu.Unlock()
		return
	}
	identity := *o.identity
	o.mu.Unlock()

	o.runTurn(ctx, identity, text, true)
}

// runTurn drives THINKING -> (SPEAKING|IDLE) for one exchange. Greeting
// exchanges pass showUser=false: the sentinel is backend context, not a
// user message.
func (o *Orchestrator) runTurn(ctx context.Context, identity entities.UserIdentity, utterance string, showUser bool) {
	o.mu.Lock()
	epoch := o.turnEpoch
	o.setStateLocked(entities.StateThinking)
	history := make(entities.ConversationRecord, len(o.memoryBank))
	copy(history, o.memoryBank)
	location := o.location
	userMsg := entities.NewMessage(entities.SpeakerUser, utterance)
	if showUser {
		o.emitter.MessageAppended(userMsg)
	}
	o.mu.Unlock()

	raw := o.inference.Complete(ctx, utterance, identity, history, location)

	o.mu.Lock()
	if o.turnEpoch != epoch {
		o.mu.Unlock()
		return
	}
	clean := entities.StripActionMarkers(raw)
	modelMsg := entities.NewMessage(entities.SpeakerAssistant, clean)
	if showUser {
		o.memoryBank = o.memoryBank.Append(userMsg, modelMsg)
	} else {
		o.memoryBank = o.memoryBank.Append(modelMsg)
	}
	bank := o.memoryBank
	o.emitter.MessageAppended(modelMsg)
	o.mu.Unlock()

	// The text is persisted before speech starts, so a crash mid-playback
	// never loses it.
	o.persistBank(ctx, identity, bank)

	for _, directive := range o.actions.Execute(ctx, raw, identity) {
		o.emitter.ActionDirective(directive)
	}

	pcm := o.synth.Synthesize(ctx, clean)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnEpoch != epoch {
		return
	}
	if pcm == nil {
		// Text-only response: hold the indicator briefly, then idle.
		o.stopDisplayTimerLocked()
		o.displayTimer = o.clk.AfterFunc(textOnlyDisplayDelay, func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if o.turnEpoch == epoch && o.state == entities.StateThinking {
				o.setStateLocked(entities.StateIdle)
			}
		})
		return
	}

	o.setStateLocked(entities.StateSpeaking)
	o.emitter.AudioSegment(pcm)
	o.scheduler.PlayOnce(pcm, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.turnEpoch == epoch && o.state == entities.StateSpeaking {
			o.setStateLocked(entities.StateIdle)
		}
	})
}

// StartStreaming opens the full-duplex session. Only valid from IDLE.
func (o *Orchestrator) StartStreaming(ctx context.Context) error {
	o.mu.Lock()
	if o.identity == nil || o.streaming || o.state != entities.StateIdle {
		o.mu.Unlock()
		return ErrNotReady
	}
	identity := *o.identity
	location := o.location
	o.mu.Unlock()

	if err := o.live.Connect(ctx, identity, location); err != nil {
		return err
	}

	events := o.live.Events()

	o.mu.Lock()
	o.streaming = true
	o.liveEvents = events
	o.inputBuf.Reset()
	o.outputBuf.Reset()
	o.scheduler.Reset()
	o.setStateLocked(entities.StateListening)
	o.mu.Unlock()

	go o.consumeLive(ctx, events)
	return nil
}

// StopStreaming ends the session gracefully, committing any finalized
// transcript pair first.
func (o *Orchestrator) StopStreaming(ctx context.Context) {
	o.mu.Lock()
	if !o.streaming {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.commitStreamingTurn(ctx)
	if err := o.live.Close(); err != nil {
		o.logger.Warn("Failed to close live session", zap.Error(err))
	}
}

// ForwardAudio relays one captured microphone chunk into the live session.
// Called from the transport read loop; never blocks on orchestrator state.
func (o *Orchestrator) ForwardAudio(data []byte) {
	o.mu.Lock()
	active := o.streaming
	o.mu.Unlock()
	if !active {
		return
	}
	if err := o.live.SendAudio(data); err != nil {
		o.logger.Warn("Failed to forward audio chunk", zap.Error(err))
	}
}

func (o *Orchestrator) consumeLive(ctx context.Context, events <-chan repositories.LiveEvent) {
	for event := range events {
		o.handleLiveEvent(ctx, event)
	}
	// The channel can close without a terminal event when the transport
	// dies abruptly. Release here so the session cannot stay stuck in
	// capture with no event source behind it. The identity check keeps a
	// late drain of an old channel from tearing down a newer session.
	o.mu.Lock()
	if o.liveEvents == events {
		o.releaseStreamingLocked()
	}
	o.mu.Unlock()
}

// handleLiveEvent applies one server event to the state machine. Events
// arrive in production order and are never reordered.
func (o *Orchestrator) handleLiveEvent(ctx context.Context, event repositories.LiveEvent) {
	switch e := event.(type) {
	case repositories.InputTranscript:
		o.mu.Lock()
		if o.streaming {
			o.inputBuf.WriteString(e.Text)
		}
		o.mu.Unlock()

	case repositories.OutputTranscript:
		o.mu.Lock()
		if o.streaming {
			o.outputBuf.WriteString(e.Text)
		}
		o.mu.Unlock()

	case repositories.AudioChunk:
		o.mu.Lock()
		if !o.streaming {
			o.mu.Unlock()
			return
		}
		o.scheduler.Schedule(e.Data)
		o.emitter.AudioSegment(e.Data)
		if o.state != entities.StateSpeaking {
			o.setStateLocked(entities.StateSpeaking)
		}
		o.mu.Unlock()

	case repositories.TurnComplete:
		o.commitStreamingTurn(ctx)

	case repositories.Interrupted:
		o.mu.Lock()
		if !o.streaming {
			o.mu.Unlock()
			return
		}
		o.scheduler.Flush()
		o.outputBuf.Reset()
		o.setStateLocked(entities.StateListening)
		o.mu.Unlock()

	case repositories.SessionError:
		o.logger.Error("Streaming session failed", zap.Error(e.Err))
		o.mu.Lock()
		if o.streaming {
			o.emitter.Alert(AlertTransportFailure)
			o.releaseStreamingLocked()
		}
		o.mu.Unlock()

	case repositories.SessionClosed:
		o.logger.Info("Streaming session closed", zap.String("reason", e.Reason))
		o.mu.Lock()
		o.releaseStreamingLocked()
		o.mu.Unlock()
	}
}

// commitStreamingTurn persists the accumulated transcript pair. A turn
// with only silence or only output is discarded, not committed.
func (o *Orchestrator) commitStreamingTurn(ctx context.Context) {
	o.mu.Lock()
	if !o.streaming || o.identity == nil {
		o.mu.Unlock()
		return
	}
	input := strings.TrimSpace(o.inputBuf.String())
	output := strings.TrimSpace(o.outputBuf.String())
	o.inputBuf.Reset()
	o.outputBuf.Reset()
	if input == "" || output == "" {
		o.mu.Unlock()
		return
	}

	identity := *o.identity
	userMsg := entities.NewMessage(entities.SpeakerUser, input)
	clean := entities.StripActionMarkers(output)
	modelMsg := entities.NewMessage(entities.SpeakerAssistant, clean)
	o.memoryBank = o.memoryBank.Append(userMsg, modelMsg)
	bank := o.memoryBank
	o.emitter.MessageAppended(userMsg)
	o.emitter.MessageAppended(modelMsg)
	o.mu.Unlock()

	o.persistBank(ctx, identity, bank)

	for _, directive := range o.actions.Execute(ctx, output, identity) {
		o.emitter.ActionDirective(directive)
	}
}

// releaseStreamingLocked drops all streaming resources and returns to
// IDLE. Caller holds the lock.
func (o *Orchestrator) releaseStreamingLocked() {
	if !o.streaming {
		return
	}
	o.streaming = false
	o.liveEvents = nil
	o.inputBuf.Reset()
	o.outputBuf.Reset()
	o.scheduler.Flush()
	o.scheduler.Reset()
	o.setStateLocked(entities.StateIdle)
}

// playbackDrained fires when the scheduled output timeline empties.
func (o *Orchestrator) playbackDrained() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != entities.StateSpeaking {
		return
	}
	if o.streaming {
		o.setStateLocked(entities.StateListening)
	} else {
		o.setStateLocked(entities.StateIdle)
	}
}

// startReminderLoop checks every minute whether the admin morning reminder
// is due, and speaks it at most once per day.
func (o *Orchestrator) startReminderLoop() {
	stop := make(chan struct{})
	o.mu.Lock()
	if o.reminderStop != nil {
		close(o.reminderStop)
	}
	o.reminderStop = stop
	o.mu.Unlock()

	ticker := o.clk.Ticker(reminderCheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				o.maybeSpeakReminder(now)
			}
		}
	}()
}

func (o *Orchestrator) maybeSpeakReminder(now time.Time) {
	o.mu.Lock()
	if o.identity == nil || !o.identity.IsAdmin() {
		o.mu.Unlock()
		return
	}
	if now.Hour() != morningReminderHour || now.Minute() != 0 {
		o.mu.Unlock()
		return
	}
	if sameDay(o.lastReminder, now) {
		o.mu.Unlock()
		return
	}
	o.lastReminder = now
	identity := *o.identity
	o.mu.Unlock()

	o.speakSystemMessage(context.Background(), identity, morningReminderText)
}

// speakSystemMessage delivers a server-originated announcement: append to
// the bank and transcript, persist, then synthesize and play.
func (o *Orchestrator) speakSystemMessage(ctx context.Context, identity entities.UserIdentity, text string) {
	o.mu.Lock()
	epoch := o.turnEpoch
	clean := entities.StripActionMarkers(text)
	modelMsg := entities.NewMessage(entities.SpeakerAssistant, clean)
	o.memoryBank = o.memoryBank.Append(modelMsg)
	bank := o.memoryBank
	o.emitter.MessageAppended(modelMsg)
	o.setStateLocked(entities.StateThinking)
	o.mu.Unlock()

	o.persistBank(ctx, identity, bank)

	pcm := o.synth.Synthesize(ctx, clean)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnEpoch != epoch {
		return
	}
	if pcm == nil {
		o.setStateLocked(entities.StateIdle)
		return
	}
	o.setStateLocked(entities.StateSpeaking)
	o.emitter.AudioSegment(pcm)
	o.scheduler.PlayOnce(pcm, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.turnEpoch == epoch && o.state == entities.StateSpeaking {
			o.setStateLocked(entities.StateIdle)
		}
	})
}

func (o *Orchestrator) loadBank(ctx context.Context, identity entities.UserIdentity) entities.ConversationRecord {
	var bank entities.ConversationRecord
	var err error
	if identity.IsAdmin() {
		bank, err = o.store.AdminHistory(ctx)
	} else {
		bank, err = o.store.UserHistory(ctx, identity.Mobile)
	}
	if err != nil {
		o.logger.Warn("Failed to load memory bank, starting empty", zap.Error(err))
		return entities.ConversationRecord{}
	}
	return bank
}

func (o *Orchestrator) persistBank(ctx context.Context, identity entities.UserIdentity, bank entities.ConversationRecord) {
	var err error
	if identity.IsAdmin() {
		err = o.store.SaveAdminHistory(ctx, bank)
	} else {
		err = o.store.SaveUserHistory(ctx, identity.Mobile, bank)
	}
	if err != nil {
		o.logger.Error("Failed to persist memory bank", zap.Error(err))
	}
}

// setStateLocked changes the visible state and notifies the client.
// Caller holds the lock.
func (o *Orchestrator) setStateLocked(state entities.SessionState) {
	if o.state == state {
		return
	}
	o.state = state
	o.emitter.StateChanged(state)
}

func (o *Orchestrator) stopDisplayTimerLocked() {
	if o.displayTimer != nil {
		o.displayTimer.Stop()
		o.displayTimer = nil
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
