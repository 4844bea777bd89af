package entities

import "time"

// Speaker identifies who produced a conversation message.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// ConversationMessage is a single finalized exchange entry. Append-only;
// never mutated after creation. Ordering is insertion order.
type ConversationMessage struct {
	Speaker   Speaker `json:"speaker" bson:"speaker"`
	Text      string  `json:"text" bson:"text"`
	CreatedAt int64   `json:"created_at" bson:"created_at"` // epoch millis
}

// NewMessage creates a message stamped with the current time.
func NewMessage(speaker Speaker, text string) ConversationMessage {
	return ConversationMessage{
		Speaker:   speaker,
		Text:      text,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// ConversationRecord is the ordered history for one identity. The record
// loaded at session start is the authoritative context sent to the backend;
// the on-screen transcript is a separate session-scoped view.
type ConversationRecord []ConversationMessage

// Append returns the record with messages added, preserving order.
func (r ConversationRecord) Append(messages ...ConversationMessage) ConversationRecord {
	return append(r, messages...)
}
