package entities

import (
	"regexp"
	"strings"
)

// ActionCommand names a client-side side effect requested by the backend
// through inline markup of the form [[COMMAND:payload]].
type ActionCommand string

const (
	ActionWhatsApp        ActionCommand = "WHATSAPP"
	ActionCall            ActionCommand = "CALL"
	ActionOpen            ActionCommand = "OPEN"
	ActionLogAdminInquiry ActionCommand = "LOG_ADMIN_INQUIRY"
)

// Action is one extracted marker occurrence.
type Action struct {
	Command ActionCommand
	Payload string
}

// markerPattern matches [[COMMAND]] and [[COMMAND:payload]]. Command names
// are case-insensitive.
var markerPattern = regexp.MustCompile(`\[\[([A-Za-z_]+)(?::([^\]]*))?\]\]`)

// stripPattern removes every marker-shaped substring, including malformed
// ones the parser rejects, so none reach display or speech.
var stripPattern = regexp.MustCompile(`\[\[.*?\]\]`)

// ParseActions extracts every action marker in left-to-right order of
// appearance.
func ParseActions(text string) []Action {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	actions := make([]Action, 0, len(matches))
	for _, m := range matches {
		actions = append(actions, Action{
			Command: ActionCommand(strings.ToUpper(m[1])),
			Payload: m[2],
		})
	}
	return actions
}

// StripActionMarkers removes all marker substrings and trims the result.
func StripActionMarkers(text string) string {
	return strings.TrimSpace(stripPattern.ReplaceAllString(text, ""))
}
