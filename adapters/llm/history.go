package llm

import (
	"strings"

	"google.golang.org/genai"

	"github.com/nexalabs/nexa-server/domain/entities"
)

// MergeAdjacentTurns collapses consecutive same-speaker messages into one
// turn, joining texts with a blank line. The backend mishandles consecutive
// same-role turns, so history must be merged before transmission.
func MergeAdjacentTurns(record entities.ConversationRecord) entities.ConversationRecord {
	if len(record) == 0 {
		return nil
	}

	merged := make(entities.ConversationRecord, 0, len(record))
	for _, msg := range record {
		last := len(merged) - 1
		if last >= 0 && merged[last].Speaker == msg.Speaker {
			merged[last].Text = merged[last].Text + "\n\n" + msg.Text
			continue
		}
		merged = append(merged, msg)
	}
	return merged
}

// toGenaiContents converts a merged record to the wire turn list.
func toGenaiContents(record entities.ConversationRecord) []*genai.Content {
	contents := make([]*genai.Content, 0, len(record))
	for _, msg := range record {
		var role genai.Role = genai.RoleUser
		if msg.Speaker == entities.SpeakerAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text, role))
	}
	return contents
}

// flattenText joins the text parts of the first candidate.
func flattenText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
