package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/nexalabs/nexa-server/domain/entities"
)

func TestMergeAdjacentTurns(t *testing.T) {
	record := entities.ConversationRecord{
		{Speaker: entities.SpeakerUser, Text: "a"},
		{Speaker: entities.SpeakerUser, Text: "b"},
		{Speaker: entities.SpeakerAssistant, Text: "c"},
	}

	merged := MergeAdjacentTurns(record)
	if len(merged) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(merged))
	}
	if merged[0].Text != "a\n\nb" {
		t.Errorf("expected merged user turn %q, got %q", "a\n\nb", merged[0].Text)
	}
	if merged[1].Speaker != entities.SpeakerAssistant || merged[1].Text != "c" {
		t.Errorf("assistant turn altered: %+v", merged[1])
	}
}

func TestMergeAdjacentTurnsEmpty(t *testing.T) {
	if got := MergeAdjacentTurns(nil); got != nil {
		t.Errorf("expected nil for empty record, got %v", got)
	}
}

func TestMergeAdjacentTurnsPreservesOrder(t *testing.T) {
	record := entities.ConversationRecord{
		{Speaker: entities.SpeakerAssistant, Text: "hi"},
		{Speaker: entities.SpeakerUser, Text: "one"},
		{Speaker: entities.SpeakerAssistant, Text: "two"},
		{Speaker: entities.SpeakerAssistant, Text: "three"},
		{Speaker: entities.SpeakerUser, Text: "four"},
	}

	merged := MergeAdjacentTurns(record)
	if len(merged) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(merged))
	}
	if merged[2].Text != "two\n\nthree" {
		t.Errorf("expected merged assistant turn, got %q", merged[2].Text)
	}
}

// testClient builds a client with injected generate/sleep/jitter so no
// network is involved.
func testClient(generate generateFunc) (*GeminiClient, *[]time.Duration) {
	var waits []time.Duration
	g := &GeminiClient{
		logger:          zap.NewNop(),
		model:           defaultModel,
		temperature:     defaultTemperature,
		maxOutputTokens: defaultMaxOutputTokens,
		timeoutSeconds:  defaultTimeoutSeconds,
		generate:        generate,
		sleep:           func(d time.Duration) { waits = append(waits, d) },
		jitter:          func(time.Duration) time.Duration { return 0 },
	}
	return g, &waits
}

var testIdentity = entities.UserIdentity{
	DisplayName: "Asha",
	Mobile:      "9900112233",
	Role:        entities.RoleStandard,
}

func TestCompleteRetriesTransientExactlyThreeTimes(t *testing.T) {
	attempts := 0
	g, waits := testClient(func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (string, error) {
		attempts++
		return "", genai.APIError{Code: 429, Message: "rate limited"}
	})

	got := g.Complete(context.Background(), "hello", testIdentity, nil, "")

	if attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", attempts)
	}
	if got != FallbackRateLimited {
		t.Errorf("expected rate-limit fallback, got %q", got)
	}
	expected := []time.Duration{2000 * time.Millisecond, 3000 * time.Millisecond}
	if len(*waits) != len(expected) {
		t.Fatalf("expected %d backoff waits, got %d", len(expected), len(*waits))
	}
	for i, want := range expected {
		if (*waits)[i] != want {
			t.Errorf("wait %d: expected %v, got %v", i, want, (*waits)[i])
		}
	}
}

func TestCompleteServerErrorFallsBackToConnection(t *testing.T) {
	g, _ := testClient(func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (string, error) {
		return "", genai.APIError{Code: 503, Message: "unavailable"}
	})

	if got := g.Complete(context.Background(), "hello", testIdentity, nil, ""); got != FallbackConnection {
		t.Errorf("expected connection fallback, got %q", got)
	}
}

func TestCompleteNonTransientFailsImmediately(t *testing.T) {
	attempts := 0
	g, waits := testClient(func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (string, error) {
		attempts++
		return "", fmt.Errorf("dns failure")
	})

	got := g.Complete(context.Background(), "hello", testIdentity, nil, "")

	if attempts != 1 {
		t.Errorf("expected a single attempt for non-transient failure, got %d", attempts)
	}
	if len(*waits) != 0 {
		t.Errorf("expected no backoff waits, got %d", len(*waits))
	}
	if got != FallbackConnection {
		t.Errorf("expected connection fallback, got %q", got)
	}
}

func TestCompleteRecoversMidRetry(t *testing.T) {
	attempts := 0
	g, _ := testClient(func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (string, error) {
		attempts++
		if attempts < 3 {
			return "", genai.APIError{Code: 500, Message: "boom"}
		}
		return "all good", nil
	})

	if got := g.Complete(context.Background(), "hello", testIdentity, nil, ""); got != "all good" {
		t.Errorf("expected successful response, got %q", got)
	}
}

func TestCompleteEmptyResponse(t *testing.T) {
	g, _ := testClient(func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (string, error) {
		return "", nil
	})

	if got := g.Complete(context.Background(), "hello", testIdentity, nil, ""); got != FallbackUncertain {
		t.Errorf("expected uncertain fallback, got %q", got)
	}
}

func TestToGenaiContentsAssignsRoles(t *testing.T) {
	record := entities.ConversationRecord{
		entities.NewMessage(entities.SpeakerUser, "what time is it"),
		entities.NewMessage(entities.SpeakerAssistant, "half past nine"),
	}

	contents := toGenaiContents(record)
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != genai.RoleUser {
		t.Errorf("expected user role, got %q", contents[0].Role)
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("expected model role, got %q", contents[1].Role)
	}
	if len(contents[1].Parts) == 0 || contents[1].Parts[0].Text != "half past nine" {
		t.Error("assistant text not carried into content parts")
	}
}
