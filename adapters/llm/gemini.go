package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

const (
	defaultModel           = "gemini-2.5-flash"
	defaultTemperature     = 0.7
	defaultMaxOutputTokens = 300
	defaultTimeoutSeconds  = 30

	maxAttempts    = 3
	initialBackoff = 2000 * time.Millisecond
	backoffFactor  = 1.5
	maxJitter      = 1000 * time.Millisecond
)

// Fixed user-facing fallback phrases. Raw backend errors never reach the
// presentation layer.
const (
	FallbackRateLimited = "Systems overloaded. Give me a moment and try again."
	FallbackConnection  = "Connection interrupted. Retrying neural link."
	FallbackUncertain   = "Systems uncertain. Please retry."
)

// blockNone disables response filtering so persona tone survives intact.
var blockNone = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

// GeminiConfig configures the turn-based inference client.
// Required fields:
// - APIKey: Gemini API key (falls back to GEMINI_API_KEY)
// Optional fields with defaults:
// - Model: model name (default "gemini-2.5-flash")
// - Temperature: sampling temperature (default 0.7)
// - MaxOutputTokens: response cap (default 300)
// - TimeoutSeconds: per-request timeout (default 30)
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// ValidateGeminiConfig validates the GeminiConfig.
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("gemini API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// GeminiClient implements the InferenceClient contract against the Gemini
// API with internal retry/backoff. Complete never returns an error.
type GeminiClient struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	maxOutputTokens int
	timeoutSeconds  int

	// Injection points for tests.
	generate generateFunc
	sleep    func(time.Duration)
	jitter   func(max time.Duration) time.Duration
}

type generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error)

var _ repositories.InferenceClient = (*GeminiClient)(nil)

// NewGeminiClient creates a turn-based inference client.
func NewGeminiClient(config GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := config.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxOutputTokens
	}
	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	g := &GeminiClient{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: maxTokens,
		timeoutSeconds:  timeoutSeconds,
		sleep:           time.Sleep,
		jitter: func(max time.Duration) time.Duration {
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
	g.generate = g.callGemini
	return g, nil
}

// Complete sends the merged prior-turn context plus the new utterance and
// resolves to one finished response string, falling back to a fixed phrase
// on failure.
func (g *GeminiClient) Complete(ctx context.Context, utterance string, identity entities.UserIdentity, history entities.ConversationRecord, location string) string {
	merged := MergeAdjacentTurns(history)
	contents := toGenaiContents(merged)
	contents = append(contents, genai.NewContentFromText(utterance, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemDirective(identity, location, time.Now()), genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   int32(g.maxOutputTokens),
		SafetySettings:    blockNone,
		ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(0))},
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeoutSeconds)*time.Second)
	defer cancel()

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := g.generate(ctx, contents, config)
		if err == nil {
			if text == "" {
				g.logger.Warn("Empty completion from backend")
				return FallbackUncertain
			}
			return text
		}
		lastErr = err

		if !isTransient(err) {
			g.logger.Error("Non-transient inference failure", zap.Error(err))
			return FallbackConnection
		}

		g.logger.Warn("Transient inference failure, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < maxAttempts {
			g.sleep(backoff + g.jitter(maxJitter))
			backoff = time.Duration(float64(backoff) * backoffFactor)
		}
	}

	g.logger.Error("Inference retries exhausted", zap.Error(lastErr))
	if isRateLimited(lastErr) {
		return FallbackRateLimited
	}
	return FallbackConnection
}

// callGemini performs the real API call.
func (g *GeminiClient) callGemini(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", err
	}
	return flattenText(response), nil
}

// isTransient reports whether the failure class is worth retrying:
// rate limits and server errors.
func isTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return false
}

func isRateLimited(err error) bool {
	var apiErr genai.APIError
	return errors.As(err, &apiErr) && apiErr.Code == 429
}

// SystemDirective builds the role-conditioned behavior directive sent with
// every request. Persona depth is prompt content on the backend side; this
// pins down identity, context, and the action protocol only.
func SystemDirective(identity entities.UserIdentity, location string, now time.Time) string {
	directive := fmt.Sprintf(
		"You are NEXA, a voice assistant.\n"+
			"Current time: %s\nCurrent date: %s\n"+
			"User name: %s\nRole: %s\n",
		now.Format("03:04 PM"),
		now.Format("Monday, 2 January"),
		identity.DisplayName,
		identity.Role,
	)
	if location != "" {
		directive += fmt.Sprintf("Approximate location: %s\n", location)
	}

	directive += "\nACTION PROTOCOL: to perform an action, append a command code to your response:\n" +
		"[[WHATSAPP:message_text]] [[CALL:phone_number]] [[OPEN:app_name]]\n"

	if identity.IsAdmin() {
		directive += "\nADMIN MODE ACTIVE: warm, familiar tone; full disclosure permitted."
	} else {
		directive += "\nUSER MODE ACTIVE: neutral helpful tone. Creator details are restricted; " +
			"when first asked about the creator, refuse politely and append [[LOG_ADMIN_INQUIRY]]."
	}
	return directive
}
