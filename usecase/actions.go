package usecase

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

// ClientDirective is a side effect the browser client should perform,
// produced from one action marker.
type ClientDirective struct {
	Kind string `json:"kind"` // "open_url" or "dial"
	URL  string `json:"url"`
}

// appLinks maps OPEN payloads to their destinations. Unknown keys are a
// no-op.
var appLinks = map[string]string{
	"YOUTUBE":   "https://www.youtube.com",
	"INSTAGRAM": "https://www.instagram.com",
	"GOOGLE":    "https://www.google.com",
	"CHROME":    "googlechrome://",
	"SETTINGS":  "intent://settings/#Intent;scheme=android-app;end",
}

// ActionExecutor turns action markers embedded in a response into client
// directives and server-side records. Each finalized response is executed
// exactly once; redisplay never re-executes.
type ActionExecutor struct {
	inquiries repositories.InquiryLog
	logger    *zap.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewActionExecutor creates an action executor
func NewActionExecutor(inquiries repositories.InquiryLog, logger *zap.Logger) *ActionExecutor {
	return &ActionExecutor{
		inquiries: inquiries,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute scans text for action markers and handles each in order of
// appearance. Client-facing effects are returned as directives; the
// LOG_ADMIN_INQUIRY marker is handled server-side and recorded only for
// non-admin identities.
func (e *ActionExecutor) Execute(ctx context.Context, text string, identity entities.UserIdentity) []ClientDirective {
	var directives []ClientDirective
	for _, action := range entities.ParseActions(text) {
		e.logger.Info("Executing action",
			zap.String("command", string(action.Command)),
			zap.String("user", identity.DisplayName))

		switch action.Command {
		case entities.ActionWhatsApp:
			directives = append(directives, ClientDirective{
				Kind: "open_url",
				URL:  "https://api.whatsapp.com/send?text=" + url.QueryEscape(action.Payload),
			})
		case entities.ActionCall:
			directives = append(directives, ClientDirective{
				Kind: "dial",
				URL:  "tel:" + action.Payload,
			})
		case entities.ActionOpen:
			if link, ok := appLinks[strings.ToUpper(action.Payload)]; ok {
				directives = append(directives, ClientDirective{Kind: "open_url", URL: link})
			}
		case entities.ActionLogAdminInquiry:
			if identity.IsAdmin() {
				continue
			}
			inquiry := entities.AdminInquiry{
				DisplayName: identity.DisplayName,
				Timestamp:   e.now(),
			}
			if err := e.inquiries.Append(ctx, inquiry); err != nil {
				e.logger.Error("Failed to record admin inquiry", zap.Error(err))
			}
		default:
			e.logger.Warn("Ignoring unknown action command",
				zap.String("command", string(action.Command)))
		}
	}
	return directives
}
