package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/adapters"
	"github.com/nexalabs/nexa-server/domain/entities"
)

func newExecutor(store *adapters.MemoryStore) *ActionExecutor {
	e := NewActionExecutor(store, zap.NewNop())
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return e
}

func standardIdentity() entities.UserIdentity {
	return entities.UserIdentity{DisplayName: "Dana", Mobile: "5550100", Role: entities.RoleStandard}
}

func adminIdentity() entities.UserIdentity {
	return entities.UserIdentity{DisplayName: "Boss", Mobile: "5550199", Role: entities.RoleAdmin}
}

func TestExecuteRunsEachMarkerOnce(t *testing.T) {
	store := adapters.NewMemoryStore()
	e := newExecutor(store)

	text := "Calling now. [[CALL:+15550100]] And opening. [[OPEN:YOUTUBE]]"
	directives := e.Execute(context.Background(), text, standardIdentity())

	if len(directives) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(directives))
	}
	if directives[0].Kind != "dial" || directives[0].URL != "tel:+15550100" {
		t.Errorf("unexpected first directive %+v", directives[0])
	}
	if directives[1].Kind != "open_url" || directives[1].URL != "https://www.youtube.com" {
		t.Errorf("unexpected second directive %+v", directives[1])
	}

	// Stripped text carries no marker substrings.
	stripped := entities.StripActionMarkers(text)
	if strings.Contains(stripped, "[[") || strings.Contains(stripped, "]]") {
		t.Errorf("marker substrings survived stripping: %q", stripped)
	}
}

func TestExecuteWhatsAppEscapesPayload(t *testing.T) {
	e := newExecutor(adapters.NewMemoryStore())

	directives := e.Execute(context.Background(), "[[WHATSAPP:hello & goodbye]]", standardIdentity())
	if len(directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(directives))
	}
	want := "https://api.whatsapp.com/send?text=hello+%26+goodbye"
	if directives[0].URL != want {
		t.Errorf("URL = %q, want %q", directives[0].URL, want)
	}
}

func TestExecuteUnknownAppKeyIsNoOp(t *testing.T) {
	e := newExecutor(adapters.NewMemoryStore())

	directives := e.Execute(context.Background(), "[[OPEN:MYSPACE]]", standardIdentity())
	if len(directives) != 0 {
		t.Errorf("expected no directives, got %+v", directives)
	}
}

func TestExecuteRecordsInquiryForStandardUserOnly(t *testing.T) {
	store := adapters.NewMemoryStore()
	e := newExecutor(store)
	ctx := context.Background()

	e.Execute(ctx, "I can't share that. [[LOG_ADMIN_INQUIRY]]", standardIdentity())
	inquiries, err := store.Inquiries(ctx)
	if err != nil {
		t.Fatalf("Inquiries failed: %v", err)
	}
	if len(inquiries) != 1 {
		t.Fatalf("expected 1 inquiry, got %d", len(inquiries))
	}
	if inquiries[0].DisplayName != "Dana" || !inquiries[0].Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("unexpected inquiry %+v", inquiries[0])
	}

	// The admin asking about themselves is not logged.
	e.Execute(ctx, "[[LOG_ADMIN_INQUIRY]]", adminIdentity())
	inquiries, _ = store.Inquiries(ctx)
	if len(inquiries) != 1 {
		t.Errorf("admin inquiry was recorded, total %d", len(inquiries))
	}
}

func TestExecutePlainTextProducesNothing(t *testing.T) {
	e := newExecutor(adapters.NewMemoryStore())
	if directives := e.Execute(context.Background(), "just words", standardIdentity()); len(directives) != 0 {
		t.Errorf("expected no directives, got %+v", directives)
	}
}
