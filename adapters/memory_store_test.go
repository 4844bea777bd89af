package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/nexalabs/nexa-server/domain/entities"
)

func TestMemoryStoreConversationRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := entities.ConversationRecord{
		entities.NewMessage(entities.SpeakerUser, "hello"),
		entities.NewMessage(entities.SpeakerAssistant, "hi"),
	}
	if err := store.SaveUserHistory(ctx, "5550100", record); err != nil {
		t.Fatalf("SaveUserHistory failed: %v", err)
	}

	loaded, err := store.UserHistory(ctx, "5550100")
	if err != nil {
		t.Fatalf("UserHistory failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded))
	}

	// Mutating the loaded record must not leak into the store.
	loaded[0].Text = "tampered"
	again, _ := store.UserHistory(ctx, "5550100")
	if again[0].Text != "hello" {
		t.Error("stored record shares memory with caller")
	}
}

func TestMemoryStoreMissingBankIsEmpty(t *testing.T) {
	store := NewMemoryStore()

	record, err := store.UserHistory(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("UserHistory failed: %v", err)
	}
	if len(record) != 0 {
		t.Errorf("expected empty record, got %d messages", len(record))
	}
}

func TestMemoryStorePurgeAdminHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := entities.ConversationRecord{entities.NewMessage(entities.SpeakerUser, "secret")}
	if err := store.SaveAdminHistory(ctx, record); err != nil {
		t.Fatalf("SaveAdminHistory failed: %v", err)
	}
	if err := store.PurgeAdminHistory(ctx); err != nil {
		t.Fatalf("PurgeAdminHistory failed: %v", err)
	}

	loaded, _ := store.AdminHistory(ctx)
	if len(loaded) != 0 {
		t.Errorf("expected empty admin bank after purge, got %d messages", len(loaded))
	}
}

func TestMemoryStoreUpsertPreservesBlockFlag(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, entities.StoredUser{DisplayName: "Dana", Mobile: "5550100"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.SetBlocked(ctx, "5550100", true); err != nil {
		t.Fatalf("SetBlocked failed: %v", err)
	}

	// A later login refreshes the name but keeps the block.
	if err := store.Upsert(ctx, entities.StoredUser{DisplayName: "Dana R", Mobile: "5550100"}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	blocked, err := store.IsBlocked(ctx, "5550100")
	if err != nil {
		t.Fatalf("IsBlocked failed: %v", err)
	}
	if !blocked {
		t.Error("block flag lost on re-login")
	}

	users, _ := store.List(ctx)
	if len(users) != 1 || users[0].DisplayName != "Dana R" {
		t.Errorf("unexpected directory %+v", users)
	}
}

func TestMemoryStoreGreetingRotation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for want := 0; want < 3; want++ {
		got, err := store.NextGreetingIndex(ctx, "admin")
		if err != nil {
			t.Fatalf("NextGreetingIndex failed: %v", err)
		}
		if got != want {
			t.Errorf("admin rotation = %d, want %d", got, want)
		}
	}

	// Scopes rotate independently.
	if got, _ := store.NextGreetingIndex(ctx, "user"); got != 0 {
		t.Errorf("user rotation started at %d, want 0", got)
	}
}

func TestMemoryStoreIdentityLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if identity, _ := store.Identity(ctx, "conn-1"); identity != nil {
		t.Fatal("expected no identity before save")
	}

	saved := entities.UserIdentity{DisplayName: "Dana", Mobile: "5550100", Role: entities.RoleStandard}
	if err := store.SaveIdentity(ctx, "conn-1", saved); err != nil {
		t.Fatalf("SaveIdentity failed: %v", err)
	}

	identity, err := store.Identity(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if identity == nil || identity.Mobile != "5550100" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	if err := store.ClearIdentity(ctx, "conn-1"); err != nil {
		t.Fatalf("ClearIdentity failed: %v", err)
	}
	if identity, _ := store.Identity(ctx, "conn-1"); identity != nil {
		t.Error("identity survived clear")
	}
}

func TestMemoryStoreInquiriesNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	names := []string{"Dana", "Eli", "Fay"}
	for i, name := range names {
		inquiry := entities.AdminInquiry{DisplayName: name, Timestamp: base.Add(time.Duration(i) * time.Hour)}
		if err := store.Append(ctx, inquiry); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	inquiries, err := store.Inquiries(ctx)
	if err != nil {
		t.Fatalf("Inquiries failed: %v", err)
	}
	if len(inquiries) != 3 {
		t.Fatalf("expected 3 inquiries, got %d", len(inquiries))
	}
	for i, want := range []string{"Fay", "Eli", "Dana"} {
		if inquiries[i].DisplayName != want {
			t.Errorf("position %d: expected %s, got %s", i, want, inquiries[i].DisplayName)
		}
	}
}
