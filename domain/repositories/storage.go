package repositories

import (
	"context"

	"github.com/nexalabs/nexa-server/domain/entities"
)

// ConversationStore persists conversation records. One singleton record for
// the admin identity, one record per mobile identifier for standard users.
// Reads never fail: missing or unparseable data yields an empty record.
// Every write is a full replace; callers serialize their own
// read-modify-write pairs per identity.
type ConversationStore interface {
	AdminHistory(ctx context.Context) (entities.ConversationRecord, error)
	SaveAdminHistory(ctx context.Context, record entities.ConversationRecord) error
	UserHistory(ctx context.Context, mobile string) (entities.ConversationRecord, error)
	SaveUserHistory(ctx context.Context, mobile string, record entities.ConversationRecord) error
	PurgeAdminHistory(ctx context.Context) error
}

// UserDirectory tracks every standard user that has ever logged in,
// for admin review and block-listing.
type UserDirectory interface {
	List(ctx context.Context) ([]entities.StoredUser, error)
	Upsert(ctx context.Context, user entities.StoredUser) error
	SetBlocked(ctx context.Context, mobile string, blocked bool) error
	IsBlocked(ctx context.Context, mobile string) (bool, error)
}

// InquiryLog persists admin-inquiry records produced by the
// LOG_ADMIN_INQUIRY action marker.
type InquiryLog interface {
	Append(ctx context.Context, inquiry entities.AdminInquiry) error
	Inquiries(ctx context.Context) ([]entities.AdminInquiry, error)
}

// IdentitySessionStore holds volatile per-login state: the current identity
// for a connection and the rotating greeting template indexes.
type IdentitySessionStore interface {
	SaveIdentity(ctx context.Context, connectionID string, identity entities.UserIdentity) error
	Identity(ctx context.Context, connectionID string) (*entities.UserIdentity, error)
	ClearIdentity(ctx context.Context, connectionID string) error
	// NextGreetingIndex increments and returns the greeting rotation counter
	// for the given scope ("admin" or "user"), starting at 0.
	NextGreetingIndex(ctx context.Context, scope string) (int, error)
}
