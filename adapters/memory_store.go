package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

// MemoryStore is a production-ready in-memory implementation of the storage
// interfaces. It backs development deployments that run without MongoDB and
// the orchestration tests.
type MemoryStore struct {
	mu         sync.RWMutex
	adminBank  entities.ConversationRecord
	userBanks  map[string]entities.ConversationRecord // mobile -> record
	users      map[string]entities.StoredUser         // mobile -> user
	inquiries  []entities.AdminInquiry
	identities map[string]entities.UserIdentity // connectionID -> identity
	greetings  map[string]int                   // scope -> next rotation index
}

var (
	_ repositories.ConversationStore    = (*MemoryStore)(nil)
	_ repositories.UserDirectory        = (*MemoryStore)(nil)
	_ repositories.InquiryLog           = (*MemoryStore)(nil)
	_ repositories.IdentitySessionStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		userBanks:  make(map[string]entities.ConversationRecord),
		users:      make(map[string]entities.StoredUser),
		identities: make(map[string]entities.UserIdentity),
		greetings:  make(map[string]int),
	}
}

// AdminHistory implements repositories.ConversationStore
func (m *MemoryStore) AdminHistory(ctx context.Context) (entities.ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRecord(m.adminBank), nil
}

// SaveAdminHistory implements repositories.ConversationStore
func (m *MemoryStore) SaveAdminHistory(ctx context.Context, record entities.ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminBank = copyRecord(record)
	return nil
}

// UserHistory implements repositories.ConversationStore
func (m *MemoryStore) UserHistory(ctx context.Context, mobile string) (entities.ConversationRecord, error) {
	if mobile == "" {
		return nil, errors.New("mobile cannot be empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRecord(m.userBanks[mobile]), nil
}

// SaveUserHistory implements repositories.ConversationStore
func (m *MemoryStore) SaveUserHistory(ctx context.Context, mobile string, record entities.ConversationRecord) error {
	if mobile == "" {
		return errors.New("mobile cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userBanks[mobile] = copyRecord(record)
	return nil
}

// PurgeAdminHistory implements repositories.ConversationStore
func (m *MemoryStore) PurgeAdminHistory(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminBank = nil
	return nil
}

// List implements repositories.UserDirectory
func (m *MemoryStore) List(ctx context.Context) ([]entities.StoredUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]entities.StoredUser, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].DisplayName < users[j].DisplayName
	})
	return users, nil
}

// Upsert implements repositories.UserDirectory. The display name refreshes
// on every login; an existing block flag is preserved.
func (m *MemoryStore) Upsert(ctx context.Context, user entities.StoredUser) error {
	if user.Mobile == "" {
		return errors.New("mobile cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.users[user.Mobile]; exists {
		existing.DisplayName = user.DisplayName
		m.users[user.Mobile] = existing
		return nil
	}
	m.users[user.Mobile] = user
	return nil
}

// SetBlocked implements repositories.UserDirectory
func (m *MemoryStore) SetBlocked(ctx context.Context, mobile string, blocked bool) error {
	if mobile == "" {
		return errors.New("mobile cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[mobile]
	if !exists {
		return errors.New("user not found")
	}
	user.Blocked = blocked
	m.users[mobile] = user
	return nil
}

// IsBlocked implements repositories.UserDirectory
func (m *MemoryStore) IsBlocked(ctx context.Context, mobile string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[mobile].Blocked, nil
}

// Append implements repositories.InquiryLog
func (m *MemoryStore) Append(ctx context.Context, inquiry entities.AdminInquiry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inquiries = append(m.inquiries, inquiry)
	return nil
}

// Inquiries implements repositories.InquiryLog, newest first.
func (m *MemoryStore) Inquiries(ctx context.Context) ([]entities.AdminInquiry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inquiries := make([]entities.AdminInquiry, len(m.inquiries))
	copy(inquiries, m.inquiries)
	sort.Slice(inquiries, func(i, j int) bool {
		return inquiries[i].Timestamp.After(inquiries[j].Timestamp)
	})
	return inquiries, nil
}

// SaveIdentity implements repositories.IdentitySessionStore
func (m *MemoryStore) SaveIdentity(ctx context.Context, connectionID string, identity entities.UserIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[connectionID] = identity
	return nil
}

// Identity implements repositories.IdentitySessionStore
func (m *MemoryStore) Identity(ctx context.Context, connectionID string) (*entities.UserIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, exists := m.identities[connectionID]
	if !exists {
		return nil, nil
	}
	return &identity, nil
}

// ClearIdentity implements repositories.IdentitySessionStore
func (m *MemoryStore) ClearIdentity(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, connectionID)
	return nil
}

// NextGreetingIndex implements repositories.IdentitySessionStore
func (m *MemoryStore) NextGreetingIndex(ctx context.Context, scope string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := m.greetings[scope]
	m.greetings[scope] = index + 1
	return index, nil
}

func copyRecord(record entities.ConversationRecord) entities.ConversationRecord {
	if record == nil {
		return entities.ConversationRecord{}
	}
	out := make(entities.ConversationRecord, len(record))
	copy(out, record)
	return out
}
