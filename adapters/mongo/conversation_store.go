package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

const (
	memoryBankCollection = "memory_banks"
	adminBankKey         = "admin"
)

// ConversationStore persists per-user conversation memory banks. Each bank
// is one document keyed by owner and replaced wholesale on save, so the
// stored record always matches the in-memory record exactly.
type ConversationStore struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.ConversationStore = (*ConversationStore)(nil)

// NewConversationStore creates a MongoDB conversation store
func NewConversationStore(db *mongo.Database, logger *zap.Logger) *ConversationStore {
	return &ConversationStore{
		collection: db.Collection(memoryBankCollection),
		logger:     logger,
	}
}

type memoryBankDoc struct {
	ID       string                         `bson:"_id"`
	Messages []entities.ConversationMessage `bson:"messages"`
}

func userBankKey(mobile string) string {
	return "user:" + mobile
}

// AdminHistory loads the shared admin memory bank.
func (s *ConversationStore) AdminHistory(ctx context.Context) (entities.ConversationRecord, error) {
	return s.load(ctx, adminBankKey)
}

// SaveAdminHistory replaces the shared admin memory bank.
func (s *ConversationStore) SaveAdminHistory(ctx context.Context, record entities.ConversationRecord) error {
	return s.save(ctx, adminBankKey, record)
}

// UserHistory loads the memory bank for one standard user.
func (s *ConversationStore) UserHistory(ctx context.Context, mobile string) (entities.ConversationRecord, error) {
	if mobile == "" {
		return nil, errors.New("mobile cannot be empty")
	}
	return s.load(ctx, userBankKey(mobile))
}

// SaveUserHistory replaces the memory bank for one standard user.
func (s *ConversationStore) SaveUserHistory(ctx context.Context, mobile string, record entities.ConversationRecord) error {
	if mobile == "" {
		return errors.New("mobile cannot be empty")
	}
	return s.save(ctx, userBankKey(mobile), record)
}

// PurgeAdminHistory deletes the shared admin memory bank.
func (s *ConversationStore) PurgeAdminHistory(ctx context.Context) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": adminBankKey}); err != nil {
		return fmt.Errorf("failed to purge admin memory bank: %w", err)
	}
	s.logger.Info("Purged admin memory bank")
	return nil
}

// load returns an empty record when no bank exists yet. A missing or
// unreadable bank starts a fresh conversation rather than failing login.
func (s *ConversationStore) load(ctx context.Context, key string) (entities.ConversationRecord, error) {
	var doc memoryBankDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entities.ConversationRecord{}, nil
		}
		s.logger.Warn("Failed to load memory bank, starting empty",
			zap.String("bank", key), zap.Error(err))
		return entities.ConversationRecord{}, nil
	}
	return entities.ConversationRecord(doc.Messages), nil
}

func (s *ConversationStore) save(ctx context.Context, key string, record entities.ConversationRecord) error {
	doc := memoryBankDoc{ID: key, Messages: record}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("failed to save memory bank %s: %w", key, err)
	}
	return nil
}
