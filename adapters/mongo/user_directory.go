package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

const userCollection = "users"

// UserDirectory tracks every standard user that has logged in, keyed by
// mobile number.
type UserDirectory struct {
	collection *mongo.Collection
}

var _ repositories.UserDirectory = (*UserDirectory)(nil)

// NewUserDirectory creates a MongoDB user directory
func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{collection: db.Collection(userCollection)}
}

type userDoc struct {
	Mobile      string `bson:"_id"`
	DisplayName string `bson:"display_name"`
	Blocked     bool   `bson:"blocked"`
}

// List returns every known user sorted by display name.
func (d *UserDirectory) List(ctx context.Context) ([]entities.StoredUser, error) {
	opts := options.Find().SetSort(bson.M{"display_name": 1})
	cursor, err := d.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []entities.StoredUser
	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		users = append(users, entities.StoredUser{
			DisplayName: doc.DisplayName,
			Mobile:      doc.Mobile,
			Blocked:     doc.Blocked,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Upsert records a user, refreshing the display name on every login while
// preserving an existing block flag.
func (d *UserDirectory) Upsert(ctx context.Context, user entities.StoredUser) error {
	if user.Mobile == "" {
		return errors.New("mobile cannot be empty")
	}
	update := bson.M{
		"$set":         bson.M{"display_name": user.DisplayName},
		"$setOnInsert": bson.M{"blocked": user.Blocked},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := d.collection.UpdateOne(ctx, bson.M{"_id": user.Mobile}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.Mobile, err)
	}
	return nil
}

// SetBlocked flips the block flag for one user.
func (d *UserDirectory) SetBlocked(ctx context.Context, mobile string, blocked bool) error {
	if mobile == "" {
		return errors.New("mobile cannot be empty")
	}
	result, err := d.collection.UpdateOne(ctx,
		bson.M{"_id": mobile},
		bson.M{"$set": bson.M{"blocked": blocked}})
	if err != nil {
		return fmt.Errorf("failed to update block flag for %s: %w", mobile, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s not found", mobile)
	}
	return nil
}

// IsBlocked reports whether a user is block-listed. Unknown users are not
// blocked.
func (d *UserDirectory) IsBlocked(ctx context.Context, mobile string) (bool, error) {
	var doc userDoc
	err := d.collection.FindOne(ctx, bson.M{"_id": mobile}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up user %s: %w", mobile, err)
	}
	return doc.Blocked, nil
}
