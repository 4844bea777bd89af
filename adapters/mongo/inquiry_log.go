package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

const inquiryCollection = "admin_inquiries"

// InquiryLog records standard users who asked about the administrator.
type InquiryLog struct {
	collection *mongo.Collection
}

var _ repositories.InquiryLog = (*InquiryLog)(nil)

// NewInquiryLog creates a MongoDB inquiry log
func NewInquiryLog(db *mongo.Database) *InquiryLog {
	return &InquiryLog{collection: db.Collection(inquiryCollection)}
}

type inquiryDoc struct {
	DisplayName string    `bson:"display_name"`
	Timestamp   time.Time `bson:"timestamp"`
}

func newInquiryDoc(inquiry entities.AdminInquiry) inquiryDoc {
	return inquiryDoc{DisplayName: inquiry.DisplayName, Timestamp: inquiry.Timestamp.UTC()}
}

func (d inquiryDoc) toEntity() entities.AdminInquiry {
	return entities.AdminInquiry{DisplayName: d.DisplayName, Timestamp: d.Timestamp}
}

// Append records one inquiry.
func (l *InquiryLog) Append(ctx context.Context, inquiry entities.AdminInquiry) error {
	if _, err := l.collection.InsertOne(ctx, newInquiryDoc(inquiry)); err != nil {
		return fmt.Errorf("failed to record inquiry: %w", err)
	}
	return nil
}

// Inquiries returns recorded inquiries newest first.
func (l *InquiryLog) Inquiries(ctx context.Context) ([]entities.AdminInquiry, error) {
	opts := options.Find().SetSort(bson.M{"timestamp": -1})
	cursor, err := l.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list inquiries: %w", err)
	}
	defer cursor.Close(ctx)

	var inquiries []entities.AdminInquiry
	for cursor.Next(ctx) {
		var doc inquiryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode inquiry: %w", err)
		}
		inquiries = append(inquiries, doc.toEntity())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inquiries: %w", err)
	}
	return inquiries, nil
}
