package entities

import (
	"errors"
	"time"
)

// Role determines which conversation record an identity uses and which
// persona rules the backend applies.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleStandard Role = "STANDARD"
)

// UserIdentity is the authenticated identity driving a session. Immutable
// once the session starts.
type UserIdentity struct {
	DisplayName string `json:"display_name" bson:"display_name"`
	Mobile      string `json:"mobile" bson:"mobile"`
	Role        Role   `json:"role" bson:"role"`
}

// IsAdmin reports whether the identity uses the elevated conversation record.
func (u UserIdentity) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Validate validates the identity fields.
func (u UserIdentity) Validate() error {
	if u.DisplayName == "" {
		return errors.New("display name is required")
	}
	if u.Mobile == "" {
		return errors.New("mobile identifier is required")
	}
	if u.Role != RoleAdmin && u.Role != RoleStandard {
		return errors.New("invalid role")
	}
	return nil
}

// StoredUser is a directory entry for a known standard user.
type StoredUser struct {
	DisplayName string `json:"display_name" bson:"display_name"`
	Mobile      string `json:"mobile" bson:"mobile"`
	Blocked     bool   `json:"blocked" bson:"blocked"`
}

// AdminInquiry records a standard user asking about the administrator,
// persisted for later admin review.
type AdminInquiry struct {
	DisplayName string    `json:"display_name" bson:"display_name"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}
