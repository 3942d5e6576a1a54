package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemberRole is a member's access level on a Matter.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleEditor MemberRole = "editor"
	RoleViewer MemberRole = "viewer"
)

// Matter is the tenancy unit. All other collections carry a matter_id and
// every query against them must filter by it (see internal/store).
type Matter struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name      string              `bson:"name" json:"name"`
	Members   map[string]MemberRole `bson:"members" json:"members"` // user_id -> role
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
	DeletedAt *time.Time          `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

func (m *Matter) HasMember(userID string, roles ...MemberRole) bool {
	role, ok := m.Members[userID]
	if !ok {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if role == r {
			return true
		}
	}
	return false
}
