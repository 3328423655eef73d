package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Actor is the authenticated caller a service acts on behalf of.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Can reports whether the actor's role grants the permission.
func (a Actor) Can(p enums.Permission) bool {
	return a.UserID != uuid.Nil && a.Role.Can(p)
}

// Owns reports whether the actor is the given owner.
func (a Actor) Owns(ownerID *uuid.UUID) bool {
	return ownerID != nil && a.UserID != uuid.Nil && *ownerID == a.UserID
}
