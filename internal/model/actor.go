package model

import "github.com/google/uuid"

// Role names carried in access token claims.
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleClient = "client"

	// RoleSystem is never issued in a token. Only the conversion path builds
	// an actor holding it, so origin records can reach converted/invoiced.
	RoleSystem = "system"
)

// Actor is the authenticated caller of a domain operation.
type Actor struct {
	ID    uuid.UUID
	Roles map[string]struct{}
}

func NewActor(id uuid.UUID, roles ...string) Actor {
	a := Actor{ID: id, Roles: make(map[string]struct{}, len(roles))}
	for _, r := range roles {
		if r == "" {
			continue
		}
		a.Roles[r] = struct{}{}
	}
	return a
}

// SystemActor acts on behalf of the user who triggered a conversion.
func SystemActor(onBehalfOf uuid.UUID) Actor {
	return NewActor(onBehalfOf, RoleSystem)
}

func (a Actor) Has(role string) bool {
	_, ok := a.Roles[role]
	return ok
}

func (a Actor) HasAny(roles ...string) bool {
	for _, r := range roles {
		if a.Has(r) {
			return true
		}
	}
	return false
}

// IsBackOffice reports whether the actor works for the business rather than as a client.
func (a Actor) IsBackOffice() bool {
	return a.HasAny(RoleAdmin, RoleStaff)
}

func (a Actor) IsZero() bool {
	return a.ID == uuid.Nil
}
