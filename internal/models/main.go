// Package models defines the entity shapes persisted by the apps and the
// constraint every stored entity satisfies.
package models

import "time"

// Meta holds the identity and timestamps shared by every entity.
type Meta struct {
	// ID is the unique identifier of the entity within its collection.
	ID string `json:"id"`
	// CreatedAt is stamped by the store on first insert.
	CreatedAt time.Time `json:"createdAt,omitzero"`
	// UpdatedAt is stamped by the store on every write.
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// EntityMeta returns the identity block of the entity.
func (m Meta) EntityMeta() Meta { return m }

// Entity is implemented by value types that can be stored in a collection.
// WithMeta returns a copy of the entity carrying m; the receiver is unchanged.
type Entity[T any] interface {
	EntityMeta() Meta
	WithMeta(m Meta) T
}
