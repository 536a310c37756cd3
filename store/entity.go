// Package store is the persistence layer shared by every library record: the
// audited, soft-deletable Entity base and a generic Repository over SQLite.
package store

import "time"

// Column names of the Entity base.
const (
	ColID           = "id"
	ColCreatedAt    = "created_at"
	ColLastEditedAt = "last_edited_at"
	ColModified     = "modified"
	ColDeletedAt    = "deleted_at"
	ColDeleted      = "deleted"
)

// auditColumns are owned by the repository and cannot be set through Fields.
var auditColumns = map[string]bool{
	ColID:           true,
	ColCreatedAt:    true,
	ColLastEditedAt: true,
	ColModified:     true,
	ColDeletedAt:    true,
	ColDeleted:      true,
}

// Entity carries identity, audit stamps and the soft-delete marker. Domain
// records embed it anonymously so its columns are flattened into their table.
//
// Deleted is true iff DeletedAt is set, and Modified is true iff LastEditedAt
// is set.
type Entity struct {
	ID           int64      `db:"id"`
	CreatedAt    time.Time  `db:"created_at"`
	LastEditedAt *time.Time `db:"last_edited_at"`
	Modified     bool       `db:"modified"`
	DeletedAt    *time.Time `db:"deleted_at"`
	Deleted      bool       `db:"deleted"`
}

// Base gives the repository access to the embedded audit fields.
func (e *Entity) Base() *Entity { return e }

// Model is satisfied by pointers to structs that embed Entity.
type Model interface {
	TableName() string
	Base() *Entity
}

// Validator is an optional Model capability checked before every write.
type Validator interface {
	Validate() error
}

// ModelPtr constrains P to be *T and a Model, so a Repository can allocate
// entities of type T and still reach their Entity base.
type ModelPtr[T any] interface {
	*T
	Model
}
