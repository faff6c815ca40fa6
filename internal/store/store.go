// Package store persists planning entities behind a single Repository
// interface with two interchangeable backends: a durable SQLite store with
// transactional rollback, and an ephemeral in-process store with no rollback
// capability. Identifiers are UUIDs in both backends, so references remain
// stable across a backend switch.
package store

import (
	"errors"
	"fmt"

	"goalforge/internal/config"
	"goalforge/internal/plan"
)

// ErrNotFound is returned by lookups of absent entities.
var ErrNotFound = errors.New("entity not found")

// Repository is the persistence surface for goals, structured solutions,
// COS, and CEs. CE deduplication is scoped per repository instance:
// FindOrCreateCE maps identical normalized content onto one record, and
// LinkCE attaches that record to any number of COS.
type Repository interface {
	// Goals are immutable once created.
	CreateGoal(g plan.Goal) error
	GetGoal(id string) (plan.Goal, error)
	ListGoals() ([]plan.Goal, error)

	// CreateSolution persists the solution shell and all of its COS. On the
	// durable backend the whole write is one transaction.
	CreateSolution(s *plan.StructuredSolution) error
	GetSolution(id string) (*plan.StructuredSolution, error)

	CreateCOS(c plan.COS) error
	GetCOS(id string) (plan.COS, error)
	UpdateCOS(c plan.COS) error
	// DeleteCOS removes the COS, its CE links, and any CE left orphaned.
	DeleteCOS(id string) error

	GetCE(id string) (plan.CE, error)
	UpdateCE(c plan.CE) error
	DeleteCE(id string) error
	// FindOrCreateCE is the dedup primitive: an existing CE with the same
	// normalized content is reused instead of inserting a duplicate.
	FindOrCreateCE(content, ceType string) (plan.CE, error)
	// LinkCE records CE membership in a COS. Linking twice is a no-op.
	LinkCE(cosID, ceID string) error
	// AttachCEs find-or-creates and links a batch of CEs to one COS,
	// returning the stored records in input order. On the durable backend
	// the whole batch is one transaction.
	AttachCEs(cosID string, ces []plan.CE) ([]plan.CE, error)
	CEsForCOS(cosID string) ([]plan.CE, error)

	Close() error
}

// Open selects the backend configured at startup. Call sites never branch on
// backend type again after this point.
func Open(cfg config.StoreConfig) (Repository, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DatabasePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
