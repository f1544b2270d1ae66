package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

// Document is a stored JSON body plus the version the store assigned to it.
type Document struct {
	ID        string
	Version   int64
	Data      json.RawMessage
	UpdatedAt time.Time
}

// Snapshot is the full content of one collection at a point in time.
type Snapshot struct {
	Collection domain.Collection
	Documents  []Document
}

type MutationOp int

const (
	OpWrite MutationOp = iota
	OpUpdate
	OpDelete
)

// Mutation is one step of an atomic commit. When IfVersion is set the
// store rejects the whole commit with domain.ErrOptimisticLock unless the
// document is at that version; version 0 means "must not exist".
type Mutation struct {
	Op         MutationOp
	Collection domain.Collection
	ID         string
	Data       json.RawMessage
	Fields     map[string]any
	IfVersion  *int64
}

func WriteMutation(c domain.Collection, id string, data json.RawMessage) Mutation {
	return Mutation{Op: OpWrite, Collection: c, ID: id, Data: data}
}

func UpdateMutation(c domain.Collection, id string, fields map[string]any) Mutation {
	return Mutation{Op: OpUpdate, Collection: c, ID: id, Fields: fields}
}

func DeleteMutation(c domain.Collection, id string) Mutation {
	return Mutation{Op: OpDelete, Collection: c, ID: id}
}

// Expect pins the mutation to the given document version.
func (m Mutation) Expect(version int64) Mutation {
	v := version
	m.IfVersion = &v
	return m
}

type SnapshotFunc func(Snapshot)

type DocumentStore interface {
	// Get returns a domain.NotFoundError when the document does not exist.
	Get(ctx context.Context, c domain.Collection, id string) (Document, error)

	List(ctx context.Context, c domain.Collection) ([]Document, error)

	// Write replaces the whole document, creating it when missing.
	Write(ctx context.Context, c domain.Collection, id string, data json.RawMessage) error

	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, c domain.Collection, id string, fields map[string]any) error

	Delete(ctx context.Context, c domain.Collection, id string) error

	// Commit applies all mutations atomically.
	Commit(ctx context.Context, mutations ...Mutation) error

	// Subscribe delivers the current snapshot of the collection and then a
	// fresh full snapshot after every change. The returned func unsubscribes.
	Subscribe(ctx context.Context, c domain.Collection, fn SnapshotFunc) (func(), error)
}
