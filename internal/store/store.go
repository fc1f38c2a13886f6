// Package store persists users, shared file metadata and chat history.
//
// SQLStore implements both IdentityStore and DocumentStore on top of
// database/sql, with SQLite (modernc.org/sqlite) as the default backend and
// PostgreSQL (pgx) for shared deployments. Schema changes are applied with
// goose from embedded migrations.
package store

import (
	"context"
	"time"
)

// IdentityStore resolves user accounts.
type IdentityStore interface {
	UserByID(ctx context.Context, id int64) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	// ApproveUser lets a pending account log in.
	ApproveUser(ctx context.Context, email string) error
}

// DocumentStore persists shared files and chat history.
//
// IncrementEditors and DecrementEditors are single conditional updates, so
// concurrent join/leave requests for the same file never lose an update.
type DocumentStore interface {
	AppendMessage(ctx context.Context, room string, senderID int64, content string, ts time.Time) (*ChatMessage, error)
	ListMessages(ctx context.Context, room string) ([]*ChatMessage, error)

	CreateFile(ctx context.Context, f *SharedFile) (*SharedFile, error)
	GetFile(ctx context.Context, id int64) (*SharedFile, error)
	ListActiveFiles(ctx context.Context) ([]*SharedFile, error)

	// IncrementEditors adds one editor unless the counter already reached
	// capacity, in which case common.ErrEditCapacityExceeded is returned.
	IncrementEditors(ctx context.Context, fileID int64, capacity int) error
	// DecrementEditors removes one editor, clamping at zero. It returns
	// common.ErrNotFound for an unknown file.
	DecrementEditors(ctx context.Context, fileID int64) error
	// SetEditors overwrites the counter during reconciliation.
	SetEditors(ctx context.Context, fileID int64, n int) error
}
