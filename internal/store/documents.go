package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/officechat/internal/common"
)

// AppendMessage persists a chat message and returns it with its id.
func (s *SQLStore) AppendMessage(ctx context.Context, room string, senderID int64, content string, ts time.Time) (*ChatMessage, error) {
	msg := &ChatMessage{
		Content:   content,
		SenderID:  senderID,
		Room:      room,
		Timestamp: ts.UTC(),
	}
	query := s.rebind(`INSERT INTO messages (content, sender_id, room, created_at) VALUES (?, ?, ?, ?) RETURNING id`)
	if err := s.db.QueryRowContext(ctx, query, content, senderID, room, toUnix(ts)).Scan(&msg.ID); err != nil {
		return nil, fmt.Errorf("error inserting message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the history of a room, oldest first.
func (s *SQLStore) ListMessages(ctx context.Context, room string) ([]*ChatMessage, error) {
	query := s.rebind(`SELECT m.id, m.content, m.sender_id, u.email, m.room, m.created_at
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.room = ?
		ORDER BY m.created_at ASC, m.id ASC`)
	rows, err := s.db.QueryContext(ctx, query, room)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	result := make([]*ChatMessage, 0)
	for rows.Next() {
		var (
			m  ChatMessage
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.Content, &m.SenderID, &m.SenderEmail, &m.Room, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = fromUnix(ts)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const fileColumns = `id, filename, original_name, owner_id, allow_view, allow_edit, active_editors, uploaded_at`

func scanFile(row interface{ Scan(...any) error }) (*SharedFile, error) {
	var (
		f        SharedFile
		uploaded int64
	)
	if err := row.Scan(&f.ID, &f.Filename, &f.OriginalName, &f.OwnerID, &f.AllowView, &f.AllowEdit, &f.ActiveEditors, &uploaded); err != nil {
		return nil, err
	}
	f.UploadedAt = fromUnix(uploaded)
	return &f, nil
}

// CreateFile records metadata of an uploaded file.
func (s *SQLStore) CreateFile(ctx context.Context, f *SharedFile) (*SharedFile, error) {
	created := *f
	created.ActiveEditors = 0
	if created.UploadedAt.IsZero() {
		created.UploadedAt = time.Now().UTC()
	}
	query := s.rebind(`INSERT INTO shared_files (filename, original_name, owner_id, allow_view, allow_edit, active_editors, uploaded_at)
		VALUES (?, ?, ?, ?, ?, 0, ?) RETURNING id`)
	err := s.db.QueryRowContext(ctx, query,
		created.Filename, created.OriginalName, created.OwnerID, created.AllowView, created.AllowEdit, toUnix(created.UploadedAt),
	).Scan(&created.ID)
	if err != nil {
		return nil, fmt.Errorf("error inserting file: %w", err)
	}
	return &created, nil
}

// GetFile returns the file metadata or common.ErrNotFound.
func (s *SQLStore) GetFile(ctx context.Context, id int64) (*SharedFile, error) {
	query := s.rebind(`SELECT ` + fileColumns + ` FROM shared_files WHERE id = ?`)
	f, err := scanFile(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// ListActiveFiles returns files whose persisted editor counter is non-zero.
func (s *SQLStore) ListActiveFiles(ctx context.Context) ([]*SharedFile, error) {
	query := `SELECT ` + fileColumns + ` FROM shared_files WHERE active_editors > 0 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*SharedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// IncrementEditors atomically adds an editor while below capacity.
func (s *SQLStore) IncrementEditors(ctx context.Context, fileID int64, capacity int) error {
	query := s.rebind(`UPDATE shared_files SET active_editors = active_editors + 1 WHERE id = ? AND active_editors < ?`)
	res, err := s.db.ExecContext(ctx, query, fileID, capacity)
	if err != nil {
		return fmt.Errorf("failed to increment editors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("file %d: %w", fileID, common.ErrEditCapacityExceeded)
	}
	return nil
}

// DecrementEditors atomically removes an editor; the counter never goes below
// zero. A missing file is reported as common.ErrNotFound.
func (s *SQLStore) DecrementEditors(ctx context.Context, fileID int64) error {
	query := s.rebind(`UPDATE shared_files SET active_editors = active_editors - 1 WHERE id = ? AND active_editors > 0`)
	res, err := s.db.ExecContext(ctx, query, fileID)
	if err != nil {
		return fmt.Errorf("failed to decrement editors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n > 0 {
		return nil
	}

	// nothing updated: either the counter is already zero or the file is gone
	var one int
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM shared_files WHERE id = ?`), fileID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("file %d: %w", fileID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to select file: %w", err)
	}
	return nil
}

// SetEditors overwrites the persisted editor counter.
func (s *SQLStore) SetEditors(ctx context.Context, fileID int64, n int) error {
	if n < 0 {
		n = 0
	}
	query := s.rebind(`UPDATE shared_files SET active_editors = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, n, fileID)
	if err != nil {
		return fmt.Errorf("failed to set editors: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("file %d: %w", fileID, common.ErrNotFound)
	}
	return nil
}
