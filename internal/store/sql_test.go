package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/common"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx, zap.NewNop()))
	return s
}

func seedUser(t *testing.T, s *SQLStore, email string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &User{
		Email:        email,
		PasswordHash: "hash",
		IsApproved:   true,
		Factory:      "North",
		Department:   "QA",
	})
	require.NoError(t, err)
	return u
}

func TestSQLStore_Users(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice := seedUser(t, s, " Alice@Example.com ")
	assert.NotZero(t, alice.ID)
	assert.Equal(t, "alice@example.com", alice.Email)

	byID, err := s.UserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
	assert.True(t, byID.IsApproved)
	assert.False(t, byID.IsAdmin)
	assert.Equal(t, "North", byID.Factory)

	byEmail, err := s.UserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	_, err = s.UserByID(ctx, 999)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLStore_ApproveUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.CreateUser(ctx, &User{Email: "bob@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.False(t, u.IsApproved)

	require.NoError(t, s.ApproveUser(ctx, "bob@example.com"))
	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsApproved)

	assert.ErrorIs(t, s.ApproveUser(ctx, "ghost@example.com"), common.ErrNotFound)
}

func TestSQLStore_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.EnsureAdmin(ctx, "admin@example.com", "h1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureAdmin(ctx, "admin@example.com", "h2")
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := s.UserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.True(t, admin.IsApproved)
	assert.Equal(t, "h1", admin.PasswordHash)
}

func TestSQLStore_Messages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := seedUser(t, s, "alice@example.com")
	bob := seedUser(t, s, "bob@example.com")

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := s.AppendMessage(ctx, "global", bob.ID, "second", base.Add(time.Minute))
	require.NoError(t, err)
	first, err := s.AppendMessage(ctx, "global", alice.ID, "first", base)
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	_, err = s.AppendMessage(ctx, "private_1_2", alice.ID, "psst", base)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, "global")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "alice@example.com", msgs[0].SenderEmail)
	assert.True(t, base.Equal(msgs[0].Timestamp))
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "bob@example.com", msgs[1].SenderEmail)

	empty, err := s.ListMessages(ctx, "nowhere")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSQLStore_FileCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedUser(t, s, "owner@example.com")

	f, err := s.CreateFile(ctx, &SharedFile{
		Filename:     "abc.txt",
		OriginalName: "notes.txt",
		OwnerID:      owner.ID,
		AllowView:    true,
		AllowEdit:    true,
	})
	require.NoError(t, err)
	assert.Zero(t, f.ActiveEditors)

	require.NoError(t, s.IncrementEditors(ctx, f.ID, 2))
	require.NoError(t, s.IncrementEditors(ctx, f.ID, 2))
	err = s.IncrementEditors(ctx, f.ID, 2)
	assert.ErrorIs(t, err, common.ErrEditCapacityExceeded)

	got, err := s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ActiveEditors)
	assert.True(t, got.AllowEdit)
	assert.Equal(t, "notes.txt", got.OriginalName)

	active, err := s.ListActiveFiles(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, f.ID, active[0].ID)

	require.NoError(t, s.DecrementEditors(ctx, f.ID))
	require.NoError(t, s.DecrementEditors(ctx, f.ID))
	require.NoError(t, s.DecrementEditors(ctx, f.ID))
	got, err = s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ActiveEditors)

	require.NoError(t, s.SetEditors(ctx, f.ID, 3))
	got, err = s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ActiveEditors)

	require.NoError(t, s.SetEditors(ctx, f.ID, -4))
	active, err = s.ListActiveFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = s.GetFile(ctx, 404)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, s.SetEditors(ctx, 404, 1), common.ErrNotFound)
	assert.ErrorIs(t, s.DecrementEditors(ctx, 404), common.ErrNotFound)
}

func TestSharedFile_Permissions(t *testing.T) {
	f := &SharedFile{OwnerID: 1}
	assert.True(t, f.CanView(1))
	assert.True(t, f.CanEdit(1))
	assert.False(t, f.CanView(2))
	assert.False(t, f.CanEdit(2))

	f.AllowView = true
	assert.True(t, f.CanView(2))
	assert.False(t, f.CanEdit(2))

	f.AllowEdit = true
	assert.True(t, f.CanEdit(2))
}

func TestRebind(t *testing.T) {
	pg := NewSQLStore(nil, DialectPostgres)
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", pg.rebind("UPDATE t SET a = ? WHERE b = ?"))

	lite := NewSQLStore(nil, DialectSQLite)
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	assert.Error(t, err)
}
