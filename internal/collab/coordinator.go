// Package collab coordinates collaborative editing of shared files.
//
// The Coordinator owns the set of live editors per file and keeps the
// persisted active_editors counter of every file in line with it. Joins are
// admitted up to a fixed capacity, edits are relayed to the other members of
// the file's edit room, and a periodic sweep repairs counters left behind by
// sessions that ended without leaving.
package collab

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/events"
	"github.com/Tyrowin/officechat/internal/metrics"
	"github.com/Tyrowin/officechat/internal/store"
)

const editRoomPrefix = "edit_"

// EditRoomName returns the broadcast room of a file's edit session.
func EditRoomName(fileID int64) string {
	return editRoomPrefix + strconv.FormatInt(fileID, 10)
}

// Editor identifies a session taking part in an edit session.
type Editor struct {
	SessionID string
	UserID    int64
	Email     string
}

// Rooms is the room broadcaster the Coordinator publishes through.
type Rooms interface {
	// JoinRoom adds a session to a room and reports false when the session is
	// no longer connected.
	JoinRoom(sessionID, room string) bool
	LeaveRoom(sessionID, room string)
	// Broadcast delivers payload to every member of room except exclude.
	Broadcast(room string, payload []byte, exclude string)
}

// Files is the subset of the document store used for edit bookkeeping.
type Files interface {
	GetFile(ctx context.Context, id int64) (*store.SharedFile, error)
	ListActiveFiles(ctx context.Context) ([]*store.SharedFile, error)
	IncrementEditors(ctx context.Context, fileID int64, capacity int) error
	DecrementEditors(ctx context.Context, fileID int64) error
	SetEditors(ctx context.Context, fileID int64, n int) error
}

// Options tunes a Coordinator.
type Options struct {
	Capacity          int
	ReconcileInterval time.Duration
	Clock             clock.Clock
	Logger            *zap.Logger
	Metrics           *metrics.Metrics
}

// Coordinator serializes every edit-session transition behind one mutex,
// held across the persistence calls of that transition.
type Coordinator struct {
	files    Files
	rooms    Rooms
	capacity int
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	editors   map[int64]map[string]Editor
	bySession map[string]map[int64]struct{}
}

// NewCoordinator builds a Coordinator. Zero options fall back to a capacity
// of 5, a 30s sweep and the wall clock.
func NewCoordinator(files Files, rooms Rooms, opts Options) *Coordinator {
	if opts.Capacity <= 0 {
		opts.Capacity = 5
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Coordinator{
		files:     files,
		rooms:     rooms,
		capacity:  opts.Capacity,
		interval:  opts.ReconcileInterval,
		clock:     opts.Clock,
		logger:    opts.Logger.Named("collab"),
		metrics:   opts.Metrics,
		editors:   make(map[int64]map[string]Editor),
		bySession: make(map[string]map[int64]struct{}),
	}
}

// Capacity returns the per-file editor limit.
func (c *Coordinator) Capacity() int {
	return c.capacity
}

// RequestJoin admits ed as an editor of fileID.
func (c *Coordinator) RequestJoin(ctx context.Context, fileID int64, ed Editor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.loadFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !f.CanEdit(ed.UserID) {
		return fmt.Errorf("edit file %d: %w", fileID, common.ErrPermissionDenied)
	}
	if c.isEditorLocked(fileID, ed.SessionID) {
		return nil
	}

	live := len(c.editors[fileID])
	if f.ActiveEditors != live {
		c.logger.Info("reconciling editor counter",
			zap.Int64("file_id", fileID),
			zap.Int("persisted", f.ActiveEditors),
			zap.Int("live", live),
		)
		if err := c.files.SetEditors(ctx, fileID, live); err != nil {
			return fmt.Errorf("%w: reconcile file %d: %w", common.ErrPersistenceFailure, fileID, err)
		}
	}
	if live >= c.capacity {
		return fmt.Errorf("file %d has %d editors: %w", fileID, live, common.ErrEditCapacityExceeded)
	}

	if err := c.files.IncrementEditors(ctx, fileID, c.capacity); err != nil {
		if errors.Is(err, common.ErrEditCapacityExceeded) {
			return err
		}
		return fmt.Errorf("%w: increment editors of file %d: %w", common.ErrPersistenceFailure, fileID, err)
	}

	room := EditRoomName(fileID)
	if !c.rooms.JoinRoom(ed.SessionID, room) {
		if err := c.files.DecrementEditors(ctx, fileID); err != nil {
			c.logger.Warn("failed to roll back editor counter", zap.Int64("file_id", fileID), zap.Error(err))
		}
		return fmt.Errorf("join edit room %s: %w", room, common.ErrSessionClosed)
	}

	c.addLocked(fileID, ed)
	c.rooms.Broadcast(room, events.System(room, ed.Email+" joined editing"), "")
	c.logger.Debug("editor joined",
		zap.Int64("file_id", fileID),
		zap.Int64("user_id", ed.UserID),
		zap.Int("editors", len(c.editors[fileID])),
	)
	return nil
}

// RequestLeave removes ed from the editors of fileID. It is a no-op when the
// session is not editing the file.
func (c *Coordinator) RequestLeave(ctx context.Context, fileID int64, ed Editor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isEditorLocked(fileID, ed.SessionID) {
		return nil
	}
	err := c.files.DecrementEditors(ctx, fileID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		c.logger.Info("editor left a file that no longer exists", zap.Int64("file_id", fileID))
	case err != nil:
		return fmt.Errorf("%w: decrement editors of file %d: %w", common.ErrPersistenceFailure, fileID, err)
	}
	c.leaveLocked(fileID, ed)
	return nil
}

// RelayChange forwards the full buffer content to every other editor of the
// file. The sender must currently be editing it.
// The file is read outside the coordinator lock.
func (c *Coordinator) RelayChange(ctx context.Context, fileID int64, ed Editor, content string) error {
	f, err := c.loadFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !f.CanEdit(ed.UserID) {
		return fmt.Errorf("change file %d: %w", fileID, common.ErrPermissionDenied)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isEditorLocked(fileID, ed.SessionID) {
		return fmt.Errorf("change file %d: %w", fileID, common.ErrPermissionDenied)
	}
	c.rooms.Broadcast(EditRoomName(fileID), events.TextChangeFrame(fileID, content, ed.UserID, ed.Email), ed.SessionID)
	return nil
}

// ReleaseSession removes the session from every file it edits. Counter
// updates that fail are logged and the file is reconciled instead.
func (c *Coordinator) ReleaseSession(ctx context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held := c.bySession[sessionID]
	if len(held) == 0 {
		return
	}
	fileIDs := make([]int64, 0, len(held))
	for id := range held {
		fileIDs = append(fileIDs, id)
	}
	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	for _, fileID := range fileIDs {
		ed := c.editors[fileID][sessionID]
		decErr := c.files.DecrementEditors(ctx, fileID)
		c.leaveLocked(fileID, ed)
		if decErr != nil {
			c.logger.Warn("failed to decrement editors on disconnect",
				zap.Int64("file_id", fileID),
				zap.String("session_id", sessionID),
				zap.Error(decErr),
			)
			if err := c.reconcileLocked(ctx, fileID); err != nil {
				c.logger.Warn("reconcile after disconnect failed", zap.Int64("file_id", fileID), zap.Error(err))
			}
		}
	}
}

// Sweep reconciles every file that is either persisted as active or has live
// editors. Errors for individual files are logged and the sweep continues.
func (c *Coordinator) Sweep(ctx context.Context) error {
	active, err := c.files.ListActiveFiles(ctx)
	if err != nil {
		return fmt.Errorf("%w: list active files: %w", common.ErrPersistenceFailure, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	targets := make(map[int64]struct{}, len(active)+len(c.editors))
	for _, f := range active {
		if f.ActiveEditors != len(c.editors[f.ID]) {
			targets[f.ID] = struct{}{}
		}
	}
	for fileID := range c.editors {
		targets[fileID] = struct{}{}
	}
	for fileID := range targets {
		if err := c.reconcileLocked(ctx, fileID); err != nil {
			c.logger.Warn("sweep failed to reconcile file", zap.Int64("file_id", fileID), zap.Error(err))
		}
	}
	return nil
}

// Run sweeps immediately and then on every reconcile interval until ctx is
// cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := c.clock.Ticker(c.interval)
	defer ticker.Stop()

	c.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweepAndLog(ctx)
		}
	}
}

func (c *Coordinator) sweepAndLog(ctx context.Context) {
	if err := c.Sweep(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("editor sweep failed", zap.Error(err))
	}
}

// EditorCount returns the number of live editors of fileID.
func (c *Coordinator) EditorCount(fileID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.editors[fileID])
}

// isEditing reports whether the session is a live editor of fileID.
func (c *Coordinator) isEditing(fileID int64, sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isEditorLocked(fileID, sessionID)
}

func (c *Coordinator) loadFile(ctx context.Context, fileID int64) (*store.SharedFile, error) {
	f, err := c.files.GetFile(ctx, fileID)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: load file %d: %w", common.ErrPersistenceFailure, fileID, err)
}

func (c *Coordinator) reconcileLocked(ctx context.Context, fileID int64) error {
	live := len(c.editors[fileID])
	if err := c.files.SetEditors(ctx, fileID, live); err != nil {
		return fmt.Errorf("%w: reconcile file %d: %w", common.ErrPersistenceFailure, fileID, err)
	}
	c.metrics.SetActiveEditors(fileID, live)
	return nil
}

func (c *Coordinator) isEditorLocked(fileID int64, sessionID string) bool {
	_, ok := c.editors[fileID][sessionID]
	return ok
}

func (c *Coordinator) addLocked(fileID int64, ed Editor) {
	if c.editors[fileID] == nil {
		c.editors[fileID] = make(map[string]Editor)
	}
	c.editors[fileID][ed.SessionID] = ed
	if c.bySession[ed.SessionID] == nil {
		c.bySession[ed.SessionID] = make(map[int64]struct{})
	}
	c.bySession[ed.SessionID][fileID] = struct{}{}
	c.metrics.SetActiveEditors(fileID, len(c.editors[fileID]))
}

func (c *Coordinator) leaveLocked(fileID int64, ed Editor) {
	delete(c.editors[fileID], ed.SessionID)
	if len(c.editors[fileID]) == 0 {
		delete(c.editors, fileID)
	}
	delete(c.bySession[ed.SessionID], fileID)
	if len(c.bySession[ed.SessionID]) == 0 {
		delete(c.bySession, ed.SessionID)
	}
	c.metrics.SetActiveEditors(fileID, len(c.editors[fileID]))

	room := EditRoomName(fileID)
	c.rooms.LeaveRoom(ed.SessionID, room)
	c.rooms.Broadcast(room, events.System(room, ed.Email+" left editing"), "")
}
