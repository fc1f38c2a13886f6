package store

import "time"

// User is an account known to the identity store.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsApproved   bool
	Factory      string
	Department   string
	CreatedAt    time.Time
}

// SharedFile is the metadata of an uploaded file that can be edited
// collaboratively. ActiveEditors is the persisted editor counter.
type SharedFile struct {
	ID            int64
	Filename      string
	OriginalName  string
	OwnerID       int64
	AllowView     bool
	AllowEdit     bool
	ActiveEditors int
	UploadedAt    time.Time
}

// CanView reports whether userID may open the file.
func (f *SharedFile) CanView(userID int64) bool {
	return f.AllowView || f.OwnerID == userID
}

// CanEdit reports whether userID may edit the file.
func (f *SharedFile) CanEdit(userID int64) bool {
	return f.AllowEdit || f.OwnerID == userID
}

// ChatMessage is a persisted chat message. SenderEmail is only populated by
// history queries.
type ChatMessage struct {
	ID          int64
	Content     string
	SenderID    int64
	SenderEmail string
	Room        string
	Timestamp   time.Time
}
