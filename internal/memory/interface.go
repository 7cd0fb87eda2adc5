// Package memory is the record store: one JSON document holding every
// user's notes and travel preferences, shared safely between goroutines
// and processes.
//
// Each mutation takes the document-wide exclusive lock, loads the whole
// document, applies the change and atomically replaces the file. Reads take
// the shared lock. There is no in-process cache of the document. Locking the
// whole document instead of single users keeps the protocol simple and is
// the store's main scalability ceiling.
package memory

import "context"

// Store defines the record store operations used by the tool layer.
type Store interface {
	// GetMemory returns the user's record, or an empty record if the user
	// has never written anything. Absence is not an error.
	GetMemory(ctx context.Context, userID string) (Record, error)

	// AddNote appends a note with a fresh id and creation time.
	AddNote(ctx context.Context, userID, text string) (Note, error)

	// UpdateNote replaces a note's text, keeping CreatedAt and setting UpdatedAt.
	UpdateNote(ctx context.Context, userID, noteID, text string) (Note, error)

	// DeleteNote removes a note. Deleting a missing note is ErrNotFound.
	DeleteNote(ctx context.Context, userID, noteID string) error

	SetPreference(ctx context.Context, userID string, pref Preference) (Preference, error)
	GetPreferences(ctx context.Context, userID string) (map[string]Preference, error)
	GetPreference(ctx context.Context, userID, key string) (Preference, error)
	DeletePreference(ctx context.Context, userID, key string) error

	// DeleteUser removes the user's whole record. Unlike note and
	// preference deletes it succeeds for unknown users; existed reports
	// whether anything was removed.
	DeleteUser(ctx context.Context, userID string) (existed bool, err error)

	// ListUsers returns per-user counts with user ids redacted.
	ListUsers(ctx context.Context) ([]UserSummary, error)
}
