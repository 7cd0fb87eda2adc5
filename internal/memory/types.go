package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocumentVersion is the on-disk schema version written by this package.
const DocumentVersion = 1

// Note is one free-text entry in a user's general memory.
// UpdatedAt stays nil until the note is first edited; CreatedAt never changes.
type Note struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Preference is a travel preference. At least one of Value, Values,
// MinValue or MaxValue is set.
type Preference struct {
	Key         string    `json:"key"`
	Value       string    `json:"value,omitempty"`
	Values      []string  `json:"values,omitempty"`
	MinValue    *float64  `json:"min_value,omitempty"`
	MaxValue    *float64  `json:"max_value,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Record is everything stored for one user.
type Record struct {
	UserID            string                `json:"user_id"`
	GeneralMemory     []Note                `json:"general_memory"`
	TravelPreferences map[string]Preference `json:"travel_preferences"`
}

func emptyRecord(userID string) Record {
	return Record{
		UserID:            userID,
		GeneralMemory:     []Note{},
		TravelPreferences: map[string]Preference{},
	}
}

func (r Record) noteIndex(id string) int {
	for i, n := range r.GeneralMemory {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (r Record) clone() Record {
	out := emptyRecord(r.UserID)
	out.GeneralMemory = append(out.GeneralMemory, r.GeneralMemory...)
	for k, v := range r.TravelPreferences {
		out.TravelPreferences[k] = v
	}
	return out
}

// Document is the whole on-disk store.
type Document struct {
	Version int               `json:"version"`
	Users   map[string]Record `json:"users"`
}

func newDocument() *Document {
	return &Document{Version: DocumentVersion, Users: map[string]Record{}}
}

// record returns the user's record, creating it in the document if absent.
func (d *Document) record(userID string) Record {
	rec, ok := d.Users[userID]
	if !ok {
		rec = emptyRecord(userID)
		d.Users[userID] = rec
	}
	return rec
}

// UserSummary is the redacted per-user view returned by ListUsers.
type UserSummary struct {
	UserRef         string `json:"user_ref"`
	NoteCount       int    `json:"note_count"`
	PreferenceCount int    `json:"preference_count"`
}

// DocumentStats describes a successfully parsed document.
type DocumentStats struct {
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size_bytes"`
	Users       int    `json:"users"`
	Notes       int    `json:"notes"`
	Preferences int    `json:"preferences"`
}

// redactUserID keeps user ids out of listings while keeping rows distinct.
func redactUserID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "u_" + hex.EncodeToString(sum[:4])
}
