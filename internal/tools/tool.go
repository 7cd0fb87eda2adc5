// Package tools is the tool facade: the fixed catalog of named calls a
// language-model runtime may make against the record store.
//
// Every call is decoded into one of a closed set of typed variants,
// validated, run against the store and logged to the analytics sink,
// whether it succeeds or not.
package tools

import (
	"context"

	"github.com/jeanpaul/recall/internal/memory"
)

// Call is one decoded tool invocation. The set of implementations is
// closed: only this package can add variants.
type Call interface {
	ToolName() string
	// User is the normalized user id the call targets.
	User() string
	validate(limits memory.Limits) (Call, error)
}

// GetMemory returns a user's notes and preferences.
type GetMemory struct {
	UserID string `json:"user_id"`
}

type AddNote struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type UpdateNote struct {
	UserID string `json:"user_id"`
	NoteID string `json:"note_id"`
	Text   string `json:"text"`
}

type DeleteNote struct {
	UserID string `json:"user_id"`
	NoteID string `json:"note_id"`
}

type SetPreference struct {
	UserID      string   `json:"user_id"`
	Key         string   `json:"key"`
	Value       string   `json:"value,omitempty"`
	Values      []string `json:"values,omitempty"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
	Description string   `json:"description,omitempty"`
}

// GetPreferences returns all of a user's preferences, or just one when
// Key is set.
type GetPreferences struct {
	UserID string `json:"user_id"`
	Key    string `json:"key,omitempty"`
}

type DeletePreference struct {
	UserID string `json:"user_id"`
	Key    string `json:"key"`
}

type DeleteUser struct {
	UserID string `json:"user_id"`
}

func (c GetMemory) ToolName() string        { return NameGetMemory }
func (c AddNote) ToolName() string          { return NameAddNote }
func (c UpdateNote) ToolName() string       { return NameUpdateNote }
func (c DeleteNote) ToolName() string       { return NameDeleteNote }
func (c SetPreference) ToolName() string    { return NameSetPreference }
func (c GetPreferences) ToolName() string   { return NameGetPreferences }
func (c DeletePreference) ToolName() string { return NameDeletePreference }
func (c DeleteUser) ToolName() string       { return NameDeleteUser }

func (c GetMemory) User() string        { return c.UserID }
func (c AddNote) User() string          { return c.UserID }
func (c UpdateNote) User() string       { return c.UserID }
func (c DeleteNote) User() string       { return c.UserID }
func (c SetPreference) User() string    { return c.UserID }
func (c GetPreferences) User() string   { return c.UserID }
func (c DeletePreference) User() string { return c.UserID }
func (c DeleteUser) User() string       { return c.UserID }

func (c GetMemory) validate(l memory.Limits) (Call, error) {
	var err error
	c.UserID, err = l.UserID(c.UserID)
	return c, err
}

func (c AddNote) validate(l memory.Limits) (Call, error) {
	var err error
	if c.UserID, err = l.UserID(c.UserID); err != nil {
		return nil, err
	}
	if c.Text, err = l.Text("text", c.Text); err != nil {
		return nil, err
	}
	return c, nil
}

func (c UpdateNote) validate(l memory.Limits) (Call, error) {
	var err error
	if c.UserID, err = l.UserID(c.UserID); err != nil {
		return nil, err
	}
	if c.NoteID, err = l.Key("note_id", c.NoteID); err != nil {
		return nil, err
	}
	if c.Text, err = l.Text("text", c.Text); err != nil {
		return nil, err
	}
	return c, nil
}

func (c DeleteNote) validate(l memory.Limits) (Call, error) {
	var err error
	if c.UserID, err = l.UserID(c.UserID); err != nil {
		return nil, err
	}
	if c.NoteID, err = l.Key("note_id", c.NoteID); err != nil {
		return nil, err
	}
	return c, nil
}

func (c SetPreference) validate(l memory.Limits) (Call, error) {
	var err error
	if c.UserID, err = l.UserID(c.UserID); err != nil {
		return nil, err
	}
	pref, err := l.Preference(c.preference())
	if err != nil {
		return nil, err
	}
	c.Key, c.Value, c.Values, c.Description = pref.Key, pref.Value, pref.Values, pref.Description
	return c, nil
}

func (c SetPreference) preference() memory.Preference {
	return memory.Preference{
		Key:         c.Key,
		Value:       c.Value,
		Values:      c.Values,
		MinValue:    c.MinValue,
		MaxValue:    c.MaxValue,
		Description: c.Description,
	}
}

func (c GetPreferences) validate(l memory.Limits) (Call, error) {
	var err error
	if c.UserID, err = l.UserID(c.UserID); err != nil {
		return nil, err
	}
	if c.Key != "" {
		if c.Key, err = l.Key("key", c.Key); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c DeletePreference) validate(l memory.Limits) (Call, error) {
	var err error
	if c.UserID, err = l.UserID(c.UserID); err != nil {
		return nil, err
	}
	if c.Key, err = l.Key("key", c.Key); err != nil {
		return nil, err
	}
	return c, nil
}

func (c DeleteUser) validate(l memory.Limits) (Call, error) {
	var err error
	c.UserID, err = l.UserID(c.UserID)
	return c, err
}

// execute runs c against store. The switch covers every variant.
func execute(ctx context.Context, store memory.Store, c Call) (any, error) {
	switch c := c.(type) {
	case GetMemory:
		return store.GetMemory(ctx, c.UserID)
	case AddNote:
		return store.AddNote(ctx, c.UserID, c.Text)
	case UpdateNote:
		return store.UpdateNote(ctx, c.UserID, c.NoteID, c.Text)
	case DeleteNote:
		if err := store.DeleteNote(ctx, c.UserID, c.NoteID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": true, "note_id": c.NoteID}, nil
	case SetPreference:
		return store.SetPreference(ctx, c.UserID, c.preference())
	case GetPreferences:
		if c.Key != "" {
			return store.GetPreference(ctx, c.UserID, c.Key)
		}
		prefs, err := store.GetPreferences(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"user_id": c.UserID, "travel_preferences": prefs}, nil
	case DeletePreference:
		if err := store.DeletePreference(ctx, c.UserID, c.Key); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": true, "key": c.Key}, nil
	case DeleteUser:
		existed, err := store.DeleteUser(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deleted": existed, "user_id": c.UserID}, nil
	default:
		return nil, &Error{Kind: KindInternal, Message: "unhandled tool " + c.ToolName()}
	}
}
