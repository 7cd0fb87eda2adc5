package memory

import (
	"context"
	"sort"
)

func (s *FileStore) GetMemory(ctx context.Context, userID string) (Record, error) {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return Record{}, err
	}
	rec := emptyRecord(userID)
	err = s.view(ctx, func(doc *Document) error {
		if stored, ok := doc.Users[userID]; ok {
			rec = stored.clone()
		}
		return nil
	})
	return rec, err
}

func (s *FileStore) AddNote(ctx context.Context, userID, text string) (Note, error) {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return Note{}, err
	}
	if text, err = s.limits.Text("text", text); err != nil {
		return Note{}, err
	}

	var note Note
	err = s.mutate(ctx, func(doc *Document) error {
		rec := doc.record(userID)
		note = Note{ID: s.newID(), Text: text, CreatedAt: s.now()}
		rec.GeneralMemory = append(rec.GeneralMemory, note)
		doc.Users[userID] = rec
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

func (s *FileStore) UpdateNote(ctx context.Context, userID, noteID, text string) (Note, error) {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return Note{}, err
	}
	if noteID, err = s.limits.Key("note_id", noteID); err != nil {
		return Note{}, err
	}
	if text, err = s.limits.Text("text", text); err != nil {
		return Note{}, err
	}

	var note Note
	err = s.mutate(ctx, func(doc *Document) error {
		rec, ok := doc.Users[userID]
		i := rec.noteIndex(noteID)
		if !ok || i < 0 {
			return notFoundErrorf("note %q not found", noteID)
		}
		updated := s.now()
		rec.GeneralMemory[i].Text = text
		rec.GeneralMemory[i].UpdatedAt = &updated
		note = rec.GeneralMemory[i]
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

func (s *FileStore) DeleteNote(ctx context.Context, userID, noteID string) error {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return err
	}
	if noteID, err = s.limits.Key("note_id", noteID); err != nil {
		return err
	}
	return s.mutate(ctx, func(doc *Document) error {
		rec, ok := doc.Users[userID]
		i := rec.noteIndex(noteID)
		if !ok || i < 0 {
			return notFoundErrorf("note %q not found", noteID)
		}
		rec.GeneralMemory = append(rec.GeneralMemory[:i], rec.GeneralMemory[i+1:]...)
		doc.Users[userID] = rec
		return nil
	})
}

// SetPreference creates or replaces a preference. Replacing keeps the
// original CreatedAt.
func (s *FileStore) SetPreference(ctx context.Context, userID string, pref Preference) (Preference, error) {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return Preference{}, err
	}
	if pref, err = s.limits.Preference(pref); err != nil {
		return Preference{}, err
	}

	err = s.mutate(ctx, func(doc *Document) error {
		rec := doc.record(userID)
		now := s.now()
		pref.CreatedAt, pref.UpdatedAt = now, now
		if prev, ok := rec.TravelPreferences[pref.Key]; ok {
			pref.CreatedAt = prev.CreatedAt
		}
		rec.TravelPreferences[pref.Key] = pref
		return nil
	})
	if err != nil {
		return Preference{}, err
	}
	return pref, nil
}

func (s *FileStore) GetPreferences(ctx context.Context, userID string) (map[string]Preference, error) {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return nil, err
	}
	prefs := map[string]Preference{}
	err = s.view(ctx, func(doc *Document) error {
		for k, v := range doc.Users[userID].TravelPreferences {
			prefs[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *FileStore) GetPreference(ctx context.Context, userID, key string) (Preference, error) {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return Preference{}, err
	}
	if key, err = s.limits.Key("key", key); err != nil {
		return Preference{}, err
	}
	var pref Preference
	err = s.view(ctx, func(doc *Document) error {
		p, ok := doc.Users[userID].TravelPreferences[key]
		if !ok {
			return notFoundErrorf("preference %q not found", key)
		}
		pref = p
		return nil
	})
	return pref, err
}

func (s *FileStore) DeletePreference(ctx context.Context, userID, key string) error {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return err
	}
	if key, err = s.limits.Key("key", key); err != nil {
		return err
	}
	return s.mutate(ctx, func(doc *Document) error {
		rec, ok := doc.Users[userID]
		if _, exists := rec.TravelPreferences[key]; !ok || !exists {
			return notFoundErrorf("preference %q not found", key)
		}
		delete(rec.TravelPreferences, key)
		return nil
	})
}

func (s *FileStore) DeleteUser(ctx context.Context, userID string) (bool, error) {
	userID, err := s.limits.UserID(userID)
	if err != nil {
		return false, err
	}
	var existed bool
	err = s.mutate(ctx, func(doc *Document) error {
		_, existed = doc.Users[userID]
		delete(doc.Users, userID)
		return nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

func (s *FileStore) ListUsers(ctx context.Context) ([]UserSummary, error) {
	var users []UserSummary
	err := s.view(ctx, func(doc *Document) error {
		users = make([]UserSummary, 0, len(doc.Users))
		for id, rec := range doc.Users {
			users = append(users, UserSummary{
				UserRef:         redactUserID(id),
				NoteCount:       len(rec.GeneralMemory),
				PreferenceCount: len(rec.TravelPreferences),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserRef < users[j].UserRef })
	return users, nil
}
