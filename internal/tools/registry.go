package tools

import "encoding/json"

const (
	NameGetMemory        = "get_memory"
	NameAddNote          = "add_note"
	NameUpdateNote       = "update_note"
	NameDeleteNote       = "delete_note"
	NameSetPreference    = "set_preference"
	NameGetPreferences   = "get_preferences"
	NameDeletePreference = "delete_preference"
	NameDeleteUser       = "delete_user"
)

// Definition describes one catalog entry to a tool-calling client.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`

	decode func(data []byte) (Call, error)
}

// SchemaJSON returns Parameters encoded as JSON.
func (d Definition) SchemaJSON() json.RawMessage {
	data, _ := json.Marshal(d.Parameters)
	return data
}

func userIDProp() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Identifier of the user whose memory is accessed. Letters, digits, '_' and '-'.",
		"minLength":   1,
		"maxLength":   100,
	}
}

func keyProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "minLength": 1, "maxLength": 128}
}

func textProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "minLength": 1}
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// catalog is fixed at compile time; order is the order clients see.
var catalog = []Definition{
	{
		Name:        NameGetMemory,
		Description: "Return everything remembered about a user: general notes and travel preferences. Unknown users get an empty record.",
		Parameters:  object(map[string]any{"user_id": userIDProp()}, "user_id"),
		decode:      decodeInto[GetMemory],
	},
	{
		Name:        NameAddNote,
		Description: "Remember a free-text note about the user. Returns the note with its generated id.",
		Parameters: object(map[string]any{
			"user_id": userIDProp(),
			"text":    textProp("The note to remember."),
		}, "user_id", "text"),
		decode: decodeInto[AddNote],
	},
	{
		Name:        NameUpdateNote,
		Description: "Replace the text of an existing note. Fails with not_found if the note does not exist.",
		Parameters: object(map[string]any{
			"user_id": userIDProp(),
			"note_id": keyProp("Id returned when the note was added."),
			"text":    textProp("The new note text."),
		}, "user_id", "note_id", "text"),
		decode: decodeInto[UpdateNote],
	},
	{
		Name:        NameDeleteNote,
		Description: "Forget one note. Fails with not_found if the note does not exist.",
		Parameters: object(map[string]any{
			"user_id": userIDProp(),
			"note_id": keyProp("Id of the note to delete."),
		}, "user_id", "note_id"),
		decode: decodeInto[DeleteNote],
	},
	{
		Name:        NameSetPreference,
		Description: "Create or replace a travel preference such as seat, budget or preferred airlines. Give a value, a list of values, or a numeric range.",
		Parameters: object(map[string]any{
			"user_id": userIDProp(),
			"key":     keyProp("Preference name, e.g. seat or budget."),
			"value":   map[string]any{"type": "string", "description": "Single preference value."},
			"values": map[string]any{
				"type":        "array",
				"description": "Several values, e.g. preferred airlines.",
				"items":       map[string]any{"type": "string"},
			},
			"min_value":   map[string]any{"type": "number", "description": "Lower bound of a numeric range."},
			"max_value":   map[string]any{"type": "number", "description": "Upper bound of a numeric range."},
			"description": map[string]any{"type": "string", "description": "Optional explanation of the preference."},
		}, "user_id", "key"),
		decode: decodeInto[SetPreference],
	},
	{
		Name:        NameGetPreferences,
		Description: "Return the user's travel preferences, or a single one when key is given.",
		Parameters: object(map[string]any{
			"user_id": userIDProp(),
			"key":     keyProp("Optional preference to fetch."),
		}, "user_id"),
		decode: decodeInto[GetPreferences],
	},
	{
		Name:        NameDeletePreference,
		Description: "Forget one travel preference. Fails with not_found if it does not exist.",
		Parameters: object(map[string]any{
			"user_id": userIDProp(),
			"key":     keyProp("Preference to delete."),
		}, "user_id", "key"),
		decode: decodeInto[DeletePreference],
	},
	{
		Name:        NameDeleteUser,
		Description: "Forget everything about a user. Succeeds even if nothing was stored.",
		Parameters:  object(map[string]any{"user_id": userIDProp()}, "user_id"),
		decode:      decodeInto[DeleteUser],
	},
}

// Definitions returns the catalog in its fixed order.
func Definitions() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a catalog entry by name.
func Lookup(name string) (Definition, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}
