package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noteSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"user_id": map[string]any{"type": "string", "minLength": 1},
		"text":    map[string]any{"type": "string"},
	},
	"required":             []string{"user_id", "text"},
	"additionalProperties": false,
}

func TestValidateAcceptsMatchingArgs(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(noteSchema, []byte(`{"user_id":"alice","text":"hi"}`)))
}

func TestValidateReportsProblems(t *testing.T) {
	v := NewValidator()

	err := v.Validate(noteSchema, []byte(`{"user_id":"","extra":1}`))
	require.Error(t, err)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.GreaterOrEqual(t, len(se.Problems), 2)
	assert.Contains(t, err.Error(), "text")
}

func TestValidateEmptyArgsIsEmptyObject(t *testing.T) {
	v := NewValidator()
	err := v.Validate(noteSchema, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_id")
}

func TestValidateRejectsNonJSON(t *testing.T) {
	v := NewValidator()
	err := v.Validate(noteSchema, []byte(`{user_id: alice`))
	var se *Error
	assert.True(t, errors.As(err, &se))
}

func TestValidateCachesCompiledSchema(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Validate(noteSchema, []byte(`{"user_id":"a","text":"b"}`)))
	require.NoError(t, v.Validate(noteSchema, []byte(`{"user_id":"c","text":"d"}`)))

	n := 0
	v.cache.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, 1, n)
}

func TestErrorTruncatesLongLists(t *testing.T) {
	e := &Error{Problems: []string{"a", "b", "c", "d", "e"}}
	assert.Equal(t, "arguments do not match schema: a; b; c (and 2 more)", e.Error())
}
