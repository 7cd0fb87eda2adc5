// Package schema validates tool arguments against JSON schemas.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// maxReported caps how many schema violations end up in one message.
const maxReported = 3

// Error lists the schema violations found in one document.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	problems := e.Problems
	more := ""
	if len(problems) > maxReported {
		more = fmt.Sprintf(" (and %d more)", len(problems)-maxReported)
		problems = problems[:maxReported]
	}
	return "arguments do not match schema: " + strings.Join(problems, "; ") + more
}

// Validator compiles each distinct schema once and caches it.
type Validator struct {
	cache sync.Map // schema JSON -> *gojsonschema.Schema
}

// NewValidator creates a validator with an empty schema cache.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks args against schemaData, which may be anything that
// marshals to a JSON schema. Empty args are treated as an empty object.
func (v *Validator) Validate(schemaData any, args []byte) error {
	compiled, err := v.compile(schemaData)
	if err != nil {
		return fmt.Errorf("invalid schema definition: %w", err)
	}
	if len(strings.TrimSpace(string(args))) == 0 {
		args = []byte("{}")
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		// Not even JSON.
		return &Error{Problems: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &Error{Problems: problems}
}

func (v *Validator) compile(schemaData any) (*gojsonschema.Schema, error) {
	raw, err := json.Marshal(schemaData)
	if err != nil {
		return nil, err
	}
	key := string(raw)
	if cached, ok := v.cache.Load(key); ok {
		return cached.(*gojsonschema.Schema), nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}
