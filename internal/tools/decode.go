package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeanpaul/recall/internal/memory"
	"github.com/jeanpaul/recall/internal/schema"
)

// Decoder turns a tool name and raw JSON arguments into a validated Call.
type Decoder struct {
	validator *schema.Validator
	limits    memory.Limits
}

// NewDecoder creates a decoder that enforces limits after schema validation.
func NewDecoder(limits memory.Limits) *Decoder {
	return &Decoder{validator: schema.NewValidator(), limits: limits}
}

// Decode checks args against the tool's JSON schema, unmarshals them into
// the tool's variant and applies the variant's validation. Every failure
// is a validation error.
func (d *Decoder) Decode(name string, args []byte) (Call, error) {
	def, ok := Lookup(name)
	if !ok {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown tool %q", name)}
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = []byte("{}")
	}
	if err := d.validator.Validate(def.Parameters, args); err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}
	call, err := def.decode(args)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "invalid arguments: " + err.Error()}
	}
	call, err = call.validate(d.limits)
	if err != nil {
		return nil, translate(err)
	}
	return call, nil
}

func decodeInto[T Call](data []byte) (Call, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after arguments")
	}
	return v, nil
}
