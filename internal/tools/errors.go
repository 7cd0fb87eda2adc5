package tools

import (
	"errors"
	"fmt"

	"github.com/jeanpaul/recall/internal/memory"
)

// Error kinds as they appear in tool results.
const (
	KindValidation  = string(memory.KindValidation)
	KindNotFound    = string(memory.KindNotFound)
	KindLockTimeout = string(memory.KindLockTimeout)
	KindCorruption  = string(memory.KindCorruption)
	KindCanceled    = string(memory.KindCanceled)
	KindInternal    = string(memory.KindInternal)
)

// Error is the typed failure carried in a tool result.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Retryable reports whether the caller may retry the same call later.
func (e *Error) Retryable() bool { return e.Kind == KindLockTimeout }

// translate maps any store error to a tool error. Internal failures keep
// their detail out of the message; the facade logs the original.
func translate(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	kind := memory.KindOf(err)
	msg := "internal error"
	var me *memory.Error
	switch {
	case kind == memory.KindInternal:
	case kind == memory.KindCanceled && !errors.As(err, &me):
		msg = "call canceled before completion"
	case errors.As(err, &me) && me.Message != "":
		msg = me.Message
	default:
		msg = err.Error()
	}
	return &Error{Kind: string(kind), Message: msg}
}
