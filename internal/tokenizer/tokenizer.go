// Package tokenizer estimates the token cost of tool arguments and results.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the encoding used by current OpenAI chat models.
const DefaultEncoding = "cl100k_base"

// Counter returns the number of tokens in text.
type Counter func(text string) int

// Approx is the conservative len/4 estimate used when no encoding is
// available.
func Approx(text string) int {
	if text == "" {
		return 0
	}
	if n := len(text) / 4; n > 0 {
		return n
	}
	return 1
}

// Tiktoken returns a Counter backed by the named BPE encoding. The
// encoding loads on first use; if it cannot be loaded the counter falls
// back to Approx for the life of the process.
func Tiktoken(encoding string) Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		if text == "" {
			return 0
		}
		once.Do(func() {
			e, err := tiktoken.GetEncoding(encoding)
			if err == nil {
				enc = e
			}
		})
		if enc == nil {
			return Approx(text)
		}
		return len(enc.Encode(text, nil, nil))
	}
}

// ByName picks a counter from configuration: "approx" or "tiktoken".
func ByName(name, encoding string) Counter {
	if name == "approx" {
		return Approx
	}
	return Tiktoken(encoding)
}
