// Package logging builds the zerolog.Logger instances segment and executor
// types hold directly as a Logger field, the same way internal/store's
// Dataset does — not through a wrapper type.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger for component (e.g. a segment id, "executor")
// writing JSON to stderr with a timestamp, whether or not stderr is a
// terminal. Console builds the human-readable variant.
func New(component string) zerolog.Logger {
	return zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Discard returns a Logger that drops every event, for tests and benches
// that don't want log noise, grounded on internal/store/test_utils_test.go.
func Discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// Console returns a human-readable console Logger for component, used by
// cmd/segcore-bench the way internal/store's bench tests set one up.
func Console(component string) zerolog.Logger {
	return zerolog.New(zerolog.NewConsoleWriter()).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
