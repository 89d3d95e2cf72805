package store

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the package-level logger. It defaults to a human-readable
// console writer on stderr; embedders that already run zerolog
// elsewhere should replace it with SetLogger so engine events land in
// the same sink as the rest of the process.
var Log zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
	With().Timestamp().Str("component", "store").Logger()

// SetLogger overrides the package-level logger used by the allocator
// (corruption that poisons it) and the buffered file (commit-log
// recovery on open).
func SetLogger(l zerolog.Logger) {
	Log = l
}
