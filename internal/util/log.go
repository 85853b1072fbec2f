package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds a stdout logger at the requested level, falling back to
// info on unknown names.
func NewLogger(level string) zerolog.Logger {
	return newLogger(level, os.Stdout)
}

// NewSessionLogger tees log output to stdout and a per-session log file. The
// returned closer owns the file handle.
func NewSessionLogger(level, path string) (zerolog.Logger, io.Closer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return newLogger(level, zerolog.MultiLevelWriter(os.Stdout, file)), file, nil
}

func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
