package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction. The zero value gives an info-level
// console logger on stdout.
type Options struct {
	Level  string    // trace, debug, info, warn, error (default info)
	Format string    // "console" or "json"
	Out    io.Writer // defaults to os.Stdout
}

// NewLogger returns a zerolog logger configured from opts.
func NewLogger(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	zerolog.CallerMarshalFunc = shortCaller

	var w io.Writer = out
	if opts.Format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}

// shortCaller trims the caller down to file:line, padded for alignment.
func shortCaller(pc uintptr, file string, line int) string {
	short := file
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		short = file[i+1:]
	}
	return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", short, line))
}
