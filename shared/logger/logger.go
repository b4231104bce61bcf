package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger

func init() {
	Initialize("info", false)
}

// Initialize points the global logger at stderr. Stdout is left to command
// output such as the JSON printed by the CLI.
func Initialize(level string, useJSON bool) {
	InitializeTo(os.Stderr, level, useJSON)
}

func InitializeTo(w io.Writer, level string, useJSON bool) {
	opts := &slog.HandlerOptions{Level: parseLevel(level), AddSource: true}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if useJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	Log = slog.New(h).With("app", "itforum")
	slog.SetDefault(Log)
}

// parseLevel accepts slog level names ("debug", "WARN", "error+2") plus
// "warning". Anything else is info.
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
