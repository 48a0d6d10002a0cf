package cli

import (
	"io"
	"log/slog"

	"github.com/roach88/postd/internal/config"
)

// setupLogging installs the process-wide slog logger. Debug level is
// enabled by --verbose; format is config.LogFormatText or config.LogFormatJSON.
func setupLogging(w io.Writer, format string, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}
