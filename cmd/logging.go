package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var (
	logLevelMap = map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	// PDFMERGE_CACHE_TTL for cache.ttl, PDFMERGE_MAX_UPLOAD_BYTES for
	// max_upload_bytes.
	envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")
)

// initLogging installs the default slog logger.
func initLogging(level, format string, w io.Writer) error {
	lvl, ok := logLevelMap[strings.ToLower(level)]
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
