package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/framelens/internal/config"
)

// newLogger builds the process logger. Logs go to a size-rotated file when
// log_file is set and to stderr otherwise. The level is read from level on
// every record so that hot reloads take effect immediately.
func newLogger(sc config.ServerConfig, level *slog.LevelVar) (*slog.Logger, io.Closer) {
	level.Set(sc.LogLevel.SlogLevel())

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if sc.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   sc.LogFile,
			MaxSize:    64, // MB
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		w, closer = lj, lj
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
