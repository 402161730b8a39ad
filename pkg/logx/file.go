package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the name of the rotated log file inside the log directory.
const LogFileName = "devagent.log"

// InitializeLogFile routes all logger output into a size-rotated file under dir.
// With tee set, lines are written to stderr as well. The returned closer restores
// stderr-only output and closes the file.
func InitializeLogFile(dir string, maxSizeMB int, tee bool) (io.Closer, error) {
	if dir == "" {
		return nil, fmt.Errorf("log directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, LogFileName),
		MaxSize:    maxSizeMB, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	var w io.Writer = logFile
	if tee {
		w = io.MultiWriter(os.Stderr, logFile)
	}
	SetOutput(w)

	return closerFunc(func() error {
		SetOutput(nil)
		return logFile.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
