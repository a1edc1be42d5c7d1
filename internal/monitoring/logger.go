// Package monitoring holds the daemon's diagnostic logging hooks.
package monitoring

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// InitFileLogging tees the standard logger into a size-rotated file under
// logDir in addition to stderr. It returns a closer for the rotated file.
func InitFileLogging(logDir string) (io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "radarcam.log"),
		MaxSize:    1, // megabytes
		MaxBackups: 5,
	}

	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator, nil
}
