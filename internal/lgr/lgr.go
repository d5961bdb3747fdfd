package lgr

import (
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Setup configures the global logger. With a file, output is duplicated to a
// rotating log next to stderr; the returned closer flushes and closes it.
func Setup(level, file string) (io.Closer, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, xerrors.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})

	if file == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(file), os.ModePerm); err != nil {
		return nil, xerrors.Errorf("create log dir: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	return rotated, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
