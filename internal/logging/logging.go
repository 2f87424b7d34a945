// Package logging builds the process logger from the log section of
// tuning.yaml.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"aralia.dev/internal/sim/tuning"
)

// New returns a logger writing text to console and, when cfg.File is set,
// JSON lines to a rotated file. A relative File is placed under dataDir.
// The returned closer flushes the rotated file and is never nil.
func New(cfg tuning.LogTuning, dataDir string, console io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if console == nil {
		console = os.Stderr
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(console)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.File == "" {
		return log, nopCloser{}, nil
	}
	path := cfg.File
	if !filepath.IsAbs(path) && dataDir != "" {
		path = filepath.Join(dataDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.AddHook(&fileHook{w: rot, formatter: &logrus.JSONFormatter{}, levels: logrus.AllLevels[:level+1]})
	return log, rot, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fileHook mirrors entries to a second writer with its own formatter.
type fileHook struct {
	w         io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
}

func (h *fileHook) Levels() []logrus.Level { return h.levels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(b)
	return err
}
