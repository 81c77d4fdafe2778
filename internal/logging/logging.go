// Package logging wires up the daemons' structured logger: console output
// plus an optional rotating file sink, both fed through a single logrus
// logger so every log line carries the same JSON formatting and fields.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// MultiWriter fans writes out to every added writer.
type MultiWriter struct {
	writers []io.Writer
}

// NewMultiWriter returns an empty MultiWriter.
func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	var firstErr error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

// Add appends a writer to the fan-out set.
func (m *MultiWriter) Add(w io.Writer) *MultiWriter {
	m.writers = append(m.writers, w)
	return m
}

// FileAppenderOpt configures the rotating file sink.
type FileAppenderOpt struct {
	Filename   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// AddFileAppender attaches a lumberjack-backed rotating file writer.
func (m *MultiWriter) AddFileAppender(opt FileAppenderOpt) *MultiWriter {
	m.writers = append(m.writers, &lumberjack.Logger{
		Filename:   opt.Filename,
		MaxSize:    opt.MaxSize,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAge,
		Compress:   opt.Compress,
	})
	return m
}

// Options configures New.
type Options struct {
	Level       string // debug/info/warn/error
	FileEnabled bool
	FilePath    string
	Component   string // "local-proxy" or "remote-server", added as a field
}

// New builds a *logrus.Entry writing to stdout and, if enabled, to a
// rotating file, with Component attached to every subsequent entry.
func New(opt Options) *logrus.Entry {
	logger := logrus.New()

	level, err := logrus.ParseLevel(opt.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	out := NewMultiWriter().Add(os.Stdout)
	if opt.FileEnabled && opt.FilePath != "" {
		out = out.AddFileAppender(FileAppenderOpt{
			Filename:   opt.FilePath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}
	logger.SetOutput(out)

	return logger.WithField("component", opt.Component)
}
