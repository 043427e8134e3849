// Package logging sets up the process wide slog logger. Output can be held
// back in a buffer while the monitor owns the terminal and is flushed into
// its log pane once that exists.
package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"lautenbacher.net/avrhal/config"
)

// teeWriter either buffers or forwards to target, and copies everything to
// file when one is open.
type teeWriter struct {
	mu        sync.Mutex
	buffer    bytes.Buffer
	target    io.Writer
	file      *os.File
	buffering bool
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.buffering {
		w.buffer.Write(p)
	} else if w.target != nil {
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

// flush writes out and empties the buffer. Called with mu held.
func (w *teeWriter) flush(to io.Writer) error {
	if w.buffer.Len() == 0 {
		return nil
	}
	_, err := to.Write(w.buffer.Bytes())
	w.buffer.Reset()
	return err
}

var writer = &teeWriter{target: os.Stderr}

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels. Anything else
// is INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the default logger. With bufferOutput set nothing is
// written until SetOutput is called; without it output goes to stderr.
// conf.File, if set, receives a copy of every record.
func Init(bufferOutput bool, conf config.LoggingConfig) error {
	w := &teeWriter{buffering: bufferOutput}
	if !bufferOutput {
		w.target = os.Stderr
	}
	if conf.File != "" {
		file, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		w.file = file
	}
	writer = w

	opts := &slog.HandlerOptions{Level: ParseLevel(conf.Level)}
	var handler slog.Handler
	if strings.ToLower(conf.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetOutput flushes the buffer to target and logs there from now on.
func SetOutput(target io.Writer) error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if err := writer.flush(target); err != nil {
		return err
	}
	writer.target = target
	writer.buffering = false
	return nil
}

// BufferOutput stops live output and starts buffering again.
func BufferOutput() {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	writer.target = nil
	writer.buffering = true
}

// Close flushes what is buffered and closes the log file. Without a file
// and a live target the buffer goes to stderr so nothing is lost.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var firstErr error
	switch {
	case writer.file != nil:
		firstErr = writer.flush(writer.file)
		if err := writer.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		writer.file = nil
	case writer.target == nil:
		firstErr = writer.flush(os.Stderr)
	}
	writer.buffer.Reset()
	return firstErr
}
