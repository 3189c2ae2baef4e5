// Package logging implements the hostprep run log: one line per record in
// the form
//
//	[2006-01-02 15:04:05] [LEVEL] message key=value ...
//
// written to an append-only file (every level) and to the terminal (records
// at or above the display threshold). It is exposed as a *slog.Logger so the
// rest of the program passes loggers around explicitly and scopes them with
// With.
//
// If the log file cannot be opened, or a write to it fails, the logger prints
// a single ERROR notice on the terminal and continues on the terminal only
// for the rest of the run.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dunamismax/hostprep/internal/color"
)

// TimeLayout is the timestamp format used in every log line.
const TimeLayout = "2006-01-02 15:04:05"

// DefaultMaxSize is the size above which an existing log file is rotated at startup.
const DefaultMaxSize = 10 << 20

// Entry is a single rendered log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// String renders e in the log line format, without a trailing newline.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] [%s] %s", e.Time.Format(TimeLayout), LevelName(e.Level), e.Message)
}

// LevelName returns the tag used for l: DEBUG, INFO, WARN or ERROR.
func LevelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel parses "debug", "info", "warn"/"warning" or "error" (any case).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Options configures New.
type Options struct {
	// Path of the append-only log file. Empty means terminal only.
	Path string
	// Level is the terminal display threshold. The file receives every level.
	Level slog.Level
	// Terminal receives displayed records. Defaults to os.Stderr.
	Terminal io.Writer
	// Color enables level colouring on the terminal.
	Color bool
	// MaxSize triggers rotation of an existing file larger than this many
	// bytes. Zero means DefaultMaxSize, negative disables rotation.
	MaxSize int64
	// Now overrides the record timestamp (tests).
	Now func() time.Time
}

// Logger is a *slog.Logger backed by the hostprep file/terminal sink.
type Logger struct {
	*slog.Logger
	sink *sink
}

// New opens the log file (rotating it first when oversized) and returns the
// logger. It never fails: an unusable file puts the logger in degraded,
// terminal-only mode.
func New(opts Options) *Logger {
	if opts.Terminal == nil {
		opts.Terminal = os.Stderr
	}
	s := &sink{
		path:      opts.Path,
		terminal:  opts.Terminal,
		threshold: opts.Level,
		colour:    opts.Color,
		now:       opts.Now,
	}
	l := &Logger{Logger: slog.New(&handler{sink: s}), sink: s}

	if opts.Path == "" {
		return l
	}
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	var rotated string
	var rotateErr error
	if maxSize > 0 {
		rotated, rotateErr = rotate(opts.Path, maxSize, s.clock())
	}
	f, err := openFile(opts.Path)
	if err != nil {
		s.degrade(err)
		return l
	}
	s.file = f
	if rotateErr != nil {
		l.Warn("log rotation failed", "path", opts.Path, "error", rotateErr)
	} else if rotated != "" {
		l.Info("rotated log file", "archive", rotated)
	}
	return l
}

// Degraded reports whether the logger has fallen back to terminal-only output.
func (l *Logger) Degraded() bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.degraded
}

// Close closes the log file. The logger keeps working on the terminal.
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file == nil {
		return nil
	}
	err := l.sink.file.Close()
	l.sink.file = nil
	return err
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

// sink is shared by every handler derived from one Logger.
type sink struct {
	mu        sync.Mutex
	path      string
	file      io.WriteCloser
	terminal  io.Writer
	threshold slog.Level
	colour    bool
	degraded  bool
	now       func() time.Time
}

func (s *sink) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// degrade switches to terminal-only output. The notice is printed once,
// whatever the display threshold. Callers hold s.mu, except New.
func (s *sink) degrade(err error) {
	if s.degraded {
		return
	}
	s.degraded = true
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	notice := Entry{
		Time:    s.clock(),
		Level:   slog.LevelError,
		Message: fmt.Sprintf("log file %s unwritable: %v; continuing on stderr only", s.path, err),
	}
	s.writeTerminal(notice)
}

func (s *sink) writeTerminal(e Entry) {
	line := e.String()
	if s.colour {
		tag := "[" + LevelName(e.Level) + "]"
		line = strings.Replace(line, tag, paint(e.Level, tag), 1)
	}
	io.WriteString(s.terminal, line+"\n")
}

func paint(l slog.Level, s string) string {
	switch LevelName(l) {
	case "DEBUG":
		return color.Dim(s)
	case "INFO":
		return color.Green(s)
	case "WARN":
		return color.Yellow(s)
	default:
		return color.BoldRed(s)
	}
}

func (s *sink) write(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		if _, err := io.WriteString(s.file, e.String()+"\n"); err != nil {
			s.degrade(err)
		}
	}
	if e.Level >= s.threshold {
		s.writeTerminal(e)
	}
}

func (s *sink) enabled(l slog.Level) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return l >= s.threshold || s.file != nil
}

// handler renders slog records into Entries.
type handler struct {
	sink   *sink
	attrs  string
	prefix string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.sink.enabled(level)
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.prefix, a)
		return true
	})
	ts := r.Time
	if h.sink.now != nil || ts.IsZero() {
		ts = h.sink.clock()
	}
	h.sink.write(Entry{Time: ts, Level: r.Level, Message: b.String()})
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&b, h.prefix, a)
	}
	return &handler{sink: h.sink, attrs: b.String(), prefix: h.prefix}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &handler{sink: h.sink, attrs: h.attrs, prefix: h.prefix + name + "."}
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := prefix
		if a.Key != "" {
			group += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, group, ga)
		}
		return
	}
	val := a.Value.String()
	if val == "" || strings.ContainsAny(val, " \t\"=") {
		val = fmt.Sprintf("%q", val)
	}
	b.WriteString(" ")
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteString("=")
	b.WriteString(val)
}
