package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelDebug:
		return "debug"
	default:
		return "info"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLevel accepts error, warn, info and debug. Anything else is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Logger wraps slog with the context keys a run attaches: module, case and
// request.
type Logger struct {
	*slog.Logger
	level  Level
	masker *Masker
}

type Option func(*options)

type options struct {
	writer io.Writer
	json   bool
	masker *Masker
}

func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

func WithJSON(json bool) Option {
	return func(o *options) { o.json = json }
}

func WithMasker(m *Masker) Option {
	return func(o *options) { o.masker = m }
}

func New(level Level, opts ...Option) *Logger {
	o := &options{writer: os.Stderr, masker: NewMasker()}
	for _, opt := range opts {
		opt(o)
	}

	handlerOpts := &slog.HandlerOptions{Level: level.slogLevel()}
	var handler slog.Handler
	if o.json {
		handler = slog.NewJSONHandler(o.writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.writer, handlerOpts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		masker: o.masker,
	}
}

// Discard returns a logger that drops everything; tests use it.
func Discard() *Logger {
	return New(LevelError, WithWriter(io.Discard))
}

func (l *Logger) Level() Level {
	return l.level
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level, masker: l.masker}
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

func (l *Logger) WithModule(module string) *Logger {
	return l.with("module", module)
}

func (l *Logger) WithCase(caseID string) *Logger {
	return l.with("case", caseID)
}

func (l *Logger) WithRequest(method, url string) *Logger {
	return l.with("method", method, "url", l.masker.MaskString(url))
}

// Masked logs at debug level with sensitive key/value pairs redacted.
func (l *Logger) Masked(msg string, pairs ...any) {
	l.Debug(msg, l.masker.MaskKeyValuePairs(pairs...)...)
}

// MaskHeaders returns a copy of headers safe to log.
func (l *Logger) MaskHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = fmt.Sprint(l.masker.MaskValue(k, v))
	}
	return out
}

// Resty adapts the logger to resty's Logger interface.
func (l *Logger) Resty() *RestyLogger {
	return &RestyLogger{l: l.WithComponent("http")}
}

type RestyLogger struct {
	l *Logger
}

func (r *RestyLogger) Errorf(format string, v ...any) {
	r.l.Error(r.l.masker.MaskString(fmt.Sprintf(format, v...)))
}

func (r *RestyLogger) Warnf(format string, v ...any) {
	r.l.Warn(r.l.masker.MaskString(fmt.Sprintf(format, v...)))
}

func (r *RestyLogger) Debugf(format string, v ...any) {
	r.l.Debug(r.l.masker.MaskString(fmt.Sprintf(format, v...)))
}

var defaultLogger = New(LevelInfo)

func SetDefault(l *Logger) {
	defaultLogger = l
}

func Default() *Logger {
	return defaultLogger
}
