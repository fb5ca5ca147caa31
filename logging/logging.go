// Package logging provides the structured logger shared by all pagechat
// components. It keeps a small level/component/trace-id API and writes
// through zerolog, either as human-readable console lines or as JSON.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Format selects the output encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var zerologLevels = map[Level]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// ParseLevel parses a level name case-insensitively. Unknown names yield INFO.
func ParseLevel(s string) Level {
	lvl := Level(strings.ToUpper(strings.TrimSpace(s)))
	if lvl == "WARNING" {
		return LevelWarn
	}
	if _, ok := zerologLevels[lvl]; ok {
		return lvl
	}
	return LevelInfo
}

// Logger provides structured logging. Loggers derived with WithComponent
// or WithTraceID share their parent's writer.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	writer    io.Writer // synchronized chain over output
	minLevel  Level
	format    Format
	component string
	traceID   string
	zl        zerolog.Logger
}

// New creates a Logger writing console lines to stdout at INFO.
func New() *Logger {
	l := &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
		format:   FormatConsole,
	}
	l.rebuild()
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := New()
	l.SetOutput(io.Discard)
	return l
}

// rebuild replaces the writer chain after an output or format change.
func (l *Logger) rebuild() {
	var w io.Writer = zerolog.SyncWriter(l.output)
	if l.format != FormatJSON {
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}
	}
	l.writer = w
	l.zl = l.root()
}

// root builds a zerolog logger on the current writer carrying this
// logger's level and context fields.
func (l *Logger) root() zerolog.Logger {
	ctx := zerolog.New(l.writer).Level(zerologLevels[l.minLevel]).With().Timestamp()
	if l.component != "" {
		ctx = ctx.Str("component", l.component)
	}
	if l.traceID != "" {
		ctx = ctx.Str("trace_id", l.traceID)
	}
	return ctx.Logger()
}

// child copies l's settings and shares its writer. Callers hold l.mu.
func (l *Logger) child() *Logger {
	return &Logger{
		output:    l.output,
		writer:    l.writer,
		minLevel:  l.minLevel,
		format:    l.format,
		component: l.component,
		traceID:   l.traceID,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.child()
	c.component = component
	if l.component == "" {
		c.zl = l.zl.With().Str("component", component).Logger()
	} else {
		c.zl = c.root()
	}
	return c
}

// WithTraceID returns a new logger with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.child()
	c.traceID = traceID
	if l.traceID == "" {
		c.zl = l.zl.With().Str("trace_id", traceID).Logger()
	} else {
		c.zl = c.root()
	}
	return c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := zerologLevels[level]; !ok {
		level = LevelInfo
	}
	l.minLevel = level
	l.zl = l.zl.Level(zerologLevels[level])
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// SetFormat switches between console and JSON output.
func (l *Logger) SetFormat(f Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = f
	l.rebuild()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()

	ev := zl.WithLevel(zerologLevels[level])
	if ev == nil {
		return
	}
	if len(fields) > 0 && fields[0] != nil {
		ev = ev.Fields(fields[0])
	}
	ev.Msg(msg)
}

// --- Pipeline events ---

// CacheHit logs a page served from the cache.
func (l *Logger) CacheHit(url string) {
	l.Debug("cache_hit", map[string]interface{}{
		"url": url,
	})
}

// FetchComplete logs a finished page fetch.
func (l *Logger) FetchComplete(url string, duration time.Duration, chars int, err error) {
	fields := map[string]interface{}{
		"url":      url,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("fetch_error", fields)
		return
	}
	fields["chars"] = chars
	l.Debug("fetch_complete", fields)
}

// GateWait logs how long a request queued for an admission slot.
func (l *Logger) GateWait(waited time.Duration, inFlight, capacity int) {
	l.Debug("gate_admitted", map[string]interface{}{
		"waited":    waited.String(),
		"in_flight": inFlight,
		"capacity":  capacity,
	})
}

// GenerationComplete logs a finished LLM call.
func (l *Logger) GenerationComplete(provider string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"provider": provider,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("generation_error", fields)
		return
	}
	l.Debug("generation_complete", fields)
}

// RequestComplete logs the end of a chat request.
func (l *Logger) RequestComplete(duration time.Duration, code string) {
	fields := map[string]interface{}{
		"duration": duration.String(),
		"ok":       code == "",
	}
	if code != "" {
		fields["code"] = code
	}
	l.Info("chat_complete", fields)
}
