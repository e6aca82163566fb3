// Package telemetry provides the engine's structured logging interface
// and its zerolog-backed implementation, following the same wrapper
// shape the teacher uses in pkg/utils/logger.go: a Logger/LogEvent/
// LogContext trio so call sites never import zerolog directly.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Logger is the structured logging interface the engine's components
// (internal/api, internal/executor) depend on, never a concrete zerolog
// type.
type Logger interface {
	Debug() LogEvent
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent
	With() LogContext
}

type LogEvent interface {
	Str(key, val string) LogEvent
	Int(key string, val int) LogEvent
	Dur(key string, val time.Duration) LogEvent
	Err(err error) LogEvent
	Bool(key string, val bool) LogEvent
	Any(key string, val interface{}) LogEvent
	Msg(msg string)
	Msgf(format string, args ...interface{})
}

type LogContext interface {
	Str(key, val string) LogContext
	Logger() Logger
}

type zlogger struct{ logger zerolog.Logger }
type zevent struct{ event *zerolog.Event }
type zcontext struct{ context zerolog.Context }

func levelOf(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a console-formatted logger, used for interactive CLI runs.
func New(level Level, output io.Writer) Logger {
	if output == nil {
		output = os.Stderr
	}
	zerolog.SetGlobalLevel(levelOf(level))
	cw := zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339, NoColor: os.Getenv("NO_COLOR") != ""}
	l := zerolog.New(cw).With().Timestamp().Logger()
	return &zlogger{logger: l}
}

// NewJSON builds a JSON-formatted logger.
func NewJSON(level Level, output io.Writer) Logger {
	if output == nil {
		output = os.Stderr
	}
	zerolog.SetGlobalLevel(levelOf(level))
	l := zerolog.New(output).With().Timestamp().Logger()
	return &zlogger{logger: l}
}

func (l *zlogger) Debug() LogEvent   { return &zevent{l.logger.Debug()} }
func (l *zlogger) Info() LogEvent    { return &zevent{l.logger.Info()} }
func (l *zlogger) Warn() LogEvent    { return &zevent{l.logger.Warn()} }
func (l *zlogger) Error() LogEvent   { return &zevent{l.logger.Error()} }
func (l *zlogger) With() LogContext { return &zcontext{l.logger.With()} }

func (e *zevent) Str(k, v string) LogEvent              { e.event = e.event.Str(k, v); return e }
func (e *zevent) Int(k string, v int) LogEvent          { e.event = e.event.Int(k, v); return e }
func (e *zevent) Dur(k string, v time.Duration) LogEvent { e.event = e.event.Dur(k, v); return e }
func (e *zevent) Err(err error) LogEvent                { e.event = e.event.Err(err); return e }
func (e *zevent) Bool(k string, v bool) LogEvent        { e.event = e.event.Bool(k, v); return e }
func (e *zevent) Any(k string, v interface{}) LogEvent  { e.event = e.event.Interface(k, v); return e }
func (e *zevent) Msg(msg string)                        { e.event.Msg(msg) }
func (e *zevent) Msgf(format string, args ...interface{}) { e.event.Msgf(format, args...) }

func (c *zcontext) Str(k, v string) LogContext { c.context = c.context.Str(k, v); return c }
func (c *zcontext) Logger() Logger             { return &zlogger{logger: c.context.Logger()} }

// WithWorkflow returns a logger carrying the workflow id field,
// following the teacher's NewWorkflowLogger convenience constructor.
func WithWorkflow(base Logger, workflowID, defName string) Logger {
	return base.With().Str("workflow_id", workflowID).Str("workflow_type", defName).Logger()
}

// WithTask returns a logger carrying task identity fields, following
// the teacher's NewTaskLogger convenience constructor.
func WithTask(base Logger, taskID, refName, taskType string) Logger {
	return base.With().Str("task_id", taskID).Str("task_ref", refName).Str("task_type", taskType).Logger()
}
