// Package logger wraps zap with the fields this service logs everywhere.
package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap.Logger with service specific child constructors.
type Logger struct {
	*zap.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	out    io.Writer
	fields []zap.Field
}

// WithOutput sends log lines to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithFields stamps every line with fields, e.g. the service name.
func WithFields(fields ...zap.Field) Option {
	return func(o *options) { o.fields = append(o.fields, fields...) }
}

// New creates a JSON logger at the given level. Errors carry a stack trace.
func New(level string, opts ...Option) (*Logger, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(o.out),
		zap.NewAtomicLevelAt(ParseLevel(level)),
	)
	z := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.Fields(o.fields...),
	)
	return &Logger{Logger: z}, nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg
}

// NewDevelopment creates a console logger with colored levels at debug.
func NewDevelopment() (*Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	z, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: z}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named creates a child logger for a component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// WithRequest tags lines with the request's correlation id and caller.
func (l *Logger) WithRequest(correlationID, userID string) *Logger {
	return l.With(
		zap.String("correlation_id", correlationID),
		zap.String("user_id", userID),
	)
}

// WithNode tags lines with a canvas node.
func (l *Logger) WithNode(canvasID, nodeID string) *Logger {
	return l.With(
		zap.String("canvas_id", canvasID),
		zap.String("node_id", nodeID),
	)
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return zapcore.WarnLevel
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil || level == "" {
		return zapcore.InfoLevel
	}
	return lvl
}

var global atomic.Pointer[Logger]

func init() {
	l, err := New("info")
	if err != nil {
		l = NewNop()
	}
	global.Store(l)
}

// Global returns the process wide logger. It is safe to call from any
// goroutine.
func Global() *Logger {
	return global.Load()
}

// SetGlobal replaces the process wide logger. Nil is ignored.
func SetGlobal(l *Logger) {
	if l != nil {
		global.Store(l)
	}
}
