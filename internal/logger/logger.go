package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field names shared by every component so log lines can be aggregated.
const (
	FieldRequestID  = "request_id"
	FieldSearchID   = "search_id"
	FieldSupplierID = "supplier_id"
	FieldJobID      = "job_id"
	FieldComponent  = "component"
	FieldAttempt    = "attempt"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldDurationMs = "duration_ms"
)

// Fields is a set of structured log fields.
type Fields map[string]any

// Logger wraps a logrus entry so derived loggers keep their fields.
type Logger struct {
	*logrus.Entry
}

// Config controls log level, format and destination.
type Config struct {
	Level       string
	Format      string
	ServiceName string
	// File enables rotated file output in addition to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Output     io.Writer
}

var (
	closerMu sync.Mutex
	closer   io.Closer

	defaultMu sync.RWMutex
	std       = New(Config{Level: "info", Format: "json", ServiceName: "supplier-outreach"})
)

type ctxKey struct{}

// New builds a logger from the given configuration.
func New(cfg Config) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportCaller(true)

	if strings.EqualFold(cfg.Format, "text") {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			CallerPrettyfier: callerPrettyfier,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			CallerPrettyfier: callerPrettyfier,
		})
	}

	switch {
	case cfg.Output != nil:
		log.SetOutput(cfg.Output)
	case cfg.File != "":
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		closerMu.Lock()
		closer = file
		closerMu.Unlock()
		log.SetOutput(io.MultiWriter(os.Stdout, file))
	default:
		log.SetOutput(os.Stdout)
	}

	service := cfg.ServiceName
	if service == "" {
		service = "supplier-outreach"
	}
	return &Logger{Entry: log.WithField("service", service)}
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	std = l
	defaultMu.Unlock()
}

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return std
}

// Sync closes the rotated log file, if any.
func Sync() error {
	closerMu.Lock()
	defer closerMu.Unlock()
	if closer != nil {
		return closer.Close()
	}
	return nil
}

// WithFields returns a derived logger.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithField returns a derived logger with one extra field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError attaches err to the derived logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// WithContext stores the logger in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
			return l
		}
	}
	return Default()
}

// With derives a logger from ctx and attaches fields to the returned context.
func With(ctx context.Context, fields Fields) (context.Context, *Logger) {
	l := FromContext(ctx).WithFields(fields)
	return l.WithContext(ctx), l
}

// Discard returns a logger that writes nowhere. Used in tests.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: "panic"})
}

func callerPrettyfier(frame *runtime.Frame) (string, string) {
	fn := frame.Function
	if idx := strings.LastIndex(fn, "/"); idx != -1 {
		fn = fn[idx+1:]
	}
	return fn, filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}
