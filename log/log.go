// Package log 基于 slog 的结构化日志，Options 驱动配置
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
}

// Options 日志初始化选项
type Options struct {
	// Level 日志级别：debug, info, warn, error
	Level string `cfg:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn error"`

	// Format 输出格式：text, json
	Format string `cfg:"format" env:"FORMAT" validate:"omitempty,oneof=text json"`

	// Output 输出目标：stdout, stderr, file
	Output string `cfg:"output" env:"OUTPUT" validate:"omitempty,oneof=stdout stderr file"`

	// FilePath Output 为 file 时的日志文件路径
	FilePath string `cfg:"filePath" env:"FILE_PATH"`

	// TimeFormat 时间格式，默认 RFC3339
	TimeFormat string `cfg:"timeFormat" env:"TIME_FORMAT"`

	// AddSource 是否记录调用位置
	AddSource bool `cfg:"addSource" env:"ADD_SOURCE"`
}

// SLog slog 封装
type SLog struct {
	slogger *slog.Logger
}

func NewSLogWithOptions(options *Options) (*SLog, error) {
	if options == nil {
		options = &Options{}
	}
	if options.Level == "" {
		options.Level = "info"
	}
	if options.Format == "" {
		options.Format = "text"
	}
	if options.Output == "" {
		options.Output = "stdout"
	}
	if options.TimeFormat == "" {
		options.TimeFormat = time.RFC3339
	}

	var level slog.Level
	switch strings.ToLower(options.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, errors.Errorf("invalid log level: %s", options.Level)
	}

	var w io.Writer
	switch options.Output {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	case "file":
		if options.FilePath == "" {
			return nil, errors.New("file path is required for file output")
		}
		if err := os.MkdirAll(filepath.Dir(options.FilePath), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
		f, err := os.OpenFile(options.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		w = f
	default:
		return nil, errors.Errorf("unsupported output: %s", options.Output)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: options.AddSource,
	}
	if options.TimeFormat != time.RFC3339 {
		timeFormat := options.TimeFormat
		handlerOpts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format(timeFormat))
			}
			return a
		}
	}

	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, errors.Errorf("unsupported format: %s", options.Format)
	}

	return &SLog{slogger: slog.New(handler)}, nil
}

func (l *SLog) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }
func (l *SLog) Info(msg string, args ...any)  { l.slogger.Info(msg, args...) }
func (l *SLog) Warn(msg string, args ...any)  { l.slogger.Warn(msg, args...) }
func (l *SLog) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

func (l *SLog) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, args...)
}

func (l *SLog) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, args...)
}

func (l *SLog) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, args...)
}

func (l *SLog) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, args...)
}

func (l *SLog) With(args ...any) Logger {
	return &SLog{slogger: l.slogger.With(args...)}
}

var defaultLogger Logger

func init() {
	slogger, err := NewSLogWithOptions(&Options{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = slogger
}

// Default 默认 logger，向终端输出 text 格式日志
func Default() Logger {
	return defaultLogger
}
