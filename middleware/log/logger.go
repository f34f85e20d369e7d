package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gopher0727/MiniChat/config"
)

// Logger 在 zap.Logger 之上增加按 context 取 trace id 的方法，并持有日志文件句柄
type Logger struct {
	*zap.Logger
	file *os.File
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "timestamp",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	FunctionKey:    zapcore.OmitKey,
	MessageKey:     "message",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.LowercaseLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// NewLogger 按 logging 配置创建日志器。
// format: json | text；output: stdout | file（目录不存在时自动创建）
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	sink := zapcore.AddSync(os.Stdout)
	var file *os.File
	if cfg.Output == "file" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		file = f
		sink = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(encoder, sink, parseLogLevel(cfg.Level))
	return &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		file:   file,
	}, nil
}

// NewFileLogger 终端客户端使用：JSON 写文件，不占用终端
func NewFileLogger(level, path string) (*Logger, error) {
	return NewLogger(&config.LoggingConfig{
		Level:    level,
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("logging.file_path is required for file output")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Nop 丢弃所有输出，测试用
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithContext 附带 ctx 中的 trace id；没有时返回自身
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID := GetTraceID(ctx); traceID != "" {
		return l.WithFields(zap.String("trace_id", traceID))
	}
	return l
}

func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Debug(msg, fields...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Info(msg, fields...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Warn(msg, fields...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Error(msg, fields...)
}

func parseLogLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if level == "" || lvl.UnmarshalText([]byte(level)) != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Close 刷新缓冲并关闭日志文件。stdout 上的 Sync 错误忽略（部分平台不支持对终端 fsync）
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
