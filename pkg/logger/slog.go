package logger

import (
	"context"
	"log/slog"
)

// slogBridge adapts Logger to the slog.Handler interface so packages that
// accept a *slog.Logger can share the same sink and level configuration.
type slogBridge struct {
	logger *Logger
	attrs  []Field
}

// Slog returns a *slog.Logger backed by this Logger. Records are routed
// through the same writer and filtered by the same level.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(&slogBridge{logger: l})
}

func (b *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return slogToLevel(level) >= b.logger.level
}

func (b *slogBridge) Handle(_ context.Context, record slog.Record) error {
	fields := make([]Field, 0, len(b.attrs)+record.NumAttrs())
	fields = append(fields, b.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		fields = append(fields, F(a.Key, a.Value.Any()))
		return true
	})
	b.logger.log(slogToLevel(record.Level), record.Message, fields...)
	return nil
}

func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]Field, 0, len(b.attrs)+len(attrs))
	fields = append(fields, b.attrs...)
	for _, a := range attrs {
		fields = append(fields, F(a.Key, a.Value.Any()))
	}
	return &slogBridge{logger: b.logger, attrs: fields}
}

func (b *slogBridge) WithGroup(name string) slog.Handler {
	// Groups are flattened; the JSON sink has no nesting.
	return b
}

func slogToLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}
