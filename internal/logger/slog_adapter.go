package logger

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
)

// NewSlogHandler returns a slog.Handler that forwards records to l.
// Attributes are appended to the message as key=value pairs; groups become
// dotted key prefixes.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogHandler{log: l}
}

// NewStdLogger returns a *log.Logger-compatible sink for libraries that only
// accept the standard logger, such as http.Server.ErrorLog.
func NewStdLogger(l *Logger, level slog.Level) *log.Logger {
	return slog.NewLogLogger(NewSlogHandler(OrGlobal(l)), level)
}

type slogHandler struct {
	log   *Logger
	group string
	attrs string
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return fromSlogLevel(level) >= h.log.GetLevel()
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Message)
	b.WriteString(h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(&b, h.group, attr)
		return true
	})
	msg := strings.TrimSpace(b.String())

	switch fromSlogLevel(record.Level) {
	case LevelError:
		h.log.Error("%s", msg)
	case LevelWarn:
		h.log.Warn("%s", msg)
	case LevelInfo:
		h.log.Info("%s", msg)
	default:
		h.log.Debug("%s", msg)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, attr := range attrs {
		appendAttr(&b, h.group, attr)
	}
	return &slogHandler{log: h.log, group: h.group, attrs: b.String()}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{log: h.log, group: joinKey(h.group, name), attrs: h.attrs}
}

func fromSlogLevel(level slog.Level) Level {
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

func appendAttr(b *strings.Builder, group string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		nested := joinKey(group, attr.Key)
		for _, a := range attr.Value.Group() {
			appendAttr(b, nested, a)
		}
		return
	}
	key := attr.Key
	if key == "" {
		key = "attr"
	}
	fmt.Fprintf(b, " %s=%v", joinKey(group, key), attr.Value)
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	if key == "" {
		return group
	}
	return group + "." + key
}
