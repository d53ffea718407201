package slog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Handler formats logs like the default slog output: "YYYY/MM/DD HH:MM:SS LEVEL Message key=value ..."
type Handler struct {
	mu     *sync.Mutex
	out    io.Writer
	opts   *slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
}

func NewHandler(out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	return &Handler{mu: &sync.Mutex{}, out: out, opts: opts}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts != nil && h.opts.Level != nil {
		return level >= h.opts.Level.Level()
	}

	return level >= slog.LevelInfo
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString(r.Time.Format("2006/01/02 15:04:05"))
	line.WriteByte(' ')
	line.WriteString(strings.ToUpper(r.Level.String()))
	line.WriteByte(' ')
	line.WriteString(r.Message)

	for _, attr := range h.attrs {
		writeAttr(&line, "", attr)
	}

	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(attr slog.Attr) bool {
		writeAttr(&line, prefix, attr)

		return true
	})
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := io.WriteString(h.out, line.String()); err != nil {
		return fmt.Errorf("unable to write log record: %w", err)
	}

	return nil
}

func writeAttr(line *strings.Builder, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}

	if attr.Value.Kind() == slog.KindGroup {
		for _, member := range attr.Value.Group() {
			writeAttr(line, key, member)
		}

		return
	}

	value := attr.Value.String()
	if value == "" || strings.ContainsAny(value, " \t\"=") {
		value = fmt.Sprintf("%q", value)
	}

	fmt.Fprintf(line, " %s=%s", key, value)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	copyLogger := *h
	prefix := strings.Join(h.groups, ".")

	copyLogger.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	copyLogger.attrs = append(copyLogger.attrs, h.attrs...)
	for _, attr := range attrs {
		if prefix != "" {
			attr.Key = prefix + "." + attr.Key
		}
		copyLogger.attrs = append(copyLogger.attrs, attr)
	}

	return &copyLogger
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	copyLogger := *h
	copyLogger.groups = append(append([]string{}, h.groups...), name)

	return &copyLogger
}
