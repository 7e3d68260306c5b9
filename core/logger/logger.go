package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler used by New.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type options struct {
	level  slog.Level
	format Format
	output io.Writer
	attrs  []slog.Attr
}

// Option configures a logger created with New.
type Option func(*options)

// New builds a *slog.Logger. Without options it writes info-level text to stdout.
func New(opts ...Option) *slog.Logger {
	o := &options{
		level:  slog.LevelInfo,
		format: FormatText,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}

	hopts := &slog.HandlerOptions{Level: o.level}

	var h slog.Handler
	if o.format == FormatJSON {
		h = slog.NewJSONHandler(o.output, hopts)
	} else {
		h = slog.NewTextHandler(o.output, hopts)
	}

	if len(o.attrs) > 0 {
		h = h.WithAttrs(o.attrs)
	}

	return slog.New(h)
}

// WithLevelString parses level names such as "debug" or "WARN".
// Unknown names leave the level unchanged.
func WithLevelString(level string) Option {
	return func(o *options) {
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err == nil {
			o.level = l
		}
	}
}

// WithFormat selects the formatter by name, falling back to text.
func WithFormat(format string) Option {
	return func(o *options) {
		if Format(strings.ToLower(format)) == FormatJSON {
			o.format = FormatJSON
			return
		}
		o.format = FormatText
	}
}

// WithOutput redirects log output. Nil is ignored.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

func preset(env, service string, level slog.Level, format Format) Option {
	return func(o *options) {
		o.level = level
		o.format = format
		o.attrs = append(o.attrs, slog.String("service", service), slog.String("env", env))
	}
}

// WithEnvironment picks a preset by name and tags records with service and env.
// Production and staging log JSON at info; anything else is development, text
// at debug.
func WithEnvironment(env, service string) Option {
	switch strings.ToLower(env) {
	case "production", "prod":
		return preset("production", service, slog.LevelInfo, FormatJSON)
	case "staging", "stage":
		return preset("staging", service, slog.LevelInfo, FormatJSON)
	default:
		return preset("development", service, slog.LevelDebug, FormatText)
	}
}
