package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Process-wide logger. Slog and Zap are safe to call before Init; they log at
// info level to stdout until configured.
var (
	mu      sync.RWMutex
	zl      *zap.Logger
	slogger *slog.Logger
	level   = zap.NewAtomicLevelAt(zap.InfoLevel)
)

type Config struct {
	Level  string
	Format string // text|json
	Output io.Writer
}

func init() { build(Config{}) }

// Init replaces the process logger. Calling it again (e.g. from the CLI after flag
// parsing) swaps the core; previously returned loggers keep their old core.
func Init(cfg Config) {
	if l, err := ParseLevel(cfg.Level); err == nil {
		level.SetLevel(l)
	}
	build(cfg)
}

func build(cfg Config) {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, pae zapcore.PrimitiveArrayEncoder) { pae.AppendString(t.UTC().Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	mu.Lock()
	zl = zap.New(core, zap.AddCaller())
	slogger = slog.New(slogHandler{core: core})
	mu.Unlock()
}

// ParseLevel accepts debug|info|warn|error (case-insensitive).
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	}
	return zap.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// SetLevel updates the level of every logger handed out so far.
func SetLevel(s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current level name.
func Level() string { return level.Level().String() }

func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return zl
}

func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// slogHandler writes slog records into a zap core.
type slogHandler struct {
	core   zapcore.Core
	attrs  []zapcore.Field
	prefix string
}

func toZapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zap.ErrorLevel
	case l >= slog.LevelWarn:
		return zap.WarnLevel
	case l >= slog.LevelInfo:
		return zap.InfoLevel
	default:
		return zap.DebugLevel
	}
}

func (h slogHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.core.Enabled(toZapLevel(l))
}

func (h slogHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]zapcore.Field, 0, len(h.attrs)+r.NumAttrs())
	fields = append(fields, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.field(a))
		return true
	})
	return h.core.Write(zapcore.Entry{Level: toZapLevel(r.Level), Time: r.Time, Message: r.Message}, fields)
}

func (h slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h
	nh.attrs = make([]zapcore.Field, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, h.field(a))
	}
	return nh
}

func (h slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h
	nh.prefix = h.prefix + name + "."
	return nh
}

func (h slogHandler) field(a slog.Attr) zapcore.Field {
	a.Value = a.Value.Resolve()
	key := h.prefix + a.Key
	switch a.Value.Kind() {
	case slog.KindString:
		return zap.String(key, a.Value.String())
	case slog.KindInt64:
		return zap.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		return zap.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		return zap.Float64(key, a.Value.Float64())
	case slog.KindBool:
		return zap.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		return zap.Duration(key, a.Value.Duration())
	case slog.KindTime:
		return zap.Time(key, a.Value.Time())
	default:
		if err, ok := a.Value.Any().(error); ok {
			return zap.NamedError(key, err)
		}
		return zap.Any(key, a.Value.Any())
	}
}
