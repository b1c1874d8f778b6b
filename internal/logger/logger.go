package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kubedos/ctwizard/internal/config"
)

// Logger is the structured sink handed to every component. kv holds
// alternating keys and values.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

type zlog struct {
	zl zerolog.Logger
}

// New builds a zerolog-backed Logger from cfg. The returned closer releases
// the log file, if any.
func New(cfg config.Log) (Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	for _, w := range cfg.Writer {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		case "file":
			lj := &lumberjack.Logger{
				Filename:   cfg.File.Path,
				MaxSize:    cfg.File.MaxSizeMB,
				MaxBackups: cfg.File.MaxBackups,
				MaxAge:     cfg.File.MaxAgeDays,
			}
			writers = append(writers, lj)
			closer = lj
		default:
			return nil, nil, fmt.Errorf("unknown log writer %q", w)
		}
	}
	if len(writers) == 0 {
		return NewNop(), closer, nil
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	return &zlog{zl: zl}, closer, nil
}

// NewWriter logs JSON lines to w; used by tests and embedding callers.
func NewWriter(w io.Writer, level zerolog.Level) Logger {
	return &zlog{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

func (l *zlog) Debug(msg string, kv ...any) { l.zl.Debug().Fields(kv).Msg(msg) }
func (l *zlog) Info(msg string, kv ...any)  { l.zl.Info().Fields(kv).Msg(msg) }
func (l *zlog) Warn(msg string, kv ...any)  { l.zl.Warn().Fields(kv).Msg(msg) }
func (l *zlog) Error(msg string, kv ...any) { l.zl.Error().Fields(kv).Msg(msg) }

func (l *zlog) With(kv ...any) Logger {
	return &zlog{zl: l.zl.With().Fields(kv).Logger()}
}

type nop struct{}

// NewNop discards everything.
func NewNop() Logger { return nop{} }

func (nop) Debug(string, ...any)  {}
func (nop) Info(string, ...any)   {}
func (nop) Warn(string, ...any)   {}
func (nop) Error(string, ...any)  {}
func (n nop) With(...any) Logger { return n }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
