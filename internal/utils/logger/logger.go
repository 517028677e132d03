package logger

import (
	"io"
	"os"
	"strings"

	"golang.org/x/exp/slog"

	"archivist/internal/config"
)

// New возвращает логгер для окружения: local - цветной вывод, dev и prod - JSON.
// level (debug, info, warn, error) переопределяет уровень окружения; пустой или неизвестный уровень игнорируется.
func New(env, level string) *slog.Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level, defaultLevel(env))}

	if env == config.EnvLocal {
		pretty := PrettyHandlerOptions{SlogOpts: opts}
		return slog.New(pretty.NewPrettyHandler(w))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func defaultLevel(env string) slog.Level {
	switch env {
	case config.EnvLocal, config.EnvDev:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLevel разбирает имя уровня без учета регистра, для пустой или неверной строки возвращает fallback.
func ParseLevel(level string, fallback slog.Level) slog.Level {
	level = strings.TrimSpace(level)
	if level == "" {
		return fallback
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fallback
	}
	return l
}
