package logger

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON production logger at the given level.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// DSNFields returns the parts of a database DSN that are safe to log.
func DSNFields(name, dsn string) []zap.Field {
	u, err := url.Parse(dsn)
	if err != nil {
		return []zap.Field{zap.String("db", name), zap.NamedError("dsn_error", err)}
	}
	return []zap.Field{
		zap.String("db", name),
		zap.String("host", u.Hostname()),
		zap.String("database", strings.TrimPrefix(u.Path, "/")),
	}
}
