package config

import (
	"io"
	"log/slog"
	"strings"

	vdberrors "vdb/internal/errors"
)

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return level, vdberrors.Newf(vdberrors.CodeInvalidConfig, "log.level %q is not a level", c.Level)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
