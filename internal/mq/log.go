package mq

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
)

// LogBackend writes messages to a logger instead of a broker. It stands in
// when no broker is configured.
type LogBackend struct {
	logger *slog.Logger
	seq    atomic.Int64
}

func NewLogBackend(logger *slog.Logger) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBackend{logger: logger}
}

func (l *LogBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id := strconv.FormatInt(l.seq.Add(1), 10)
	l.logger.InfoContext(ctx, "message not sent, no broker configured",
		"channel", channel,
		"message_id", id,
		"attributes", attrs,
		"payload", string(data),
	)
	return id, nil
}

func (l *LogBackend) Close() error {
	return nil
}
