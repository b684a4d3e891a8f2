package audit

import (
	"context"
	"log/slog"
)

// LogSink writes each event to a structured logger at debug level, so a
// service without Kafka still has a trail of lifecycle transitions.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, ev Event) error {
	if s.Logger == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("run_id", ev.RunID),
		slog.String("status", string(ev.Status)),
		slog.String("action", ev.Action),
		slog.Time("at", ev.At),
	}
	if ev.ProviderName != "" {
		attrs = append(attrs, slog.String("provider", ev.ProviderName), slog.String("model", ev.ProviderModel))
	}
	for k, v := range ev.Details {
		attrs = append(attrs, slog.String("detail."+k, v))
	}
	s.Logger.LogAttrs(ctx, slog.LevelDebug, "audit event", attrs...)
	return nil
}
