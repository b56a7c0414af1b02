package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"sshguard/internal/config"
)

// StartKafka consumes a topic whose messages are raw auth.log lines, journald
// JSON records or structured attempt objects.
func StartKafka(ctx context.Context, cfg *config.Manager, em *Emitter, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	// new consumer groups start at the live tail
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     current.Brokers,
		Topic:       current.Topic,
		GroupID:     current.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			em.EmitLine(ctx, SourceKafka, string(m.Value))
		}
	}()
}
