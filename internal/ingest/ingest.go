package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sshguard/internal/config"
	"sshguard/internal/metrics"
	"sshguard/internal/model"
	"sshguard/internal/normalize"
)

const (
	SourceFileTail = "file_tail"
	SourceSyslog   = "syslog"
	SourceJournal  = "journal"
	SourceKafka    = "kafka"
	SourceREST     = "rest"
	SourceBatch    = "batch"
)

// Emitter is the shared tail of every producer: parse, dedupe, normalize,
// count and hand off to the engine channel.
type Emitter struct {
	cfg     *config.Manager
	parser  *Parser
	out     chan<- model.ConnectionAttempt
	dedupe  *DedupeCache
	metrics *metrics.Collectors
	logger  *slog.Logger
}

func NewEmitter(cfg *config.Manager, out chan<- model.ConnectionAttempt, collectors *metrics.Collectors, logger *slog.Logger) *Emitter {
	return &Emitter{
		cfg:     cfg,
		parser:  NewParser(),
		out:     out,
		dedupe:  NewDedupeCache(0),
		metrics: collectors,
		logger:  logger,
	}
}

// EmitLine parses one raw log line. Lines that are not sshd authentication
// events are skipped silently.
func (e *Emitter) EmitLine(ctx context.Context, source, line string) bool {
	fields, err := e.parser.ParseLine(line)
	if err != nil {
		if e.logger != nil {
			e.logger.Debug("skip malformed line", "source", source, "err", err)
		}
		return false
	}
	if fields == nil {
		return false
	}
	fields.Source = source
	return e.EmitFields(ctx, *fields)
}

func (e *Emitter) EmitFields(ctx context.Context, fields normalize.AuthFields) bool {
	cfg := e.cfg.Get()
	if raw := strings.TrimSpace(fields.Raw); raw != "" && cfg.Ingest.DedupeWindow > 0 {
		if e.dedupe.Seen(raw, time.Now(), cfg.Ingest.DedupeWindow) {
			return false
		}
	}
	att, err := normalize.Normalize(fields, cfg)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("normalize error", "source", fields.Source, "err", err)
		}
		return false
	}
	e.metrics.ObserveAttempt(att)
	if !SendNonBlocking(ctx, e.out, att, e.logger) {
		e.metrics.ObserveDrop(att.Source)
		return false
	}
	return true
}

func SendNonBlocking(ctx context.Context, out chan<- model.ConnectionAttempt, att model.ConnectionAttempt, logger *slog.Logger) bool {
	select {
	case out <- att:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("attempt channel full, dropping attempt", "ip", att.IP, "source", att.Source)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
