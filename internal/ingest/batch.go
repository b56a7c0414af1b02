package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"sshguard/internal/config"
	"sshguard/internal/model"
	"sshguard/internal/normalize"
)

const progressEvery = 1000

type BatchResult struct {
	Lines    int
	Skipped  int
	Attempts []model.ConnectionAttempt
}

// ParseFile reads a whole auth log for offline analysis.
func ParseFile(ctx context.Context, path string, cfg *config.Config, logger *slog.Logger) (BatchResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return BatchResult{}, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	return ParseReader(ctx, f, cfg, logger)
}

func ParseReader(ctx context.Context, r io.Reader, cfg *config.Config, logger *slog.Logger) (BatchResult, error) {
	var res BatchResult
	parser := NewParser()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Lines++
		if logger != nil && res.Lines%progressEvery == 0 {
			logger.Info("parse progress", "lines", res.Lines, "attempts", len(res.Attempts))
		}
		fields, err := parser.ParseLine(scanner.Text())
		if err != nil {
			res.Skipped++
			continue
		}
		if fields == nil {
			continue
		}
		fields.Source = SourceBatch
		att, err := normalize.Normalize(*fields, cfg)
		if err != nil {
			res.Skipped++
			if logger != nil {
				logger.Debug("skip attempt", "line", res.Lines, "err", err)
			}
			continue
		}
		res.Attempts = append(res.Attempts, att)
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read log: %w", err)
	}
	return res, nil
}
