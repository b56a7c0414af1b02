package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"sshguard/internal/config"
)

func StartFileTail(ctx context.Context, cfg *config.Manager, em *Emitter, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileTail
	if !current.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		t := &tailer{path: path, startAtEnd: current.StartAtEnd, em: em, logger: logger}
		go t.run(ctx)
	}
}

// tailer follows one file across truncation and rename-style rotation. Only
// the first open honours start_at_end; a rotated file is read from the top.
type tailer struct {
	path       string
	startAtEnd bool
	em         *Emitter
	logger     *slog.Logger
	poll       time.Duration
}

func (t *tailer) run(ctx context.Context) {
	first := true
	for {
		file, err := os.Open(t.path)
		if err != nil {
			if t.logger != nil {
				t.logger.Warn("tail open failed", "path", t.path, "err", err)
			}
			if !BackoffSleep(ctx, 2*time.Second) {
				return
			}
			continue
		}
		var offset int64
		if first && t.startAtEnd {
			if pos, err := file.Seek(0, io.SeekEnd); err == nil {
				offset = pos
			}
		}
		first = false
		done := t.follow(ctx, file, offset)
		_ = file.Close()
		if done {
			return
		}
	}
}

// follow reads file until ctx ends (true) or the path is replaced or
// truncated (false).
func (t *tailer) follow(ctx context.Context, file *os.File, offset int64) bool {
	poll := t.poll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	var partial []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			offset += int64(len(chunk))
			if chunk[len(chunk)-1] == '\n' {
				line := string(append(partial, chunk...))
				partial = partial[:0]
				t.em.EmitLine(ctx, SourceFileTail, line)
			} else {
				partial = append(partial, chunk...)
			}
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			if t.logger != nil {
				t.logger.Warn("tail read error", "path", t.path, "err", err)
			}
			return !BackoffSleep(ctx, time.Second)
		}
		if !BackoffSleep(ctx, poll) {
			return true
		}
		if t.rotated(file, offset) {
			if t.logger != nil {
				t.logger.Info("tail file rotated", "path", t.path)
			}
			return false
		}
	}
}

func (t *tailer) rotated(file *os.File, offset int64) bool {
	pathInfo, err := os.Stat(t.path)
	if err != nil {
		return false
	}
	fileInfo, err := file.Stat()
	if err != nil {
		return true
	}
	if !os.SameFile(pathInfo, fileInfo) {
		return true
	}
	return pathInfo.Size() < offset
}
