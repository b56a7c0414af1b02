package ingest

import (
	"bufio"
	"context"
	"log/slog"
	"os/exec"
	"time"

	"sshguard/internal/config"
)

func journalArgs(units []string) []string {
	args := []string{"-f", "-o", "json", "-n", "0"}
	for _, u := range units {
		args = append(args, "-u", u)
	}
	return args
}

// StartJournal follows journald through journalctl, restarting it with a
// backoff when it exits.
func StartJournal(ctx context.Context, cfg *config.Manager, em *Emitter, logger *slog.Logger) {
	current := cfg.Get().Ingest.Journal
	if !current.Enabled {
		if logger != nil {
			logger.Info("journal ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("journal ingest enabled", "command", current.Command, "units", current.Units)
	}
	go func() {
		backoff := time.Second
		for {
			err := runJournal(ctx, current.Command, journalArgs(current.Units), em)
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("journalctl exited", "err", err, "retry_in", backoff)
			}
			if !BackoffSleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func runJournal(ctx context.Context, command string, args []string, em *Emitter) error {
	cmd := exec.CommandContext(ctx, command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		em.EmitLine(ctx, SourceJournal, scanner.Text())
	}
	return cmd.Wait()
}
