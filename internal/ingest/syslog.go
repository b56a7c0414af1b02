package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"sshguard/internal/config"
)

// StartSyslog listens for forwarded syslog messages. TCP framing is newline
// delimited; octet-counted framing is not supported.
func StartSyslog(ctx context.Context, cfg *config.Manager, em *Emitter, logger *slog.Logger) {
	current := cfg.Get().Ingest.Syslog
	if !current.Enabled {
		if logger != nil {
			logger.Info("syslog ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("syslog ingest enabled", "udp_addr", current.UDPAddr, "tcp_addr", current.TCPAddr)
	}
	if current.UDPAddr != "" {
		conn, err := net.ListenPacket("udp", current.UDPAddr)
		if err != nil {
			if logger != nil {
				logger.Error("syslog udp listen error", "err", err)
			}
		} else {
			go serveUDP(ctx, conn, em, logger)
		}
	}
	if current.TCPAddr != "" {
		ln, err := net.Listen("tcp", current.TCPAddr)
		if err != nil {
			if logger != nil {
				logger.Error("syslog tcp listen error", "err", err)
			}
		} else {
			go serveTCP(ctx, ln, em, logger)
		}
	}
}

func serveUDP(ctx context.Context, conn net.PacketConn, em *Emitter, logger *slog.Logger) {
	defer conn.Close()
	buf := make([]byte, 8192)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if logger != nil {
				logger.Warn("syslog udp read error", "err", err)
			}
			continue
		}
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			em.EmitLine(ctx, SourceSyslog, line)
		}
	}
}

func serveTCP(ctx context.Context, ln net.Listener, em *Emitter, logger *slog.Logger) {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if logger != nil {
				logger.Warn("syslog tcp accept error", "err", err)
			}
			continue
		}
		go handleTCPConn(ctx, conn, em, logger)
	}
}

func handleTCPConn(ctx context.Context, conn net.Conn, em *Emitter, logger *slog.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		em.EmitLine(ctx, SourceSyslog, scanner.Text())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && logger != nil {
		logger.Warn("syslog tcp scanner error", "err", err)
	}
}
