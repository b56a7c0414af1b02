package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"sshguard/internal/alerts"
	"sshguard/internal/api"
	"sshguard/internal/config"
	"sshguard/internal/engine"
	"sshguard/internal/geo"
	"sshguard/internal/ingest"
	"sshguard/internal/logging"
	"sshguard/internal/metrics"
	"sshguard/internal/model"
	"sshguard/internal/monitor"
	"sshguard/internal/report"
	"sshguard/internal/storage"
	"sshguard/internal/users"
)

var version = "dev"

const usage = `usage: sshguard <command> [flags]

commands:
  monitor [-config path]            watch configured sources and raise alerts
  parse-log [-config path] <file>   analyse an auth log once and print a report
  config [-config path] [-out file] print or write the effective configuration
  version                           print the build version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "monitor":
		err = runMonitor(os.Args[2:])
	case "parse-log":
		err = runParseLog(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Println("sshguard", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "sshguard:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Manager, error) {
	if path == "" {
		return config.NewStaticManager(config.DefaultConfig()), nil
	}
	mgr, err := config.NewManager(config.ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return mgr, nil
}

func newClassifier(cfg *config.Config, logger *slog.Logger) (geo.Classifier, func()) {
	if !cfg.GeoIP.Enabled {
		logger.Info("geoip disabled")
		return nil, func() {}
	}
	c := geo.NewMMDBClassifier(cfg.GeoIP.Paths, cfg.GeoIP.CacheSize, logger)
	return c, func() { _ = c.Close() }
}

func loadUsers(cfg *config.Config, logger *slog.Logger) users.Registry {
	reg, err := users.LoadPasswd(cfg.Users.PasswdPath)
	if err != nil {
		logger.Warn("user registry unavailable, every username is treated as unknown", "path", cfg.Users.PasswdPath, "err", err)
		return users.NewSnapshot()
	}
	logger.Info("user registry loaded", "path", cfg.Users.PasswdPath, "users", reg.Len())
	return reg
}

func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	_ = fs.Parse(args)

	mgr, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting sshguard", "version", version, "config", mgr.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier, closeGeo := newClassifier(cfg, logger)
	defer closeGeo()
	if gc, ok := classifier.(*geo.GeoClassifier); ok && !gc.Warm() {
		logger.Warn("geoip database not found, countries degrade to UNKNOWN", "paths", cfg.GeoIP.Paths)
	}

	collectors := metrics.NewCollectors()
	eng := engine.NewEngine(cfg, logger.With("component", "engine"), classifier, loadUsers(cfg, logger))

	sink, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if sink != nil {
		defer sink.Close()
		if err := sink.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		logger.Info("alert storage enabled", "driver", cfg.Storage.Driver)
	}

	alertStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	tally := metrics.NewTally(0)
	deps := monitor.Deps{Alerts: alertStore, Tally: tally, Metrics: collectors}
	if sink != nil {
		deps.Sink = sink
	}
	mon := monitor.New(eng, cfg, deps, logger.With("component", "monitor"))

	go mgr.Watch(3*time.Second, func(next *config.Config) {
		eng.UpdateConfig(next)
		mon.SetConfig(next)
		logger.Info("config reloaded", "path", mgr.Path())
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	attempts := make(chan model.ConnectionAttempt, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, attempts)

	ingestLogger := logger.With("component", "ingest")
	em := ingest.NewEmitter(mgr, attempts, collectors, ingestLogger)
	ingest.StartFileTail(ctx, mgr, em, ingestLogger)
	ingest.StartSyslog(ctx, mgr, em, ingestLogger)
	ingest.StartJournal(ctx, mgr, em, ingestLogger)
	ingest.StartKafka(ctx, mgr, em, ingestLogger)
	ingest.StartREST(ctx, mgr, em, ingestLogger)

	apiDeps := api.Deps{
		Config:  mgr,
		Engine:  eng,
		Monitor: mon,
		Alerts:  alertStore,
		Tally:   tally,
		Metrics: collectors,
		Version: version,
	}
	if sink != nil {
		apiDeps.Sink = sink
	}
	api.Start(ctx, mgr, api.NewServer(apiDeps, logger.With("component", "api")), logger)

	mon.Run(ctx)
	logger.Info("shutdown complete")
	return nil
}

func runParseLog(args []string) error {
	fs := flag.NewFlagSet("parse-log", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	noColor := fs.Bool("no-color", false, "Disable coloured severity labels")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("parse-log needs exactly one log file")
	}

	mgr, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger := logging.NewLoggerTo(os.Stderr, cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := ingest.ParseFile(ctx, fs.Arg(0), cfg, logger)
	if err != nil {
		return err
	}

	var opts []engine.Option
	if cfg.Ingest.Parser.UseLogTime {
		// analyse relative to the newest log line rather than wall time
		if newest := latest(res.Attempts); !newest.IsZero() {
			opts = append(opts, engine.WithClock(func() time.Time { return newest }))
		}
	}
	classifier, closeGeo := newClassifier(cfg, logger)
	defer closeGeo()
	eng := engine.NewEngine(cfg, logger, classifier, loadUsers(cfg, logger), opts...)
	for _, att := range res.Attempts {
		eng.Append(att)
	}
	found := eng.Analyze()

	printer := report.NewStdoutPrinter()
	if *noColor {
		printer = report.NewPrinter(os.Stdout, false)
	}
	printer.PrintBatch(len(res.Attempts), found)
	return nil
}

// runConfig prints the configuration with defaults applied, or writes it to
// -out as YAML or JSON depending on the extension.
func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	out := fs.String("out", "", "Write the configuration to this file instead of stdout")
	_ = fs.Parse(args)

	cfg, err := config.LoadOrDefault(config.ResolvePath(*configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *out != "" {
		if err := config.Save(*out, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func latest(attempts []model.ConnectionAttempt) time.Time {
	var out time.Time
	for _, a := range attempts {
		if a.Timestamp.After(out) {
			out = a.Timestamp
		}
	}
	return out
}
