package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"job_distributor/internal/channel"
	"job_distributor/internal/config"
	"job_distributor/internal/distribution"
	"job_distributor/internal/ingest"
	"job_distributor/internal/lock"
	"job_distributor/internal/model"
	"job_distributor/internal/notify"
	"job_distributor/internal/publish"
	"job_distributor/internal/rawcache"
	"job_distributor/internal/scheduler"
	"job_distributor/internal/source"
	"job_distributor/internal/storage"
	"job_distributor/internal/tracker"
	"job_distributor/migrations"
)

const usage = `Usage: distributor <command> [args]

Commands:
  run                          Run the sync scheduler and performance tracker
  ingest <connection id>       Run one ingestion pass
  remap <connection id>        Rebuild offers from cached raw records
  allocate <campaign id>       Allocate budget across offers and channels
  publish <campaign id> [ch..] Publish a campaign to its channels
  control <campaign id> <pause|resume|delete>
  track                        Run one performance update`

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.dispatch(ctx, args[0], args[1:]); err != nil {
		log.Error(args[0], "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.SQL
	redis    *redis.Client
	pipeline *ingest.Pipeline
	engine   *distribution.Engine
	orch     *publish.Orchestrator
	tracker  *tracker.Tracker
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	if cfg.DatabaseDriver == migrations.SQLite {
		if dir := filepath.Dir(cfg.DatabaseURL); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	store, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, log: log, store: store}

	opts := ingest.Options{
		BatchSize: cfg.BatchSize,
		Adapters: func(conn *model.Connection) (source.Adapter, error) {
			return source.New(conn, source.Options{Timeout: cfg.FetchTimeout, Log: log})
		},
	}
	if cfg.RedisURL != "" {
		rdb, err := rawcache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = rdb
		opts.Guard = lock.NewRedis(rdb, "", 0)
		opts.Cache = rawcache.New(rdb, cfg.RawCacheTTL)
	}
	a.pipeline = ingest.NewPipeline(store, opts, log)

	catalog, err := channel.LoadCatalog(cfg.ChannelCatalog)
	if err != nil {
		a.close()
		return nil, err
	}
	registry := channel.NewRegistry(catalog, store, channel.Options{
		Timeout:         cfg.FetchTimeout,
		AllowSimulation: cfg.ChannelSimulation,
		Settings:        cfg.ChannelSettings(),
		Log:             log,
	})
	a.engine = distribution.New(store, catalog, log)
	a.orch = publish.New(store, registry, publish.DefaultTimeout, log)

	sinks := tracker.Sinks{tracker.LogSink{Log: log}}
	if cfg.TelegramAlerts() {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.AlertChats, log)
		if err != nil {
			a.close()
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	a.tracker = tracker.New(store, registry, sinks, log)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.store.Close()
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "run":
		return a.run(ctx)
	case "ingest", "remap":
		id, err := idArg(args, "connection id")
		if err != nil {
			return err
		}
		var res *ingest.RunResult
		if cmd == "ingest" {
			res, err = a.pipeline.Ingest(ctx, id)
		} else {
			res, err = a.pipeline.Remap(ctx, id)
		}
		if err != nil {
			return err
		}
		return printJSON(res)
	case "allocate":
		id, err := idArg(args, "campaign id")
		if err != nil {
			return err
		}
		res, err := a.engine.Allocate(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(res)
	case "publish":
		id, err := idArg(args, "campaign id")
		if err != nil {
			return err
		}
		sum, err := a.orch.PublishCampaign(ctx, id, args[1:])
		if err != nil {
			return err
		}
		printSummary(sum)
		return nil
	case "control":
		id, err := idArg(args, "campaign id")
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return fmt.Errorf("missing action")
		}
		sum, err := a.orch.Control(ctx, id, publish.Action(strings.ToLower(args[1])))
		if err != nil {
			return err
		}
		printSummary(sum)
		return nil
	case "track":
		rep, err := a.tracker.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(rep)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) run(ctx context.Context) error {
	sched := scheduler.New(a.store, a.pipeline, a.log)
	sched.SetTickInterval(a.cfg.SyncTick)

	cr := tracker.NewCron(a.tracker, a.cfg.TrackerSpec, a.log)
	if err := cr.Start(ctx); err != nil {
		return err
	}

	a.log.Info("starting distributor", "driver", a.cfg.DatabaseDriver, "sync_tick", a.cfg.SyncTick, "tracker_spec", a.cfg.TrackerSpec)
	sched.Run(ctx)

	cr.Stop()
	a.log.Info("distributor stopped")
	return nil
}

func idArg(args []string, what string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing %s", what)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, args[0], err)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(sum *publish.Summary) {
	fmt.Printf("campaign %d: %d/%d channels succeeded\n", sum.CampaignID, sum.Successful, sum.TotalChannels)
	for _, r := range sum.Results {
		switch {
		case r.Success:
			line := "  " + r.ChannelID + ": ok"
			if r.Result != nil && r.Result.ExternalCampaignID != "" {
				line += " (" + r.Result.ExternalCampaignID + ")"
			}
			if r.Warning != "" {
				line += ", warning: " + r.Warning
			}
			fmt.Println(line)
		case r.Skipped:
			fmt.Printf("  %s: skipped: %v\n", r.ChannelID, r.Err)
		default:
			fmt.Printf("  %s: failed: %v\n", r.ChannelID, r.Err)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
