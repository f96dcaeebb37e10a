// Command supervisor runs the pool-mining supervisor process: it keeps the
// configured stratum pools connected, feeds work to the compute backend,
// submits verified shares back, and exposes the monitor/admin WebSocket
// control planes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"m8msupervisor/internal/config"
	"m8msupervisor/internal/logging"
	"m8msupervisor/internal/miner"
	"m8msupervisor/internal/stratum"
	"m8msupervisor/internal/supervisor"
	"m8msupervisor/internal/ws"
)

var buildDate, buildTime string // set via -ldflags at release build time; empty in development builds

type options struct {
	ConfigPath string `short:"c" long:"config" description:"Path to the configuration file"`
	LogLevel   string `long:"log-level" description:"Log level (debug, info, warn, error)"`
	LogFormat  string `long:"log-format" description:"Log format (text, color, json)"`
	Quiet      bool   `short:"q" long:"quiet" description:"Quiet mode (errors only)"`
	Verbose    bool   `short:"v" long:"verbose" description:"Verbose mode (enable debug logs, dump effective config)"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, info, err := config.LoadWithInfo(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyCLIOverrides(cfg, opts)

	log := logging.NewFromConfig(cfg.Logging)
	logging.Set(log)
	logging.DumpConfig(log, "effective configuration", cfg)

	log.Info("starting supervisor",
		"algo", cfg.Algo,
		"pools", len(cfg.Pools),
		"monitor_port", cfg.Monitor.Port,
		"admin_port", cfg.Admin.Port)

	if err := run(cfg, info, log, opts.ConfigPath); err != nil {
		log.Error("exited with error", "error", err)
		os.Exit(1)
	}
}

func applyCLIOverrides(cfg *config.Config, opts options) {
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if opts.Quiet {
		cfg.Logging.Quiet = true
	}
	if opts.Verbose {
		cfg.Logging.Verbose = true
	}
}

func run(cfg *config.Config, info *config.Info, log *slog.Logger, configPath string) error {
	pools := make([]stratum.PoolConfig, len(cfg.Pools))
	for i, p := range cfg.Pools {
		pools[i] = p.ToStratum()
	}

	stratSup := stratum.NewSupervisor(pools, stratum.DialTCP(10*time.Second), cfg.ReconnectBackoff)
	m := miner.NewSim()
	stats := supervisor.NewStats()
	ext := supervisor.NewExtensions(map[string]string{})

	build := ws.BuildInfo{Protocol: 1, Date: buildDate, Time: buildTime, Message: "m8msupervisor"}

	monitorDispatcher, monitorPush := newDispatcher()
	adminDispatcher, adminPush := newDispatcher()

	sup := supervisor.New(
		supervisor.Config{
			PollPeriod:        cfg.PollPeriod,
			InactivityCeiling: cfg.EffectiveInactivityCeiling(),
		},
		log,
		nil,
		stratSup,
		m,
		stats,
		supervisor.NewWSServer("monitor", config.DefaultMonitorResource, config.DefaultMonitorSubProtocol, monitorDispatcher, monitorPush),
		supervisor.NewWSServer("admin", config.DefaultAdminResource, config.DefaultAdminSubProtocol, adminDispatcher, adminPush),
	)
	sup.SetAlgo(cfg.Algo)

	caps := ws.Capabilities{
		Miner:       sup,
		Pools:       sup,
		Performance: sup,
		Shares:      stats,
		Extensions:  ext,
		Uptime:      sup,
		Build:       build,
	}
	ws.RegisterMonitorCommands(monitorDispatcher, caps)

	adminCaps := caps
	adminCaps.Config = info
	ws.RegisterMonitorCommands(adminDispatcher, adminCaps)
	ws.RegisterAdminCommands(adminDispatcher, adminCaps)

	monitorAddr := net.JoinHostPort("", strconv.Itoa(cfg.Monitor.Port))
	adminAddr := net.JoinHostPort("", strconv.Itoa(cfg.Admin.Port))
	if err := sup.Listen(monitorAddr, adminAddr); err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	log.Info("listening", "monitor", monitorAddr, "admin", adminAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutdown requested, closing connections")
		sup.RequestShutdown()
		return nil
	})
	g.Go(func() error {
		err := sup.Run()
		stop()
		return err
	})

	if watchErr := config.Watch(ctx, configPath, func(newCfg *config.Config) {
		log.Info("reloading logging configuration")
		logging.Set(logging.NewFromConfig(newCfg.Logging))
	}, log); watchErr != nil {
		log.Warn("config watcher failed to start", "error", watchErr)
	}

	return g.Wait()
}

func newDispatcher() (*ws.Dispatcher, *ws.PushManager) {
	push := ws.NewPushManager(map[string]int{
		"scanTime":     1,
		"deviceShares": 8,
		"poolShares":   1,
		"poolStats":    1,
	})

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)
	limiterFor := func(client string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[client]
		if !ok {
			l = rate.NewLimiter(rate.Limit(20), 40)
			limiters[client] = l
		}
		return l
	}

	return ws.NewDispatcher(push, limiterFor), push
}
