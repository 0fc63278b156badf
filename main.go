package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"netlag/config"
	"netlag/logging"
	"netlag/sim"
	"netlag/trace"
	"netlag/web"
)

// netlag 入口：启动模拟（服务端 + 客户端）与 HTTP/WebSocket 观察接口
func main() {
	var (
		cfgPath string
		addr    string
		logPath string
	)
	flag.StringVar(&cfgPath, "config", "", "scenario YAML file; empty uses built-in defaults")
	flag.StringVar(&addr, "addr", "", "listen address, overrides http.addr, e.g. :8080")
	flag.StringVar(&logPath, "log", "", "log file, overrides log.file; - for stderr")
	flag.Parse()

	if err := run(cfgPath, addr, logPath); err != nil {
		fmt.Fprintln(os.Stderr, "netlag:", err)
		os.Exit(1)
	}
}

func run(cfgPath, addr, logPath string) (err error) {
	cfg := config.Default()
	if cfgPath != "" {
		if cfg, err = config.Load(cfgPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	if logPath != "" {
		cfg.Log.File = logPath
	}

	if err := logging.InitLogger(cfg.Log.File, cfg.Log.Level); err != nil {
		return err
	}
	defer logging.SyncLogger()

	var tracer sim.Tracer
	var rec *trace.Recorder
	if cfg.Trace.Dir != "" {
		rec = trace.NewRecorder(cfg.Trace.Dir, cfg.Trace.Prefix)
		tracer = rec
		logging.Log.Infof("tracing broadcasts to %s", cfg.Trace.Dir)
	}

	hub := web.NewHub(cfg.HTTP.IntentRate, cfg.HTTP.IntentBurst)
	simulation, err := sim.NewSimulation(cfg, hub.Surface, tracer, nil)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}
	hub.Bind(simulation)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	simDone := make(chan error, 1)
	go func() { simDone <- simulation.Run(ctx) }()

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: web.NewAdmin(simulation, hub).Routes(cfg.HTTP.WebDir)}
	httpDone := make(chan error, 1)
	go func() {
		logging.Log.Infof("netlag listening on %s; open http://localhost%v/", cfg.HTTP.Addr, cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpDone <- err
		}
		close(httpDone)
	}()

	select {
	case <-ctx.Done():
		logging.Log.Info("Shutting down...")
	case err = <-httpDone:
		logging.Log.Errorf("listen: %v", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	err = multierr.Append(err, <-simDone)
	err = multierr.Append(err, hub.Close())
	if rec != nil {
		err = multierr.Append(err, rec.Close())
	}
	return err
}
