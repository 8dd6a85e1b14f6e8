package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stacktrader/server/internal/boot"
	"github.com/stacktrader/server/internal/config"
	coresys "github.com/stacktrader/server/internal/core/system"
	"github.com/stacktrader/server/internal/dispatch"
	"github.com/stacktrader/server/internal/gateway"
	"github.com/stacktrader/server/internal/scripting"
	"github.com/stacktrader/server/internal/system"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFlag := flag.String("config", "", "path to the TOML config")
	flag.Parse()

	cfg, err := config.Load(boot.ConfigPath(*cfgFlag))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Bus.Local {
		return errors.New("gateway needs a NATS bus; run cmd/radar for the single process mode")
	}

	log, err := boot.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	boot.PrintBanner("gateway", cfg.Server.Name, cfg.Server.Namespace)

	boot.PrintSection("store")
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	st, closeStore, err := boot.OpenStore(startCtx, cfg, log)
	cancelStart()
	if err != nil {
		return err
	}
	defer closeStore()
	boot.PrintOK(cfg.Store.Driver + " store ready")
	fmt.Println()

	boot.PrintSection("bus")
	bus, err := boot.OpenBus(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	defer bus.Close()
	boot.PrintOK("connected to " + cfg.Bus.URL)
	fmt.Println()

	boot.PrintSection("access")
	engine, err := scripting.NewEngine(cfg.Gateway.ScriptsDir, log.Named("scripting"))
	if err != nil {
		return err
	}
	defer engine.Close()
	tokenState := "open"
	if cfg.Gateway.AccessTokenHash != "" {
		tokenState = "required"
	}
	boot.PrintStat("scripts", cfg.Gateway.ScriptsDir)
	boot.PrintStat("call token", tokenState)
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := gateway.NewService(st, bus, engine, cfg.Gateway.AccessTokenHash, log)
	subs, err := svc.Serve(ctx, "gateway")
	if err != nil {
		return fmt.Errorf("serve gateway: %w", err)
	}
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	// Scheduler: frames for the radar actor and the periodic contact reset.
	runner := coresys.NewRunner()
	boot.PrintSection("scheduler")
	if cfg.Scheduler.Frames {
		reg := dispatch.Registration{
			Name:       cfg.Radar.SystemName,
			Framerate:  cfg.Radar.Framerate,
			Components: cfg.Radar.Components,
		}
		runner.Register(system.NewFrameSystem(st, bus, reg, cfg.Scheduler.Shards, log.Named("frames")))
		boot.PrintStat("frames", fmt.Sprintf("%s @ %d/s", reg.Name, reg.Framerate))
	}
	if cfg.Reset.Enabled {
		runner.Register(system.NewContactResetSystem(bus, cfg.Server.Namespace, cfg.Scheduler.Shards, cfg.Reset.Every, log.Named("reset")))
		boot.PrintStat("contact reset", fmt.Sprintf("every %d ticks", cfg.Reset.Every))
	}
	boot.PrintStat("shards", strings.Join(cfg.Scheduler.Shards, ","))
	fmt.Println()
	boot.PrintReady("gateway listening")

	log.Info("gateway started", zap.String("namespace", cfg.Server.Namespace))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx, cfg.Scheduler.Period)
	})
	g.Go(func() error {
		select {
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	err = g.Wait()
	log.Info("gateway stopped")
	return err
}
