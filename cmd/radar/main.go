package main

import (
	"context"
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
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/radar"
	"github.com/stacktrader/server/internal/scripting"
	"github.com/stacktrader/server/internal/store"
	"github.com/stacktrader/server/internal/system"
	"github.com/stacktrader/server/internal/world"
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

	// 1. Load config
	cfg, err := config.Load(boot.ConfigPath(*cfgFlag))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := boot.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	boot.PrintBanner("radar", cfg.Server.Name, cfg.Server.Namespace)

	// 3. Component store
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Bus. The in-process bus runs the gateway and the frame scheduler
	// in this binary; it is driven by the tick loop.
	boot.PrintSection("bus")
	runner := coresys.NewRunner()
	reg := dispatch.Registration{
		Name:       cfg.Radar.SystemName,
		Framerate:  cfg.Radar.Framerate,
		Components: cfg.Radar.Components,
	}
	var bus net.Bus
	if cfg.Bus.Local {
		local := net.NewLocal()
		bus = local
		closeGateway, err := embedGateway(ctx, cfg, st, local, reg, runner, log)
		if err != nil {
			return err
		}
		defer closeGateway()
		boot.PrintOK("local bus with embedded gateway")
	} else {
		nc, err := boot.OpenBus(cfg.Bus, log)
		if err != nil {
			return fmt.Errorf("bus: %w", err)
		}
		defer nc.Close()
		bus = nc
		boot.PrintOK("connected to " + cfg.Bus.URL)
	}
	fmt.Println()

	// 5. Radar actor
	cache := world.NewPositions()
	radarSys := radar.NewSystem(st, bus, cache, log)
	disp := dispatch.NewDispatcher(dispatch.NewParser(cfg.Server.Namespace, reg.Name), bus, radarSys, reg, log)
	subs, err := disp.Serve(ctx, cfg.Bus.QueueGroup)
	if err != nil {
		return fmt.Errorf("serve radar: %w", err)
	}
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	// 6. Housekeeping systems
	runner.Register(system.NewRemovedSweepSystem(radarSys, cfg.Radar.RemovedTTL))

	boot.PrintSection("radar")
	boot.PrintStat("framerate", fmt.Sprintf("%d/s", reg.Framerate))
	boot.PrintStat("components", strings.Join(reg.Components, ","))
	boot.PrintStat("removed ttl", cfg.Radar.RemovedTTL.String())
	fmt.Println()
	boot.PrintReady("radar " + reg.Name + " listening")

	log.Info("radar started",
		zap.String("system", reg.Name),
		zap.String("queue", cfg.Bus.QueueGroup),
		zap.Bool("local_bus", cfg.Bus.Local),
	)

	// 7. Tick loop until a shutdown signal
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
	log.Info("radar stopped")
	return err
}

// embedGateway serves the resource gateway and the frame scheduler on the
// local bus and registers the tick systems that drive them.
func embedGateway(ctx context.Context, cfg *config.Config, st *store.Client, local *net.Local, reg dispatch.Registration, runner *coresys.Runner, log *zap.Logger) (func(), error) {
	engine, err := scripting.NewEngine(cfg.Gateway.ScriptsDir, log.Named("scripting"))
	if err != nil {
		return nil, err
	}
	svc := gateway.NewService(st, local, engine, cfg.Gateway.AccessTokenHash, log)
	if _, err := svc.Serve(ctx, "gateway"); err != nil {
		engine.Close()
		return nil, fmt.Errorf("serve gateway: %w", err)
	}

	runner.Register(system.NewBusDrainSystem(local, 16))
	if cfg.Scheduler.Frames {
		runner.Register(system.NewFrameSystem(st, local, reg, cfg.Scheduler.Shards, log.Named("frames")))
	}
	if cfg.Reset.Enabled {
		runner.Register(system.NewContactResetSystem(local, cfg.Server.Namespace, cfg.Scheduler.Shards, cfg.Reset.Every, log.Named("reset")))
	}
	return engine.Close, nil
}
