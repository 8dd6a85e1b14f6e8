package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/stacktrader/server/internal/boot"
	"github.com/stacktrader/server/internal/config"
	"github.com/stacktrader/server/internal/data"
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/resource"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFlag := flag.String("config", "", "path to the TOML config")
	universePath := flag.String("universe", "config/universe.yaml", "universe parameter file")
	seed := flag.Int64("seed", 0, "random seed, 0 picks one from the clock")
	flag.Parse()

	cfg, err := config.Load(boot.ConfigPath(*cfgFlag))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Bus.Local {
		return errors.New("genesis publishes over NATS; bus.local is not supported")
	}
	log, err := boot.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	params, err := data.LoadUniverse(*universePath)
	if err != nil {
		return err
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	boot.PrintBanner("genesis", cfg.Server.Name, cfg.Server.Namespace)

	bus, err := boot.OpenBus(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := &genesis{
		bus:     bus,
		ns:      cfg.Server.Namespace,
		shard:   params.ShardName,
		limiter: rate.NewLimiter(rate.Limit(cfg.Genesis.RatePerSecond), cfg.Genesis.Burst),
	}
	start := time.Now()
	rng := rand.New(rand.NewSource(*seed))
	for i := range params.Asteroids {
		if err := g.publish(ctx, params.Asteroid(rng, i)); err != nil {
			return err
		}
	}
	if err := g.publish(ctx, params.Starbase()); err != nil {
		return err
	}

	boot.PrintSection("universe " + params.ShardName)
	boot.PrintStat("seed", fmt.Sprintf("%d", *seed))
	boot.PrintStat("entities", humanize.Comma(int64(g.entities)))
	boot.PrintStat("component sets", humanize.Comma(int64(g.calls)))
	boot.PrintStat("payload", humanize.Bytes(g.bytes))
	boot.PrintStat("elapsed", time.Since(start).Round(time.Millisecond).String())
	fmt.Println()
	boot.PrintOK("genesis complete")

	log.Info("genesis complete",
		zap.String("shard", params.ShardName),
		zap.Int("entities", g.entities),
		zap.Int("calls", g.calls),
		zap.Int64("seed", *seed),
	)
	return nil
}

// genesis publishes set calls for seeded entities at a bounded rate.
type genesis struct {
	bus      net.Bus
	ns       string
	shard    string
	limiter  *rate.Limiter
	entities int
	calls    int
	bytes    uint64
}

func (g *genesis) publish(ctx context.Context, s data.Seed) error {
	entity := resource.EntityRID(g.ns, g.shard, s.Entity)
	for _, c := range s.Components {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		body, err := resource.CallWith(c.Value)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", s.Entity, c.Name, err)
		}
		subject := resource.Set(resource.ComponentRID(entity, c.Name)).Subject()
		if err := g.bus.Publish(subject, body); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
		g.calls++
		g.bytes += uint64(len(body))
	}
	g.entities++
	return nil
}
