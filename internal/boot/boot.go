// Package boot holds the startup steps shared by the binaries: logger,
// store and bus construction plus the console banner.
package boot

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/stacktrader/server/internal/config"
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/persist"
	"github.com/stacktrader/server/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigPath returns flagPath, else $STACKTRADER_CONFIG, else the default.
func ConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(config.EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return "config/stacktrader.toml"
}

// NewLogger builds the process logger. With cfg.File set, entries are also
// written to a rotated JSON log file.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	log, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.File == "" {
		return log, nil
	}
	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), rotated, zapCfg.Level)
	return log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

// OpenStore connects the configured component store. The returned close
// function is never nil.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store.Client, func(), error) {
	if cfg.Store.Driver == "memory" {
		return store.NewClient(store.NewMemory(), cfg.Server.Namespace), func() {}, nil
	}
	db, err := persist.NewDB(ctx, cfg.Store, log)
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	if err := persist.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return store.NewClient(persist.NewComponentRepo(db), cfg.Server.Namespace), db.Close, nil
}

// OpenBus connects to NATS, or returns nil when the config asks for the
// in-process bus and the caller builds its own.
func OpenBus(cfg config.BusConfig, log *zap.Logger) (*net.NATS, error) {
	if cfg.Local {
		return nil, nil
	}
	return net.DialNATS(cfg, log.Named("bus"))
}

// ── Startup display helpers ────────────────────────────────────────

func PrintBanner(binary, serverName, ns string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[36;1m  │\033[0m  %-41s\033[36;1m│\033[0m\n", "stacktrader "+binary)
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(namespace: %s)\033[0m\n\n", serverName, ns)
}

func PrintSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func PrintStat(label, value string) {
	dotsLen := 42 - len(label) - len(value)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), value)
}

func PrintOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func PrintReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}
