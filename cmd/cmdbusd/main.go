package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/cmdbus/internal/command"
	"github.com/l1jgo/cmdbus/internal/config"
	"github.com/l1jgo/cmdbus/internal/core/event"
	coresys "github.com/l1jgo/cmdbus/internal/core/system"
	"github.com/l1jgo/cmdbus/internal/data"
	gonet "github.com/l1jgo/cmdbus/internal/net"
	"github.com/l1jgo/cmdbus/internal/persist"
	"github.com/l1jgo/cmdbus/internal/scene"
	"github.com/l1jgo/cmdbus/internal/scripting"
	"github.com/l1jgo/cmdbus/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              cmdbus  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m          命令分派 · 事件匯流排            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m服務:\033[0m %s\n\n", serverName)
}

// displayWidth counts CJK runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printSkip(msg string) {
	fmt.Printf("  \033[90m–\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main daemon logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/cmdbus.toml"
	if p := os.Getenv("CMDBUS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	undo := zap.ReplaceGlobals(log)
	defer undo()

	printBanner(cfg.Server.Name)

	// 3. Optional dispatch journal
	printSection("資料庫")
	var (
		journal    *persist.Journal
		journalSys *system.JournalSystem
	)
	if cfg.Database.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")

		version, err := persist.RunMigrations(ctx, db.Pool, log)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("資料庫遷移完成 (版本 %d)", version))

		journal = persist.NewJournal(cfg.Journal.MaxBuffered, log)
		journalSys = system.NewJournalSystem(journal, persist.NewJournalRepo(db), cfg.Journal.FlushEveryTicks, log)
	} else {
		printSkip("分派日誌已停用")
	}
	fmt.Println()

	// 4. Load manifest and scripts
	printSection("命令載入")
	manifest, err := data.LoadCommandManifest(cfg.Commands.Manifest)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	printStat("命令組", len(manifest.Sets))
	printStat("命令定義", manifest.Count())

	bus := event.Global()
	engine, err := scripting.NewEngine(cfg.Commands.ScriptsDir, bus, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer engine.Close()
	printOK("Lua 腳本載入完成")

	// 5. Scene, registry and sets
	sc := scene.New(log)
	started := time.Unix(cfg.Server.StartTime, 0)
	h := newHost(sc, engine, started, log)

	var opts []command.Option
	if journal != nil {
		h.journal = journal
		opts = append(opts, command.WithObserver(journal))
	}
	registry := h.buildRegistry(bus, manifest, opts...)
	command.SetGlobal(registry)
	registry.Init()
	printStat("已註冊標籤", registry.Len())

	h.buildSets(manifest)
	printStat("啟動命令組", h.activateOnStart(manifest))
	fmt.Println()

	// 6. Start feed server
	netServer, err := gonet.NewServer(cfg.Network, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	// 7. Create systems and register with runner
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer.Feed(), bus, cfg.Network.MaxPerTick, log))
	if journalSys != nil {
		runner.Register(journalSys)
	}
	runner.Register(system.NewCleanupSystem(sc))

	// 8. Start loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("服務就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	printReady(fmt.Sprintf("分派迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			netServer.Shutdown()
			h.deactivateAll()
			command.ResetGlobal()
			sc.Flush()
			if journalSys != nil {
				journalSys.Flush()
			}
			log.Info("服務已停止")
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
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

	return zapCfg.Build()
}
