package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warheadgo/server/internal/config"
	coresys "github.com/warheadgo/server/internal/core/system"
	"github.com/warheadgo/server/internal/data"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/persist"
	"github.com/warheadgo/server/internal/scripting"
	"github.com/warheadgo/server/internal/system"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              warhead mapd                 \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m         world map and grid engine         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mrealm:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Server.StartTime = time.Now().Unix()

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations
	printSection("database")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL connected")

	version, err := db.RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK(fmt.Sprintf("schema at version %d", version))

	// 4. Create repositories
	store := persist.NewStore(db)
	firstInstance, err := store.Instances.NextInstanceID(ctx)
	if err != nil {
		return fmt.Errorf("instance ids: %w", err)
	}
	if firstInstance < cfg.Instance.FirstInstanceID {
		firstInstance = cfg.Instance.FirstInstanceID
	}
	fmt.Println()

	// 5. Load static data tables
	printSection("data")
	layout := grid.Layout{
		GridsPerSide: cfg.World.GridsPerSide,
		GridSize:     cfg.World.GridSize,
		CellsPerGrid: cfg.World.CellsPerGrid,
		Resolution:   cfg.World.Resolution,
	}
	dataPath := func(name string) string { return filepath.Join(cfg.Maps.DataDir, name) }

	mapTable, err := data.LoadMapTable(dataPath("map_list.yaml"))
	if err != nil {
		return fmt.Errorf("map list: %w", err)
	}
	printStat("maps", mapTable.Count())

	spawnTable, err := data.LoadSpawnTable(dataPath("spawn_list.yaml"), layout)
	if err != nil {
		return fmt.Errorf("spawn list: %w", err)
	}
	printStat("spawns", spawnTable.Count())

	goTable, err := data.LoadGameObjectTable(dataPath("gameobject_list.yaml"))
	if err != nil {
		return fmt.Errorf("gameobject list: %w", err)
	}
	printStat("game object templates", goTable.Count())

	scriptTable, err := data.LoadMapScriptTable(dataPath("map_scripts.yaml"))
	if err != nil {
		return fmt.Errorf("map scripts: %w", err)
	}
	printStat("map scripts", scriptTable.Count())

	liquids, err := data.LoadLiquidTypeTable(dataPath("liquid_types.yaml"))
	if err != nil {
		return fmt.Errorf("liquid types: %w", err)
	}
	printStat("liquid types", liquids.Count())
	fmt.Println()

	// 6. Init Lua scripting engine
	printSection("scripting")
	luaEngine, err := scripting.NewEngine(cfg.Maps.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	printOK("Lua engine ready")
	fmt.Println()

	// 7. Create map manager
	deps := maps.Deps{
		Log:    log,
		Layout: layout,
		Tiles: maps.FileTileLoader{
			Dir:         cfg.Maps.TileDir,
			Layout:      layout.Normalize(),
			LiquidTypes: liquids.Lookup,
		},
		Spawns:          spawnTable,
		GameObjects:     goTable,
		Scripts:         scriptTable,
		Respawns:        store.Respawns,
		Corpses:         store.Corpses,
		Instances:       store.Instances,
		Zones:           mapTable,
		Lua:             luaEngine,
		InstanceScripts: luaEngine,
		GridUnload:      cfg.Maps.GridUnload,
		GridUnloadDelay: cfg.Maps.GridUnloadDelay,
		Visibility: maps.VisibilityDistances{
			Continent:    cfg.Visibility.Continent,
			Instance:     cfg.Visibility.Instance,
			Battleground: cfg.Visibility.Battleground,
		},
		InstanceUnloadDelay: int(cfg.Instance.UnloadDelay / time.Millisecond),
		BonesDecay:          cfg.Corpse.BonesDecay,
		CorpseDecay:         cfg.Corpse.CorpseDecay,
	}
	mgr := maps.NewManager(deps, mapTable, maps.ManagerConfig{
		Workers:             cfg.Maps.UpdateWorkers,
		MaxInstancesPerHour: cfg.Instance.MaxPerHour,
		FirstInstanceID:     firstInstance,
	})

	// 8. Pre-warm base maps
	printSection("maps")
	for _, id := range cfg.Maps.PreloadMaps {
		m, err := mgr.CreateBaseMap(ctx, id)
		if err != nil {
			return fmt.Errorf("preload map %d: %w", id, err)
		}
		if cfg.Maps.LoadAllGrids {
			m.LoadAllCells()
		}
		printOK(fmt.Sprintf("map %d loaded", id))
	}
	fmt.Println()

	// 9. Create systems and register with runner
	runner := coresys.NewRunner()
	persistSys := system.NewRespawnPersistSystem(mgr, store, log, cfg.Maps.PersistEvery)
	runner.Register(system.NewMapUpdateSystem(mgr))
	runner.Register(system.NewCorpseSweepSystem(mgr, cfg.Corpse.SweepInterval))
	runner.Register(persistSys)
	printStat("systems", runner.Len())

	// 10. Start update loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Maps.TickRate)
	defer ticker.Stop()

	printSection("ready")
	printReady(fmt.Sprintf("update loop started (tick: %s)", cfg.Maps.TickRate))
	fmt.Println()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			runner.Tick(now.Sub(last))
			last = now
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			mgr.UnloadAll()
			if err := persistSys.FlushNow(); err != nil {
				log.Error("final map state flush failed", zap.Error(err))
			}
			log.Info("map server stopped")
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
