package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"moto-sim/internal/api"
	"moto-sim/internal/config"
	"moto-sim/internal/game"
	"moto-sim/internal/level"
	"moto-sim/internal/replay"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  MOTO SIM - GO ENGINE")
	log.Println("🎮  Live runs + replays")
	log.Println("🎮 ================================")

	appConfig := config.Load()
	serverCfg := appConfig.Server
	port := strconv.Itoa(serverCfg.Port)

	levelPath := getEnvWithDefault("LEVEL_PATH", "levels/default.json")
	if len(os.Args) > 1 {
		levelPath = os.Args[1]
	}

	src, err := level.LoadFile(levelPath)
	if err != nil {
		log.Fatalf("❌ Failed to load level %s: %v", levelPath, err)
	}
	lvl, fromCache := level.LoadCompiled(src, level.NewCache(appConfig.Spatial.CacheDir), level.CompileOptions{
		MaxDepth: appConfig.Spatial.BSPMaxDepth,
	})
	if lvl.ErrorCount > 0 {
		log.Printf("⚠️ Level %s has %d geometry errors", lvl.ID, lvl.ErrorCount)
	}
	api.UpdateLevelErrors(lvl.ErrorCount)
	log.Printf("🧱 Level %q (%s): %d blocks, cached=%v", lvl.Name, lvl.ID, len(lvl.Blocks), fromCache)
	log.Printf("🎮 Config: %d FPS, %d Hz physics, %.0f replay snapshots/s",
		appConfig.Simulation.FrameRate, appConfig.Simulation.StepRate, appConfig.Replay.SampleRate)

	engine := game.NewEngine(appConfig)
	engine.SetMetrics(api.EngineMetrics{})
	limits := engine.GetLimits()
	log.Printf("🛡️ Snapshot limits: %d entities, %d zones, %d blocks, %d messages",
		limits.MaxEntities, limits.MaxZones, limits.MaxBlocks, limits.MaxMessages)

	// Start event journal
	opts := game.Options{
		Player:    getEnvWithDefault("PLAYER_NAME", "player"),
		AutoSpeed: getEnvFloat("REPLAY_AUTO_SPEED", 0),
	}
	if serverCfg.JournalPath != "" {
		if err := engine.StartJournal(serverCfg.JournalPath); err != nil {
			log.Printf("⚠️ Event journal disabled: %v", err)
		} else {
			opts.Journal = engine.Journal()
			log.Printf("📝 Event journal: %s", serverCfg.JournalPath)
		}
	}

	if ghostPath := os.Getenv("GHOST_PATH"); ghostPath != "" {
		ghost, err := replay.ReadFile(ghostPath)
		if err != nil {
			log.Printf("⚠️ Ghost disabled: %v", err)
		} else {
			opts.Ghost = ghost
			log.Printf("📼 Ghost: %s (%.2fs)", ghost.Player, ghost.Duration())
		}
	}

	session, err := newSession(lvl, appConfig, opts)
	if err != nil {
		log.Fatalf("❌ Failed to create session: %v", err)
	}

	replayDir := appConfig.Replay.Dir
	engine.OnRunOver(func(rp *replay.Replay) {
		saveReplay(replayDir, rp)
	})
	engine.Load(session)

	// Start debug server
	debugCfg := api.DefaultObservabilityConfig()
	if serverCfg.DebugListenAddr != "" {
		debugCfg.ListenAddr = serverCfg.DebugListenAddr
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(debugCfg); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	server := api.NewServer(engine, serverCfg)

	// Start game engine
	engine.Start()
	log.Println("✅ Game Engine started")

	stopStats := make(chan struct{})
	go journalStatsLoop(engine.Journal(), stopStats)

	// Start API server in goroutine
	go func() {
		addr := ":" + port
		log.Printf("🌐 API server on http://localhost%s", addr)
		if serverCfg.ControlToken == "" {
			log.Println("⚠️ Control routes are unauthenticated (set CONTROL_TOKEN to protect them)")
		}
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	close(stopStats)
	engine.Stop()
	engine.StopJournal()
	log.Println("👋 Goodbye!")
}

// newSession plays REPLAY_PATH when set, otherwise starts a live run.
func newSession(lvl *level.Compiled, cfg config.AppConfig, opts game.Options) (*game.Session, error) {
	replayPath := os.Getenv("REPLAY_PATH")
	if replayPath == "" {
		return game.NewLiveSession(lvl, cfg, opts)
	}
	rp, err := replay.ReadFile(replayPath)
	if err != nil {
		return nil, err
	}
	log.Printf("📼 Playing %s: %s on %s (%.2fs)", replayPath, rp.Player, rp.LevelID, rp.Duration())
	return game.NewReplaySession(lvl, rp, cfg, opts)
}

func saveReplay(dir string, rp *replay.Replay) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("❌ Replay not saved: %v", err)
		return
	}
	name := fmt.Sprintf("%s-%s-%d.rpl", rp.LevelID, rp.Player, time.Now().Unix())
	path := filepath.Join(dir, name)
	if err := replay.WriteFile(path, rp); err != nil {
		log.Printf("❌ Replay not saved: %v", err)
		return
	}
	log.Printf("📼 Replay saved: %s (%d snapshots, finished=%v)", path, len(rp.Snapshots), rp.Finished)
}

func journalStatsLoop(j *game.Journal, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			api.UpdateJournalStats(j.GetTotalCount(), j.GetDroppedCount())
		}
	}
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
