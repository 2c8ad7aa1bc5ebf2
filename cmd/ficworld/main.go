// Command ficworld runs a narrative simulation: authored characters act
// in an authored world, scene by scene, and the finished run comes out as
// prose plus a queryable database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/ficworld/internal/api"
	"github.com/talgya/ficworld/internal/config"
	"github.com/talgya/ficworld/internal/engine"
	"github.com/talgya/ficworld/internal/entropy"
	"github.com/talgya/ficworld/internal/llm"
	"github.com/talgya/ficworld/internal/persistence"
)

func main() {
	presetPath := flag.String("preset", "", "path to a preset JSON file (required)")
	outPath := flag.String("out", "", "write the story prose to this file")
	serve := flag.Bool("serve", false, "serve the stored runs over HTTP after the run")
	flag.Parse()

	if *presetPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ficworld --preset <file> [--out <file>] [--serve]")
		os.Exit(2)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(settings.LogLevel),
	}))
	slog.SetDefault(logger)

	preset, err := config.LoadPreset(*presetPath)
	if err != nil {
		slog.Error("failed to load preset", "error", err)
		os.Exit(1)
	}
	slog.Info("preset loaded",
		"name", preset.Name,
		"world", preset.World().Name,
		"cast", len(preset.Roles()),
	)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(settings.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(settings.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", settings.DBPath)

	// ── Oracle ───────────────────────────────────────────────────────
	var clientOpts []llm.ClientOption
	if settings.Model != "" {
		clientOpts = append(clientOpts, llm.WithModel(settings.Model))
	}
	if settings.OracleTimeout > 0 {
		clientOpts = append(clientOpts, llm.WithTimeout(settings.OracleTimeout))
	}
	client := llm.NewClient(settings.APIKey, clientOpts...)
	if client.Enabled() {
		slog.Info("oracle enabled")
	} else {
		slog.Warn("FICWORLD_API_KEY not set, running on deterministic fallbacks")
	}

	// ── Simulation ────────────────────────────────────────────────────
	rng := entropy.NewSource(settings.Seed)
	deps := engine.Deps{
		NewWorld:  preset.BuildWorld,
		Oracle:    orNilOracle(llm.NewOracle(client)),
		Director:  orNilDirector(llm.NewDirector(client)),
		Narrator:  orNilNarrator(llm.NewNarrator(client)),
		Snapshots: db,
		Entropy:   rng,
		Logger:    logger,
	}
	sim, err := engine.NewSimulation(deps, preset.EngineConfig())
	if err != nil {
		slog.Error("failed to assemble simulation", "error", err)
		os.Exit(1)
	}

	// Cancellation lands between turns, never mid-mutation.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Running %q: %d characters, up to %d scenes. (Ctrl+C to stop)\n",
		preset.Name, len(preset.Roles()), preset.EngineConfig().MaxScenes)

	result, err := sim.Run(ctx)
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
	if err := db.SetRunSeed(result.RunID, result.Seed); err != nil {
		slog.Warn("failed to record run seed", "error", err)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(result.Story+"\n"), 0644); err != nil {
			slog.Error("failed to write story", "path", *outPath, "error", err)
		} else {
			slog.Info("story written", "path", *outPath)
		}
	} else {
		fmt.Println()
		fmt.Println(result.Story)
	}
	fmt.Printf("\nRun %s complete: %d scenes.\n", result.RunID, len(result.Scenes))

	// ── HTTP API ──────────────────────────────────────────────────────
	if *serve {
		server := &api.Server{DB: db, Port: settings.Port}
		server.Start()
		fmt.Printf("Serving runs at http://localhost:%d/api/v1/status (Ctrl+C to stop)\n", settings.Port)

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "error", err)
		}
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Typed-nil guards: a nil *llm.Oracle stored in a non-nil interface would
// defeat the engine's nil checks.
func orNilOracle(o *llm.Oracle) engine.ActionOracle {
	if o == nil {
		return nil
	}
	return o
}

func orNilDirector(d *llm.LLMDirector) engine.Director {
	if d == nil {
		return nil
	}
	return d
}

func orNilNarrator(n *llm.LLMNarrator) engine.Narrator {
	if n == nil {
		return nil
	}
	return n
}
