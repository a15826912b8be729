// Command vestibule is the main entry point for the voice assistant runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attalus-io/vestibule/internal/app"
	"github.com/attalus-io/vestibule/internal/config"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ─────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override the configured log format (text, json)")
	validateOnly := flag.Bool("validate", false, "validate the configuration and exit")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("vestibule", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vestibule: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vestibule: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		cfg.System.LogLevel = config.LogLevel(*logLevel)
	}
	if *logFormat != "" {
		cfg.System.LogFormat = config.LogFormat(*logFormat)
	}

	// ── Validate ──────────────────────────────────────────────────────────────
	result := config.Validate(cfg)
	if *validateOnly {
		printValidationReport(*configPath, result)
		if result.Valid() {
			return 0
		}
		return 1
	}
	if !result.Valid() {
		fmt.Fprintf(os.Stderr, "vestibule: invalid configuration:\n%v\n", result.Err())
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.System.LogLevel.Level())
	logger := newLogger(cfg.System.LogFormat, levelVar)
	slog.SetDefault(logger)
	result.LogWarnings()

	slog.Info("vestibule starting",
		"version", version,
		"config", *configPath,
		"profile", cfg.DeploymentProfile(),
		"log_level", cfg.System.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	// Built-in providers are constructed inside the components; the registry
	// is the extension point plugins would hook into.
	reg := config.NewRegistry()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg,
		app.WithVersion(version),
		app.WithConfigPath(*configPath),
		app.WithProviderRegistry(reg),
		app.WithLogLevelVar(levelVar),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("assistant ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Validation report ─────────────────────────────────────────────────────────

// printValidationReport writes the categorized findings the way the
// -validate mode presents them: errors first, then warnings, then infos.
func printValidationReport(path string, result *config.ValidationResult) {
	fmt.Printf("configuration: %s\n", path)
	for _, is := range result.Errors {
		fmt.Printf("  error:   %s\n", is)
	}
	for _, is := range result.Warnings {
		fmt.Printf("  warning: %s\n", is)
	}
	for _, is := range result.Infos {
		fmt.Printf("  info:    %s\n", is)
	}
	if result.Valid() {
		fmt.Printf("valid (%d warnings, %d infos)\n", len(result.Warnings), len(result.Infos))
	} else {
		fmt.Printf("invalid (%d errors)\n", len(result.Errors))
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        vestibule — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Profile", cfg.DeploymentProfile())
	printRow("Language", cfg.System.Language)
	printProvider("ASR", cfg.ASR.DefaultProvider, providerModel(cfg.ASR.Providers, cfg.ASR.DefaultProvider))
	printProvider("TTS", cfg.TTS.DefaultProvider, providerModel(cfg.TTS.Providers, cfg.TTS.DefaultProvider))
	printProvider("NLU", cfg.NLU.DefaultProvider, "")
	printProvider("LLM", cfg.LLM.Provider.Name, cfg.LLM.Provider.Model)
	printRow("Components", fmt.Sprintf("%d enabled", len(cfg.EnabledComponents())))
	if cfg.System.IsWebAPIEnabled() {
		printRow("Web API", fmt.Sprintf("%s:%d", cfg.System.WebHost, cfg.System.WebPort))
	} else {
		printRow("Web API", "(disabled)")
	}
	if cfg.Inputs.Microphone.Enabled {
		printRow("Microphone", fmt.Sprintf("%d Hz", cfg.Inputs.Microphone.SampleRate))
	} else {
		printRow("Microphone", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// providerModel looks up the configured model for the named provider entry.
func providerModel(entries []config.ProviderEntry, name string) string {
	for _, e := range entries {
		if e.Name == name {
			return e.Model
		}
	}
	return ""
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
