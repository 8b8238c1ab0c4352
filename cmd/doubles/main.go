package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/DreamCats/doubles/cmd/doubles/internal"
	"github.com/DreamCats/doubles/internal/config"
	"github.com/DreamCats/doubles/internal/dedup"
)

// main parses global flags and dispatches to a subcommand.
func main() {
	if len(os.Args) < 2 {
		internal.PrintUsage()
		os.Exit(1)
	}

	// API keys may live in a .env file next to the data.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	validSubcommands := map[string]bool{
		"run":     true,
		"score":   true,
		"history": true,
		"show":    true,
		"init":    true,
	}

	args := os.Args[1:]
	configPath := ""
	subcommandIndex := -1
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: %s requires a path\n\n", arg)
				internal.PrintUsage()
				os.Exit(1)
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-config=") || strings.HasPrefix(arg, "--config="):
			configPath = arg[strings.Index(arg, "=")+1:]
		case arg == "-h" || arg == "-help" || arg == "--help":
			internal.PrintUsage()
			os.Exit(0)
		case arg == "-v" || arg == "-version" || arg == "--version":
			fmt.Printf("doubles version %s\n", internal.Version)
			os.Exit(0)
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(os.Stderr, "Error: Unknown global flag: %s\n\n", arg)
			internal.PrintUsage()
			os.Exit(1)
		case validSubcommands[arg]:
			subcommandIndex = i
		default:
			fmt.Fprintf(os.Stderr, "Error: Unknown command: %s\n\n", arg)
			internal.PrintUsage()
			os.Exit(1)
		}
		if subcommandIndex >= 0 {
			break
		}
	}

	if subcommandIndex == -1 {
		fmt.Fprintf(os.Stderr, "Error: No subcommand specified\n\n")
		internal.PrintUsage()
		os.Exit(1)
	}

	subcommand := args[subcommandIndex]
	subcommandArgs := args[subcommandIndex+1:]

	if subcommand == "init" {
		handleInit(configPath, subcommandArgs)
		return
	}

	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		if config.IsConfigNotFound(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fail(fmt.Errorf("failed to load config: %w", err))
	}

	verbose := internal.HasFlag(subcommandArgs, "-v", "-verbose")
	closeLog, err := internal.SetupLogging(subcommand, internal.InputTag(inputArg(subcommandArgs)), verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize log file: %v\n", err)
	}
	defer closeLog()
	slog.Debug("config loaded", "provider", cfg.Embedding.Provider, "threshold", cfg.Detection.Threshold)

	switch subcommand {
	case "run":
		err = handleRun(cfg, subcommandArgs)
	case "score":
		err = handleScore(cfg, subcommandArgs)
	case "history":
		err = handleHistory(cfg, subcommandArgs)
	case "show":
		err = handleShow(cfg, subcommandArgs)
	}
	if err != nil {
		closeLog()
		fail(err)
	}
}

// fail prints err with its kind and exits. Cancelled runs exit with 130
// like an interrupted shell command.
func fail(err error) {
	kind := dedup.Kind(err)
	slog.Error("command failed", "kind", kind.String(), "err", err)
	fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", kind, err)
	if kind == dedup.KindCancelled {
		os.Exit(130)
	}
	os.Exit(1)
}

// inputArg returns the last non-flag argument, which names the input for
// commands that take one.
func inputArg(args []string) string {
	for i := len(args) - 1; i >= 0; i-- {
		if !strings.HasPrefix(args[i], "-") {
			return args[i]
		}
	}
	return ""
}
