package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/hpungsan/memomind/internal/config"
	"github.com/hpungsan/memomind/internal/db"
	"github.com/hpungsan/memomind/internal/logger"
	"github.com/hpungsan/memomind/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"login": true, "signup": true, "logout": true, "profile": true,
	"upload": true, "generate": true, "follow-up": true,
	"save": true, "list": true, "load": true, "delete": true,
	"quiz": true, "open": true, "serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   __  __                     __  __ _           _
  |  \/  | ___ _ __ ___   ___|  \/  (_)_ __   __| |
  | |\/| |/ _ \ '_ ' _ \ / _ \ |\/| | | '_ \ / _' |
  | |  | |  __/ | | | | | (_) | |  | | | | | | (_| |
  |_|  |_|\___|_| |_| |_|\___/|_|  |_|_|_| |_|\__,_|

  Study notes, quizzes and flashcards from your PDFs

  Usage: memomind <command> [options]
         memomind --help

  MCP server mode requires piped input.`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".memomind")

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	if cfg, err = config.ApplyEnv(cfg, filepath.Join(cwd, ".env")); err != nil {
		fail("failed to apply environment: %v", err)
	}
	db.ConfigurePool(database, cfg)

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(baseDir, "logs", "memomind.log")
	}
	log := logger.NewZapLogger(logger.Options{FilePath: logFile, Level: cfg.LogLevel})
	defer func() { _ = log.Sync() }()

	a := newApp(baseDir, database, cfg, log)

	// Reclaim artifacts left behind by processes that are no longer running.
	reclaimCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := a.artifacts.Reclaim(reclaimCtx); err != nil {
		log.Warn("main", "startup reclaim failed", map[string]any{"error": err.Error()})
	}
	cancel()

	if isCLIMode() {
		if err := newCLIApp(a).Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'memomind --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	err = mcp.Run(a.mcpHandlers(), cfg, Version)
	stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	a.sweep(stopCtx)
	stop()
	if err != nil {
		fail("%v", err)
	}
}
