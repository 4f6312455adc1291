package main

// ---------------------------------------------------------------------------
// main.go — command dispatcher for the ghost-enforcer CLI
//
// This file is intentionally slim. Command implementations live in their
// own files (cmd_*.go); shared helpers are in helpers.go.
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"
)

var (
	version   = "1.0.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	subcmd := os.Args[1]
	args := os.Args[2:]

	switch subcmd {
	case "run":
		cmdRun(args)
	case "check":
		cmdCheck(args)
	case "detect-runtime":
		cmdDetectRuntime(args)
	case "version", "--version", "-V":
		printVersion(os.Stdout)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", subcmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func printVersion(w *os.File) {
	fmt.Fprintf(w, "ghost-enforcer %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printUsage(w *os.File) {
	fmt.Fprint(w, `ghost-enforcer — container runtime security response daemon

Usage:
  enforcerd <command> [flags]

Commands:
  run             Start the enforcement daemon
  check           Validate a configuration file
  detect-runtime  Detect the container runtime in use
  version         Print version information
  help            Show this help

Use "enforcerd <command> -h" for command flags.
`)
}
