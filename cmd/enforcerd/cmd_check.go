package main

// ---------------------------------------------------------------------------
// cmd_check.go — validate a config file without starting the daemon
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"

	"github.com/ghost-edr/enforcer/internal/core"
)

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	fs.Parse(args)

	rawCfg, err := core.LoadConfig(envConfig(*configPath))
	if err != nil {
		errorf("loading config: %v", err)
	}

	cfg, err := rawCfg.Resolve()
	if err != nil {
		errorf("config invalid: %v", err)
	}

	fmt.Println("Config OK")
	fmt.Printf("  receiver:  %s:%d\n", cfg.Receiver.Host, cfg.Receiver.Port)
	fmt.Printf("  policies:  %d\n", len(cfg.Policies))
	fmt.Printf("  dry_run:   %v\n", cfg.DryRun)
	for _, p := range cfg.Policies {
		fmt.Printf("    - %-24s action=%-10s priority>=%s cooldown=%s\n",
			p.Name, p.Action, p.PriorityMin, p.Cooldown)
	}
}
