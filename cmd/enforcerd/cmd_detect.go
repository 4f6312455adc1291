package main

// ---------------------------------------------------------------------------
// cmd_detect.go — probe for a usable container runtime socket
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghost-edr/enforcer/internal/runtime"
)

func cmdDetectRuntime(args []string) {
	fs := flag.NewFlagSet("detect-runtime", flag.ExitOnError)
	socket := fs.String("socket", "", "Explicit runtime socket path")
	fs.Parse(args)

	rt, err := runtime.Detect("", *socket, zerolog.Nop())
	if err != nil {
		errorf("detecting container runtime: %v", err)
	}

	fmt.Printf("runtime: %s\n", rt.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	containers, err := rt.List(ctx)
	if err != nil {
		fmt.Printf("daemon:  unreachable (%v)\n", err)
		return
	}
	fmt.Printf("daemon:  reachable, %d running container(s)\n", len(containers))
	for _, c := range containers {
		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Printf("  %s  %-30s %s\n", id, c.Name, c.Image)
	}
}
