// Command loomd runs the loom daemon in the foreground. The loom CLI's
// hidden "daemon" subcommand covers the detached launch path; this binary
// exists for service managers that want a dedicated daemon executable.
package main

import (
	"context"
	"flag"
	"log"

	"loom/internal/config"
	"loom/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	socketPath := flag.String("socket", "", "daemon socket path override")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:   cfg.Logging.Level,
		SocketPath: *socketPath,
	}); err != nil {
		log.Fatalf("run daemon: %v", err)
	}
}
