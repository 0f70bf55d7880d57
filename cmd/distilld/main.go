// Command distilld runs the distill daemon in the foreground. It is the
// systemd-friendly twin of `distill daemon run`: same pipeline, no process
// supervision from the CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"distill/internal/config"
	"distill/internal/daemonrun"
)

func main() {
	var configPath string
	var socketPath string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.StringVar(&socketPath, "socket", "", "IPC socket path (defaults to <log_dir>/distill.sock)")
	flag.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:   logLevel,
		SocketPath: socketPath,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
