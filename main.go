// ABOUTME: Entry point for the interactive previz previewer
// ABOUTME: Parses CLI flags, loads config, and runs the engine session
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Previz-Studio/previz-go/internal/app"
	"github.com/Previz-Studio/previz-go/internal/config"
	"github.com/Previz-Studio/previz-go/internal/version"
)

var (
	configPath = flag.String("config", "", "YAML config file path")
	project    = flag.String("project", "", "Project file to load (YAML project or JSON sequence)")
	storePath  = flag.String("store", "", "Store database path (default from config)")
	port       = flag.Int("port", 0, "Bridge port (default from config)")
	name       = flag.String("name", "", "Engine name (default from config)")
	logFile    = flag.String("log-file", "previz.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Config: %v", err)
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *storePath != "" {
		cfg.StorePath = *storePath
	}
	if *noMDNS {
		cfg.EnableMDNS = false
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config: %v", err)
	}

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s %s", cfg.Name, version.Version)

	sess, err := app.New(app.Config{
		Settings:    cfg,
		ProjectPath: *project,
		UseTUI:      useTUI,
	})
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("Shutdown signal received")
		cancel()
	}()

	if err := sess.Run(ctx); err != nil {
		log.Fatalf("Session failed: %v", err)
	}

	log.Printf("Previewer stopped")
}
