// ABOUTME: Entry point for the headless previz engine server
// ABOUTME: Runs the engine and bridge without the interactive previewer TUI
package main

import (
	"context"
	"flag"
	"fmt"
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
	name       = flag.String("name", "", "Server name (default: hostname-previz)")
	logFile    = flag.String("log-file", "previz-server.log", "Log file path")
	statusTUI  = flag.Bool("tui", false, "Show the connection status TUI")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

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
	if *storePath != "" {
		cfg.StorePath = *storePath
	}
	if *noMDNS {
		cfg.EnableMDNS = false
	}
	if *debug {
		cfg.Debug = true
	}

	// Determine server name
	if *name != "" {
		cfg.Name = *name
	} else if *configPath == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Name = fmt.Sprintf("%s-previz", hostname)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config: %v", err)
	}

	// Set up logging (both file and console unless the TUI owns the screen)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *statusTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s %s on port %d", cfg.Name, version.Version, cfg.Port)
	log.Printf("Logging to: %s", *logFile)
	log.Printf("Press Ctrl-C to stop")

	sess, err := app.New(app.Config{
		Settings:    cfg,
		ProjectPath: *project,
		ServerTUI:   *statusTUI,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		cancel()
	}()

	if err := sess.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
