package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"playbulb-controller/internal/agent"
	"playbulb-controller/internal/config"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON or YAML configuration file")
	once := flag.Bool("once", false, "connect, print every field of the bulb and exit")
	flag.Parse()

	log.Printf("Starting Playbulb Controller version: %s, commit: %s, built: %s", version, commit, date)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.BLE.Address == "" {
		log.Fatal("No bulb address configured (ble.address or PLAYBULB_ADDRESS).")
	}

	if *once {
		os.Exit(readOnce(cfg))
	}

	a, err := agent.NewAgent(cfg)
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}

	go a.Run()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")
	a.Shutdown()
	log.Println("Agent shut down gracefully.")
}

func readOnce(cfg *config.Config) int {
	transport, err := agent.OpenTransport(cfg)
	if err != nil {
		log.Printf("Failed to open transport: %v", err)
		return 1
	}
	defer transport.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := agent.ReadOnce(ctx, cfg, transport)
	if snap.Address == "" {
		log.Printf("Failed to read %s: %v", cfg.BLE.Address, err)
		return 1
	}
	if err != nil {
		log.Printf("Some fields could not be read: %v", err)
	}
	fmt.Println(snap)
	return 0
}
