package main

// Package main is the entry point for the livevlm streaming agent.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the capture device and the SQLite frame archive
//   - Establish the WebSocket channel to the LiveVLM backend
//   - Start the paced capture/query loop
//   - Serve the local status and metrics listener
//   - Implement graceful shutdown with context cancellation
//
// Architecture Flow:
//   1. Capture pacer tick → still frame from the capture device
//   2. Frame + session context → vlm_query over the WebSocket channel
//   3. vlm_response → session tracker history + temporal context + store
//   4. Store changes → status listener (/statusz, /history, /metrics)
//
// Graceful Shutdown:
//   - Disarms the pacer
//   - Closes the channel, capture stream and archive
//   - Drains the status listener

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/livevlm/livevlm-agent/internal/agent"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	a, err := agent.New(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create agent: %v\n", err)
		os.Exit(1)
	}

	if err := a.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start agent: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	fmt.Println("\nReceived shutdown signal...")

	if err := a.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping agent: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Shutdown complete")
}
