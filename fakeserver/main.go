// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Println("Failed to build logger:", err)
		os.Exit(1)
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://127.0.0.1:4222"
	}

	fs := FakeServer{
		natsURL:      natsURL,
		mutatePeriod: 2 * time.Second,
		stopChan:     make(chan struct{}),
		logger:       logger,
	}

	if err := fs.start(); err != nil {
		fmt.Println("Failed to start fake control plane:", err)
		os.Exit(1)
	}
	defer fs.stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}
