// Package main runs the ProteinLens API server: the public HTTP listener,
// the ops listener, the analysis worker pool, and the background scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/proteinlens/proteinlens/internal/app/runtime"
	"github.com/proteinlens/proteinlens/internal/config"
)

func main() {
	envFile := flag.String("env-file", "", "Load this env file before reading the environment")
	printConfig := flag.Bool("print-config", false, "Print the resolved listen addresses and exit")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("Failed to load env file %s: %v", *envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *printConfig {
		fmt.Printf("public: %s\n", cfg.Server.Addr())
		if cfg.Ops.Enabled {
			fmt.Printf("ops: %s\n", cfg.Ops.Addr())
		}
		return
	}

	app, err := runtime.New(cfg)
	if err != nil {
		log.Fatalf("Failed to assemble application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("ProteinLens stopped")
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetPrefix("[proteinlens] ")
}
