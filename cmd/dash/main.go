package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"dash/internal/config"
	"dash/internal/feed"
	"dash/internal/messages"
	"dash/internal/server"
	"dash/internal/store"
)

var (
	// Version will be set during build
	Version = "dev"

	// Command line flags
	port     = flag.Int("port", 0, "Port to run the server on (default: 8080 or DASH_PORT)")
	dbPath   = flag.String("db", "", "Path to database file (default: data/dash.db or DASH_DB_PATH)")
	version  = flag.Bool("version", false, "Print version information")
	prodMode = flag.Bool("prod", false, "Enable production mode (HTTPS-only cookies)")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Dash version %s\n", Version)
		return
	}

	// Setup logging
	logger := log.New(os.Stdout, "dash: ", log.LstdFlags|log.Lshortfile)

	// Get base configuration from environment
	cfg := config.GetConfig()

	// Override with command line flags if provided
	if *port > 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger.Printf("Starting Dash v%s", Version)
	logger.Printf("Port: %d", cfg.Port)
	logger.Printf("Database: %s", cfg.DBPath)
	if cfg.Facebook.ID == "" {
		logger.Printf("Warning: Facebook credentials are not configured")
	}
	if cfg.YouTube.ID == "" {
		logger.Printf("Warning: YouTube credentials are not configured")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Fatalf("Failed to create database directory: %v", err)
	}

	// Initialize database with optimized configuration
	db, err := store.NewDB(cfg.DBPath, store.DefaultConfig())
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize sync engine
	engine := feed.NewEngine(db, logger, feed.Config{
		FetchTimeout: cfg.FetchTimeout,
		Facebook:     feed.OAuthKeys{ID: cfg.Facebook.ID, Secret: cfg.Facebook.Secret},
		YouTube:      feed.OAuthKeys{ID: cfg.YouTube.ID, Secret: cfg.YouTube.Secret},
	})

	// Initialize server
	srv := server.NewServer(db, logger, engine, messages.Default(), server.Config{
		UseHTTPS: *prodMode,
	})

	// Expired sessions are swept in the background
	go func() {
		svc := srv.Auth()
		for range time.Tick(time.Hour) {
			if err := svc.CleanExpiredSessions(context.Background()); err != nil {
				logger.Printf("Error cleaning sessions: %v", err)
			}
		}
	}()

	logger.Printf("Starting server on port %d", cfg.Port)
	if err := srv.Start(cfg.GetAddress()); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
}
