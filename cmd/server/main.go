package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/gorm"

	"github.com/openbaas/corestore/internal/config"
	"github.com/openbaas/corestore/internal/database"
	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/handlers"
	"github.com/openbaas/corestore/internal/logging"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/storage/gormstore"
	"github.com/openbaas/corestore/internal/storage/memstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var store storage.Adapter
	var db *gorm.DB
	if cfg.DBType == "memory" {
		store = memstore.New()
	} else {
		db, err = database.Connect(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close(db)

		if err := gormstore.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		store = gormstore.New(db)
	}

	eng := engine.New(cfg, store, engine.WithLogger(logging.NewDefault()))
	defer eng.Close()

	app := handlers.NewApp(cfg, eng, db)

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	log.Printf("Starting server on port %s (public URL %s)", cfg.Port, cfg.PublicServerURL)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server stopped")
}
