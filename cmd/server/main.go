// cmd/server/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/SceneComposer/internal/app"
	"github.com/Corphon/SceneComposer/internal/config"
	"github.com/Corphon/SceneComposer/internal/utils"
)

func main() {
	log.Println("starting SceneComposer server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.EnsureDirectories(cfg); err != nil {
		log.Fatalf("failed to create directories: %v", err)
	}
	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "server.log")); err != nil {
		log.Printf("warning: logging to stdout only: %v", err)
	}
	logger := utils.GetLogger()
	defer logger.Close()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Error("server stopped", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()
	log.Printf("listening on http://localhost:%s", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		log.Printf("shutdown incomplete: %v", err)
		return
	}
	log.Println("server stopped")
}
