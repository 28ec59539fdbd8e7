package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"edgecamd/camera"
)

func main() {
	godotenv.Load()

	var (
		configPath = flag.String("config", "", "Path to config file (default: XDG config directory)")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	logger := NewLogger(*verbose)

	if *configPath == "" {
		var err error
		*configPath, err = xdg.ConfigFile("edgecamd/config.json")
		if err != nil {
			*configPath = filepath.Join(os.ExpandEnv("$HOME"), ".config/edgecamd/config.json")
		}
	}

	if err := os.MkdirAll(filepath.Dir(*configPath), 0755); err != nil {
		logger.Fatalf("create config directory: %v", err)
	}

	config, err := LoadOrCreateConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	logger.Printf("starting edgecamd")
	logger.Printf("listening on port %d", config.Port)
	logger.Printf("videos: %s, photos: %s, frames: %s", config.VideosDir, config.PhotosDir, config.FramesDir)
	logger.Printf("storage cap: %dGB", config.StorageCapGB)

	sm, err := NewStorageManager(config.VideosDir, config.StorageCapGB, logger)
	if err != nil {
		logger.Fatalf("initialize storage manager: %v", err)
	}

	dirs := camera.Directories{
		PhotosDir: config.PhotosDir,
		VideosDir: config.VideosDir,
		FramesDir: config.FramesDir,
	}

	cameraManager, err := camera.NewCameraManager(config.Cameras, dirs, config.MaxStreamClients, logger)
	if err != nil {
		logger.Fatalf("initialize camera manager: %v", err)
	}

	server := NewAPIServer(config, cameraManager, sm, logger, *configPath)

	if err := cameraManager.Start(); err != nil {
		logger.Printf("camera manager: %v", err)
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverDone:
		logger.Printf("server stopped: %v", err)
	case sig := <-sigChan:
		fmt.Printf("\nreceived signal: %v\n", sig)
	}

	logger.Printf("shutting down...")
	cameraManager.Stop()
	server.Stop()
	sm.Stop()
}
