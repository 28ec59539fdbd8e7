package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"edgecamd/camera"
)

// Config is the process-wide configuration, loaded from/created at an XDG
// config path. Field names mirror spec.md §6's enumerated config keys,
// grouped the way the teacher groups Cameras alongside server-level
// settings.
type Config struct {
	Port             int    `json:"server_port"`
	MaxStreamClients int    `json:"server_max_stream_clients"`
	APIKey           string `json:"auth_api_key"`

	VideosDir    string `json:"storage_videos_dir"`
	PhotosDir    string `json:"storage_photos_dir"`
	FramesDir    string `json:"storage_frames_dir"`
	StorageCapGB int    `json:"storage_cap_gb"`

	RotateMaxDurationS int   `json:"recorder_rotate_max_duration_s"`
	RotateMaxBytes     int64 `json:"recorder_rotate_max_bytes"`

	StreamDefaultJPEGQuality int `json:"stream_default_jpeg_quality"`
	StreamDefaultMaxFPS      int `json:"stream_default_max_fps"`

	Cameras []camera.CameraConfig `json:"cameras"`
}

// DefaultConfig returns the config used the first time edgecamd runs
// somewhere with no config file yet, rooted under the XDG state
// directory (falling back to the working directory when no home
// directory is available, matching the teacher's fallback chain).
func DefaultConfig() *Config {
	baseDir := "./data"
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		if stateDir, err := xdg.StateFile("edgecamd/data"); err == nil {
			baseDir = stateDir
		} else {
			baseDir = filepath.Join(homeDir, ".local/state/edgecamd/data")
		}
	}

	return &Config{
		Port:             DefaultPort,
		MaxStreamClients: DefaultMaxStreamClients,
		VideosDir:        filepath.Join(baseDir, "videos"),
		PhotosDir:        filepath.Join(baseDir, "photos"),
		FramesDir:        filepath.Join(baseDir, "frames"),
		StorageCapGB:     DefaultStorageCapGB,

		RotateMaxDurationS: DefaultSegmentLengthS,
		RotateMaxBytes:     0,

		StreamDefaultJPEGQuality: DefaultMJPEGQuality,
		StreamDefaultMaxFPS:      DefaultMaxStreamFPS,

		Cameras: []camera.CameraConfig{
			{
				ID:               "default",
				Name:             "Default Camera",
				Device:           DefaultCameraDevice,
				Rotation:         0,
				ResWidth:         DefaultVideoWidth,
				ResHeight:        DefaultVideoHeight,
				Bitrate:          DefaultVideoBitrate,
				FPS:              DefaultVideoFPS,
				MJPEGQuality:     DefaultMJPEGQuality,
				EmbedTimestamp:   DefaultEmbedTimestamp,
				Enabled:          true,
				MaxStreamClients: DefaultMaxStreamClients,
			},
		},
	}
}

// LoadOrCreateConfig reads configPath if it exists, otherwise writes a
// fresh DefaultConfig there.
func LoadOrCreateConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		config := &Config{}
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		applyCameraDefaults(config)
		return config, nil
	}

	config := DefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	for _, dir := range []string{config.VideosDir, config.PhotosDir, config.FramesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Created default config at %s\n", configPath)
	return config, nil
}

// applyCameraDefaults fills zero-valued fields on cameras loaded from an
// older or hand-edited config file, the way the teacher backfills
// defaults on load.
func applyCameraDefaults(config *Config) {
	for i := range config.Cameras {
		cam := &config.Cameras[i]
		if cam.ID == "" {
			cam.ID = fmt.Sprintf("camera_%d", i)
		}
		if cam.ResWidth == 0 {
			cam.ResWidth = DefaultVideoWidth
		}
		if cam.ResHeight == 0 {
			cam.ResHeight = DefaultVideoHeight
		}
		if cam.FPS == 0 {
			cam.FPS = DefaultVideoFPS
		}
		if cam.MJPEGQuality == 0 {
			cam.MJPEGQuality = DefaultMJPEGQuality
		}
		if cam.MaxStreamClients == 0 {
			cam.MaxStreamClients = DefaultMaxStreamClients
		}
	}
	if config.MaxStreamClients == 0 {
		config.MaxStreamClients = DefaultMaxStreamClients
	}
	if config.StreamDefaultJPEGQuality == 0 {
		config.StreamDefaultJPEGQuality = DefaultMJPEGQuality
	}
	if config.StreamDefaultMaxFPS == 0 {
		config.StreamDefaultMaxFPS = DefaultMaxStreamFPS
	}
}

// SaveConfig persists config to configPath.
func SaveConfig(config *Config, configPath string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
