package camera

import (
	"fmt"
	"sync"
)

// CameraManager owns one Camera engine per configured device, keyed by
// camera ID. Each Camera is independently opened and started; one
// camera's failure does not prevent the others from running.
type CameraManager struct {
	dirs             Directories
	maxStreamClients int
	logger           Logger

	mu      sync.RWMutex
	cameras map[string]*Camera
}

// NewCameraManager builds a Camera engine for every enabled config; the
// devices are not opened until Start. dirs roots each camera's
// photos/videos/frames subdirectories.
func NewCameraManager(configs []CameraConfig, dirs Directories, maxStreamClients int, logger Logger) (*CameraManager, error) {
	cm := &CameraManager{
		dirs:             dirs,
		maxStreamClients: maxStreamClients,
		logger:           logger,
		cameras:          make(map[string]*Camera),
	}
	if err := cm.initializeCameras(configs); err != nil {
		return nil, err
	}
	return cm, nil
}

func (cm *CameraManager) initializeCameras(configs []CameraConfig) error {
	for _, config := range configs {
		if !config.Enabled {
			cm.logger.Printf("camera '%s' (%s) is disabled, skipping", config.Name, config.ID)
			continue
		}

		maxClients := config.MaxStreamClients
		if maxClients <= 0 {
			maxClients = cm.maxStreamClients
		}

		cam, err := NewCamera(config, cm.dirs, maxClients, cm.logger)
		if err != nil {
			return fmt.Errorf("create camera '%s': %w", config.Name, err)
		}

		cm.mu.Lock()
		cm.cameras[config.ID] = cam
		cm.mu.Unlock()

		cm.logger.Printf("initialized camera: %s (%s) - device: %s", config.Name, config.ID, config.Device)
	}

	cm.mu.RLock()
	n := len(cm.cameras)
	cm.mu.RUnlock()
	if n == 0 {
		return fmt.Errorf("no enabled cameras configured")
	}
	return nil
}

// Start opens the device and begins preview capture for every managed
// camera. A camera that fails to open is logged and skipped; the others
// continue to run.
func (cm *CameraManager) Start() error {
	cm.mu.RLock()
	cameras := make([]*Camera, 0, len(cm.cameras))
	for _, cam := range cm.cameras {
		cameras = append(cameras, cam)
	}
	cm.mu.RUnlock()

	started := 0
	for _, cam := range cameras {
		config := cam.Config()
		if err := cam.Open(CaptureParams{}); err != nil {
			cm.logger.Printf("camera '%s' failed to open: %v", config.Name, err)
			continue
		}
		if err := cam.StartPreview(); err != nil {
			cm.logger.Printf("camera '%s' failed to start preview: %v", config.Name, err)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no cameras started successfully")
	}
	return nil
}

// Stop shuts down every managed camera's controller task.
func (cm *CameraManager) Stop() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for id, cam := range cm.cameras {
		cm.logger.Printf("stopping camera: %s", id)
		cam.Shutdown()
	}
}

// RestartWithConfigs tears down all existing cameras and reinitializes
// the manager from a fresh config list, then starts them.
func (cm *CameraManager) RestartWithConfigs(configs []CameraConfig, dirs Directories, maxStreamClients int) error {
	cm.mu.RLock()
	existing := make([]*Camera, 0, len(cm.cameras))
	for _, cam := range cm.cameras {
		existing = append(existing, cam)
	}
	cm.mu.RUnlock()

	for _, cam := range existing {
		cam.Shutdown()
	}

	cm.mu.Lock()
	cm.cameras = make(map[string]*Camera)
	cm.dirs = dirs
	cm.maxStreamClients = maxStreamClients
	cm.mu.Unlock()

	if err := cm.initializeCameras(configs); err != nil {
		return err
	}

	if err := cm.Start(); err != nil {
		return err
	}

	cm.logger.Printf("camera restart complete")
	return nil
}

// GetCamera returns the managed Camera for id.
func (cm *CameraManager) GetCamera(id string) (*Camera, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	cam, ok := cm.cameras[id]
	return cam, ok
}

// ListCameras returns the configuration of every managed camera.
func (cm *CameraManager) ListCameras() []CameraConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	configs := make([]CameraConfig, 0, len(cm.cameras))
	for _, cam := range cm.cameras {
		configs = append(configs, cam.Config())
	}
	return configs
}

// GetDefaultCameraID returns the first camera ID in sorted order, used
// where a request omits an explicit camera selector.
func (cm *CameraManager) GetDefaultCameraID() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	first := ""
	for id := range cm.cameras {
		if first == "" || id < first {
			first = id
		}
	}
	return first
}
