package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CameraStatus is the control surface's on-demand status snapshot for one
// device session (§4.7): device-open?, capturing?, stream-client count,
// recorder state + file + size + duration.
type CameraStatus struct {
	ID            string
	Open          bool
	Capturing     bool
	Width, Height int
	Format        string
	StreamClients int
	Recorder      RecorderStatus
	LastError     string
}

// Camera is one V4L2 device's full engine: Capture Source (via its
// Controller), Frame Bus, Recorder, Extraction Worker, and the stream
// session registry used for admission control. Exactly one CaptureSession
// exists per Camera, matching the Data Model's per-process invariant
// applied per configured device.
type Camera struct {
	config CameraConfig
	log    Logger

	bus        *FrameBus
	controller *CaptureController
	recorder   *Recorder
	extraction *ExtractionWorker
	encoder    Encoder

	photosDir string
	videosDir string
	framesDir string

	mu               sync.Mutex
	sessions         map[uint64]*StreamSession
	nextSessionID    uint64
	maxStreamClients int
}

// Directories bundles the three storage roots a Camera writes under
// (each gets a per-camera subdirectory: <root>/<id>).
type Directories struct {
	PhotosDir string
	VideosDir string
	FramesDir string
}

// NewCamera constructs a Camera engine for config, with its photos,
// videos, and frames each rooted at dirs.*Dir/<id>.
func NewCamera(config CameraConfig, dirs Directories, maxStreamClients int, logger Logger) (*Camera, error) {
	if maxStreamClients <= 0 {
		maxStreamClients = 5
	}
	cam := &Camera{
		config:           config,
		log:              logger,
		photosDir:        filepath.Join(dirs.PhotosDir, config.ID),
		videosDir:        filepath.Join(dirs.VideosDir, config.ID),
		framesDir:        filepath.Join(dirs.FramesDir, config.ID),
		sessions:         make(map[uint64]*StreamSession),
		maxStreamClients: maxStreamClients,
		encoder:          NewEncoder(),
	}
	for _, dir := range []string{cam.photosDir, cam.videosDir, cam.framesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("camera %s: %w", config.ID, ErrIO)
		}
	}

	cam.bus = NewFrameBus(logger)
	cam.controller = NewCaptureController(cam.bus, logger)
	cam.recorder = NewRecorder(cam.bus, logger)
	cam.extraction = NewExtractionWorker(logger, NoopPackager{})
	return cam, nil
}

// Config returns the camera's static configuration.
func (c *Camera) Config() CameraConfig { return c.config }

// Bus exposes the Frame Bus for components that need to subscribe
// directly (e.g. a control-surface preview tap).
func (c *Camera) Bus() *FrameBus { return c.bus }

// Open negotiates the device using the stored config, optionally
// overridden by the caller (a zero field keeps the configured value).
func (c *Camera) Open(overrides CaptureParams) error {
	params := c.config.captureParams()
	if overrides.DevicePath != "" {
		params.DevicePath = overrides.DevicePath
	}
	if overrides.Width > 0 {
		params.Width = overrides.Width
	}
	if overrides.Height > 0 {
		params.Height = overrides.Height
	}
	if overrides.FPS > 0 {
		params.FPS = overrides.FPS
	}
	if overrides.PreferredFormat != PixelFormatUnknown {
		params.PreferredFormat = overrides.PreferredFormat
	}
	return c.controller.Open(params)
}

// Close releases the device, implicitly stopping capture/recording.
func (c *Camera) Close() error {
	if c.recorder.IsActive() {
		_ = c.recorder.Stop()
	}
	return c.controller.Close()
}

// StartPreview transitions the device Ready -> Capturing.
func (c *Camera) StartPreview() error { return c.controller.Start() }

// StopPreview transitions Capturing -> Ready without closing the device.
func (c *Camera) StopPreview() error { return c.controller.Stop() }

// Capture takes a single still image: it subscribes briefly, waits for
// one frame, encodes it to JPEG, and writes it to photosDir using the
// persisted naming scheme `image_<YYYYMMDD_HHMMSS>_<ms>.jpg`.
func (c *Camera) Capture() (path string, jpegBytes []byte, err error) {
	if c.controller.Source().State() != StateCapturing {
		return "", nil, fmt.Errorf("capture: %w", ErrState)
	}

	sub, err := c.bus.Subscribe(SubscriberKindStream, 1, DropNewestWins)
	if err != nil {
		return "", nil, fmt.Errorf("capture: %w", err)
	}
	defer c.bus.Unsubscribe(sub)

	select {
	case frame, ok := <-sub.Inbox():
		if !ok || frame == nil {
			return "", nil, fmt.Errorf("capture: %w", ErrIO)
		}
		defer frame.Release()
		jpegBytes, err = c.encoder.Encode(frame, 90, Size{})
		if err != nil {
			return "", nil, err
		}
	case <-time.After(5 * time.Second):
		return "", nil, fmt.Errorf("capture: %w", ErrTimeout)
	}

	now := time.Now()
	name := fmt.Sprintf("image_%s_%03d.jpg", now.Format("20060102_150405"), now.Nanosecond()/1e6)
	full := filepath.Join(c.photosDir, name)
	if err := os.WriteFile(full, jpegBytes, 0644); err != nil {
		return "", nil, fmt.Errorf("capture: %w", ErrIO)
	}
	return full, jpegBytes, nil
}

// StartRecording begins recording into videosDir using the persisted
// naming scheme `video_<YYYYMMDD_HHMMSS>_partK.mjpeg` (K counts segments
// from 1; the suffix is written even when no rotation occurs).
func (c *Camera) StartRecording(policy RotationPolicy) error {
	if c.controller.Source().State() != StateCapturing {
		return fmt.Errorf("start recording: %w", ErrState)
	}
	base := filepath.Join(c.videosDir, fmt.Sprintf("video_%s", time.Now().Format("20060102_150405")))
	return c.recorder.Start(base, ".mjpeg", policy)
}

// StopRecording finalizes the active recording; idempotent via Recorder.Stop.
func (c *Camera) StopRecording() error {
	return c.recorder.Stop()
}

// NewStreamSession admits a new preview session if under the configured
// limit, returning ErrAdmissionDenied otherwise without registering a
// bus subscriber.
func (c *Camera) NewStreamSession(params StreamParams, sink FrameSink) (*StreamSession, error) {
	c.mu.Lock()
	if len(c.sessions) >= c.maxStreamClients {
		c.mu.Unlock()
		return nil, fmt.Errorf("stream admission: %w", ErrAdmissionDenied)
	}
	c.nextSessionID++
	id := c.nextSessionID
	c.mu.Unlock()

	session, err := NewStreamSession(id, c.bus, c.encoder, params, sink, c.log)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[id] = session
	c.mu.Unlock()
	return session, nil
}

// ReleaseStreamSession removes a finished session from the admission
// registry.
func (c *Camera) ReleaseStreamSession(session *StreamSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, session.id)
}

// StreamClientCount returns the number of currently admitted sessions.
func (c *Camera) StreamClientCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Extraction exposes the device's Extraction Worker.
func (c *Camera) Extraction() *ExtractionWorker { return c.extraction }

// FramesDir returns the root directory extraction tasks write under.
func (c *Camera) FramesDir() string { return c.framesDir }

// PhotosDir returns the still-capture output directory.
func (c *Camera) PhotosDir() string { return c.photosDir }

// VideosDir returns the recording output directory.
func (c *Camera) VideosDir() string { return c.videosDir }

// Info reports the open device's name, bus info, and advertised
// format/size support, per the control surface's device-info query.
func (c *Camera) Info() (DeviceInfo, error) {
	return c.controller.Source().Info()
}

// Status computes the on-demand snapshot the Control Surface reports.
func (c *Camera) Status() CameraStatus {
	src := c.controller.Source()
	width, height, format := src.NegotiatedParams()
	var lastErr string
	if err := src.LastError(); err != nil {
		lastErr = err.Error()
	}
	return CameraStatus{
		ID:            c.config.ID,
		Open:          c.controller.IsOpen(),
		Capturing:     src.State() == StateCapturing,
		Width:         width,
		Height:        height,
		Format:        format.String(),
		StreamClients: c.StreamClientCount(),
		Recorder:      c.recorder.Status(),
		LastError:     lastErr,
	}
}

// Shutdown tears down the camera's controller task for process exit.
func (c *Camera) Shutdown() {
	_ = c.StopRecording()
	c.controller.Shutdown()
}
