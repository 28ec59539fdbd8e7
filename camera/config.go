package camera

// CameraConfig is the per-device configuration the Capture Controller
// opens with. One CameraManager instance may hold several of these (one
// V4L2 device node each), each getting its own independent Capture
// Source / Frame Bus / Recorder / Extraction Worker.
type CameraConfig struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Device           string `json:"device"`
	Rotation         int    `json:"rotation"` // display rotation hint, 0/90/180/270; not applied by the core
	ResWidth         int    `json:"res_width"`
	ResHeight        int    `json:"res_height"`
	Bitrate          int    `json:"bitrate"`
	FPS              int    `json:"fps"`
	MJPEGQuality     int    `json:"mjpeg_quality"`
	EmbedTimestamp   bool   `json:"embed_timestamp"`
	Enabled          bool   `json:"enabled"`
	MaxStreamClients int    `json:"max_stream_clients"`
}

// preferredFormat maps the stored config to the Capture Source's
// preferred pixel format; v1 always prefers MJPEG, matching §6's
// "MJPEG (preferred)" default.
func (c CameraConfig) preferredFormat() PixelFormat {
	return PixelFormatMJPEG
}

func (c CameraConfig) captureParams() CaptureParams {
	return CaptureParams{
		DevicePath:      c.Device,
		Width:           c.ResWidth,
		Height:          c.ResHeight,
		FPS:             c.FPS,
		PreferredFormat: c.preferredFormat(),
	}
}
