package main

import (
	"encoding/json"
	"net/http"

	"edgecamd/camera"
)

// cameraOpenRequest is the POST /api/camera/open body.
type cameraOpenRequest struct {
	DevicePath string `json:"device_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FPS        int    `json:"fps"`
	Format     string `json:"format"`
}

func (s *APIServer) handleCameraOpen(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}

	var req cameraOpenRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // a missing/empty body just opens with configured defaults
	}

	params := camera.CaptureParams{
		DevicePath:      req.DevicePath,
		Width:           req.Width,
		Height:          req.Height,
		FPS:             req.FPS,
		PreferredFormat: camera.ParsePixelFormat(req.Format),
	}
	if err := cam.Open(params); err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *APIServer) handleCameraClose(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	if err := cam.Close(); err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *APIServer) handleCameraStartPreview(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	if err := cam.StartPreview(); err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *APIServer) handleCameraStopPreview(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	if err := cam.StopPreview(); err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *APIServer) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	path, _, err := cam.Capture()
	if err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "path": path})
}

// recordingRequest is the POST /api/camera/start_recording body.
type recordingRequest struct {
	OutputPath         string `json:"output_path"`
	Format             string `json:"format"`
	Encoder            string `json:"encoder"`
	Bitrate            int    `json:"bitrate"`
	Duration           int    `json:"duration"`
	RotateMaxDurationS int    `json:"rotate_max_duration_s"`
	RotateMaxBytes     int64  `json:"rotate_max_bytes"`
}

func (s *APIServer) handleCameraStartRecording(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}

	var req recordingRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	policy := camera.RotationPolicy{
		MaxDurationS: req.RotateMaxDurationS,
		MaxSizeBytes: req.RotateMaxBytes,
	}
	if policy.MaxDurationS == 0 {
		policy.MaxDurationS = s.config.RotateMaxDurationS
	}
	if policy.MaxSizeBytes == 0 {
		policy.MaxSizeBytes = s.config.RotateMaxBytes
	}

	if err := cam.StartRecording(policy); err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *APIServer) handleCameraStopRecording(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	if err := cam.StopRecording(); err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *APIServer) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cam.Status())
}

// handleCamerasList reports the configuration of every managed camera.
func (s *APIServer) handleCamerasList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cameraManager.ListCameras())
}

// handleConfigReload re-reads the config file from disk and restarts
// every camera engine against it, picking up added/removed/edited
// camera entries without a process restart.
func (s *APIServer) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	config, err := LoadOrCreateConfig(s.configPath)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dirs := camera.Directories{
		PhotosDir: config.PhotosDir,
		VideosDir: config.VideosDir,
		FramesDir: config.FramesDir,
	}
	if err := s.cameraManager.RestartWithConfigs(config.Cameras, dirs, config.MaxStreamClients); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Server-level settings (port, API key, stream defaults) take effect
	// on next process start; only the camera fleet is hot-reloaded here.
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleCameraInfo reports the open device's name, bus info, and
// advertised format/size support.
func (s *APIServer) handleCameraInfo(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	info, err := cam.Info()
	if err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleCameraStreamToken mints a short-lived token scoped to one camera
// for sharing a /ws/video link without handing out the pre-shared API key.
func (s *APIServer) handleCameraStreamToken(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	token, err := s.auth.GenerateStreamToken(cam.Config().ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
