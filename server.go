package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"edgecamd/camera"
)

func isErr(err, target error) bool { return errors.Is(err, target) }

// APIServer wires the Control Surface's REST + WebSocket routes onto the
// configured CameraManager, matching spec.md §6's external interface.
type APIServer struct {
	config        *Config
	cameraManager *camera.CameraManager
	storage       *StorageManager
	logger        *Logger
	auth          *AuthMiddleware
	server        *http.Server
	configPath    string
	corsOrigin    string
}

var startTime = time.Now()

// NewAPIServer builds the server; auth is optional (enabled only when
// config.APIKey is set).
func NewAPIServer(config *Config, cameraManager *camera.CameraManager, storage *StorageManager, logger *Logger, configPath string) *APIServer {
	return &APIServer{
		config:        config,
		cameraManager: cameraManager,
		storage:       storage,
		logger:        logger,
		auth:          NewAuthMiddleware(config.APIKey, config.APIKey),
		configPath:    configPath,
		corsOrigin:    "*",
	}
}

// cors applies the CORS headers spec.md §6 requires on every response,
// and answers OPTIONS preflight requests with 204.
func (s *APIServer) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *APIServer) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.cors(s.handleHealth))

	mux.HandleFunc("/api/stream", s.cors(s.authed(s.handleStream)))

	mux.HandleFunc("/api/photos", s.cors(s.authed(s.handleListPhotos)))
	mux.HandleFunc("/api/photos/", s.cors(s.authed(s.handlePhotoFile)))
	mux.HandleFunc("/api/videos", s.cors(s.authed(s.handleListVideos)))
	mux.HandleFunc("/api/videos/", s.cors(s.authed(s.handleVideoFile)))

	mux.HandleFunc("/api/cameras", s.cors(s.authed(s.handleCamerasList)))
	mux.HandleFunc("/api/config/reload", s.cors(s.authed(s.handleConfigReload)))

	mux.HandleFunc("/api/camera/status", s.cors(s.authed(s.handleCameraStatus)))
	mux.HandleFunc("/api/camera/info", s.cors(s.authed(s.handleCameraInfo)))
	mux.HandleFunc("/api/camera/open", s.cors(s.authed(s.handleCameraOpen)))
	mux.HandleFunc("/api/camera/close", s.cors(s.authed(s.handleCameraClose)))
	mux.HandleFunc("/api/camera/start_preview", s.cors(s.authed(s.handleCameraStartPreview)))
	mux.HandleFunc("/api/camera/stop_preview", s.cors(s.authed(s.handleCameraStopPreview)))
	mux.HandleFunc("/api/camera/capture", s.cors(s.authed(s.handleCameraCapture)))
	mux.HandleFunc("/api/camera/start_recording", s.cors(s.authed(s.handleCameraStartRecording)))
	mux.HandleFunc("/api/camera/stop_recording", s.cors(s.authed(s.handleCameraStopRecording)))

	mux.HandleFunc("/api/frame-extraction/start", s.cors(s.authed(s.handleExtractionStart)))
	mux.HandleFunc("/api/frame-extraction/status/", s.cors(s.authed(s.handleExtractionStatus)))
	mux.HandleFunc("/api/frame-extraction/stop/", s.cors(s.authed(s.handleExtractionStop)))
	mux.HandleFunc("/api/frame-extraction/download/", s.cors(s.authed(s.handleExtractionDownload)))
	mux.HandleFunc("/api/frame-extraction/preview/", s.cors(s.authed(s.handleExtractionPreview)))

	mux.HandleFunc("/api/camera/stream_token", s.cors(s.authed(s.handleCameraStreamToken)))

	// /ws/video authenticates inside the handshake rather than via authed:
	// a stream token (browser clients sharing a link) is an acceptable
	// credential here where it isn't on the REST surface.
	mux.HandleFunc("/ws/video", s.cors(s.handleWSVideo))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           mux,
		ReadTimeout:       ServerReadTimeout,
		WriteTimeout:      ServerWriteTimeout,
		IdleTimeout:       ServerIdleTimeout,
		ReadHeaderTimeout: ServerReadHeaderTimeout,
		MaxHeaderBytes:    HTTPMaxHeaderBytes,
	}

	s.logger.Printf("HTTP server starting on port %d", s.config.Port)
	return s.server.ListenAndServe()
}

func (s *APIServer) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// authed wraps a handler with the optional X-API-Key check.
func (s *APIServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.auth.Check(next).ServeHTTP(w, r)
	}
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cameraOr404 resolves the request's camera_id query parameter (or the
// default camera if omitted), writing a 404 JSON error and returning ok
// = false if no such camera is configured.
func (s *APIServer) cameraOr404(w http.ResponseWriter, r *http.Request) (*camera.Camera, bool) {
	id := r.URL.Query().Get("camera_id")
	if id == "" {
		id = s.cameraManager.GetDefaultCameraID()
	}
	cam, ok := s.cameraManager.GetCamera(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("camera %q not found", id))
		return nil, false
	}
	return cam, true
}

// writeJSON writes a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeJSONError writes the {"status":"error","message":"..."} shape
// spec.md §7 mandates for REST error responses.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

// httpStatusForError maps a core error kind to the HTTP status §7
// prescribes.
func httpStatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isErr(err, camera.ErrInvalidArgument):
		return http.StatusBadRequest
	case isErr(err, camera.ErrNotFound), isErr(err, camera.ErrDeviceNotFound):
		return http.StatusNotFound
	case isErr(err, camera.ErrState), isErr(err, camera.ErrDeviceBusy):
		return http.StatusConflict
	case isErr(err, camera.ErrAdmissionDenied):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
