package main

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"edgecamd/camera"
)

type extractionStartRequest struct {
	SourceFile string `json:"source_file"`
	EveryN     int    `json:"every_n"`
	Format     string `json:"format"`
}

func (s *APIServer) handleExtractionStart(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}

	var req extractionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceFile == "" {
		writeJSONError(w, http.StatusBadRequest, "source_file is required")
		return
	}

	sourcePath := filepath.Join(cam.VideosDir(), filepath.Base(req.SourceFile))
	task, err := cam.Extraction().Start(sourcePath, cam.FramesDir(), req.EveryN, req.Format)
	if err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "task_id": task.ID})
}

func taskIDFromPath(path, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
}

func extractionStatusJSON(task *camera.ExtractionTask) map[string]interface{} {
	first, last := task.FirstLastFrame()
	var lastErr string
	if err := task.LastError(); err != nil {
		lastErr = err.Error()
	}
	return map[string]interface{}{
		"task_id":         task.ID,
		"state":           task.State().String(),
		"extracted":       task.Extracted(),
		"total_estimated": task.TotalEstimated(),
		"first_frame":     first,
		"last_frame":      last,
		"archive_path":    task.ArchivePath(),
		"last_error":      lastErr,
	}
}

func (s *APIServer) handleExtractionStatus(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	id := taskIDFromPath(r.URL.Path, "/api/frame-extraction/status")
	task := cam.Extraction().Status(id)
	if task == nil {
		writeJSONError(w, http.StatusNotFound, "extraction task not found")
		return
	}
	writeJSON(w, http.StatusOK, extractionStatusJSON(task))
}

func (s *APIServer) handleExtractionStop(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	id := taskIDFromPath(r.URL.Path, "/api/frame-extraction/stop")
	if err := cam.Extraction().Stop(id); err != nil {
		writeJSONError(w, httpStatusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *APIServer) handleExtractionDownload(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	id := taskIDFromPath(r.URL.Path, "/api/frame-extraction/download")
	task := cam.Extraction().Status(id)
	if task == nil {
		writeJSONError(w, http.StatusNotFound, "extraction task not found")
		return
	}
	archive := task.ArchivePath()
	if archive == "" {
		writeJSONError(w, http.StatusNotFound, "no archive available for this task")
		return
	}
	http.ServeFile(w, r, archive)
}

func (s *APIServer) handleExtractionPreview(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	rest := taskIDFromPath(r.URL.Path, "/api/frame-extraction/preview")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "..") {
		writeJSONError(w, http.StatusBadRequest, "invalid preview path")
		return
	}
	taskID, filename := parts[0], filepath.Base(parts[1])

	full := filepath.Join(cam.FramesDir(), taskID, filename)
	http.ServeFile(w, r, full)
}
