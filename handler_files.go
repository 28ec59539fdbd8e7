package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fileEntry describes one listed file under a camera's photos or videos
// directory.
type fileEntry struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime string `json:"mod_time"`
}

func listDir(dir string) ([]fileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []fileEntry{}, nil
		}
		return nil, err
	}
	out := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, fileEntry{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

func (s *APIServer) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	entries, err := listDir(cam.PhotosDir())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"photos": entries})
}

func (s *APIServer) handleListVideos(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	entries, err := listDir(cam.VideosDir())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": entries})
}

// servePathFile serves dir/file (or triggers a download with a
// Content-Disposition header when the path ends in /download), rejecting
// any attempt to escape dir via path traversal.
func servePathFile(w http.ResponseWriter, r *http.Request, dir, routePrefix string) {
	rest := strings.TrimPrefix(r.URL.Path, routePrefix)
	rest = strings.TrimPrefix(rest, "/")

	download := false
	if strings.HasSuffix(rest, "/download") {
		download = true
		rest = strings.TrimSuffix(rest, "/download")
	}
	if rest == "" || strings.Contains(rest, "..") {
		writeJSONError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	full := filepath.Join(dir, filepath.Base(rest))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		writeJSONError(w, http.StatusNotFound, "file not found")
		return
	}

	if ctype := mime.TypeByExtension(filepath.Ext(full)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}
	if download {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(full)))
	}
	http.ServeFile(w, r, full)
}

func (s *APIServer) handlePhotoFile(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	servePathFile(w, r, cam.PhotosDir(), "/api/photos")
}

func (s *APIServer) handleVideoFile(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	servePathFile(w, r, cam.VideosDir(), "/api/videos")
}
