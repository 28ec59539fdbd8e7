package main

import (
	"net/http"
	"strconv"

	"edgecamd/camera"
)

// handleStream serves GET /api/stream?width=&height=&quality=&fps= as a
// multipart/x-mixed-replace MJPEG response, admission-controlled by the
// target camera's max_stream_clients.
func (s *APIServer) handleStream(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameraOr404(w, r)
	if !ok {
		return
	}
	if !cam.Status().Capturing {
		writeJSONError(w, http.StatusConflict, "device is not capturing")
		return
	}

	q := r.URL.Query()
	params := camera.StreamParams{
		Quality: atoiOr(q.Get("quality"), s.config.StreamDefaultJPEGQuality),
		MaxFPS:  atoiOr(q.Get("fps"), s.config.StreamDefaultMaxFPS),
		Width:   atoiOr(q.Get("width"), 0),
		Height:  atoiOr(q.Get("height"), 0),
	}

	sink := camera.NewHTTPMultipartSink(w)
	session, err := cam.NewStreamSession(params, sink)
	if err != nil {
		if isErr(err, camera.ErrAdmissionDenied) {
			writeJSONError(w, http.StatusServiceUnavailable, "stream admission denied: too many clients")
			return
		}
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	defer cam.ReleaseStreamSession(session)

	stop := r.Context().Done()
	session.Run(stop)
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
