package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"edgecamd/camera"
)

// wsCommand is a text command sent over /ws/video's control channel.
type wsCommand struct {
	Cmd      string `json:"cmd"`
	Device   string `json:"device"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FPS      int    `json:"fps"`
	Quality  int    `json:"quality"`
	CameraID string `json:"camera_id"`
}

// wsResponse is a text response sent by the server on /ws/video's
// control channel.
type wsResponse struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// handleWSVideo multiplexes the control and binary frame channels over a
// single connection, per spec.md §6. Reading commands and writing frames
// happen concurrently, serialized onto the connection by writeMu so
// text responses and binary frames never interleave mid-message.
func (s *APIServer) handleWSVideo(w http.ResponseWriter, r *http.Request) {
	camID := r.URL.Query().Get("camera_id")
	if camID == "" {
		camID = s.cameraManager.GetDefaultCameraID()
	}
	if !s.auth.AuthorizedForStream(r, camID) {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid credentials")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Printf("ws/video: accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	var writeMu sync.Mutex

	writeText := func(resp wsResponse) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		data, _ := json.Marshal(resp)
		return conn.Write(ctx, websocket.MessageText, data)
	}
	writeBinary := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return conn.Write(wctx, websocket.MessageBinary, data)
	}

	writeText(wsResponse{Type: "welcome"})

	var activeSession *camera.StreamSession
	var activeCam *camera.Camera
	sessionStop := make(chan struct{})
	defer func() {
		if activeSession != nil {
			close(sessionStop)
			activeCam.ReleaseStreamSession(activeSession)
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			writeText(wsResponse{Type: "error", Message: "invalid JSON command"})
			continue
		}

		cam, ok := s.resolveWSCamera(cmd.CameraID)
		if !ok {
			writeText(wsResponse{Type: "error", Message: "camera not found"})
			continue
		}

		switch cmd.Cmd {
		case "start_camera":
			if activeSession != nil {
				close(sessionStop)
				activeCam.ReleaseStreamSession(activeSession)
				activeSession = nil
			}
			params := camera.StreamParams{
				Width:   cmd.Width,
				Height:  cmd.Height,
				Quality: cmd.Quality,
				MaxFPS:  cmd.FPS,
			}
			sink := camera.NewWSBinarySink(writeBinary)
			session, err := cam.NewStreamSession(params, sink)
			if err != nil {
				writeText(wsResponse{Type: "error", Message: err.Error()})
				continue
			}
			activeSession, activeCam = session, cam
			sessionStop = make(chan struct{})
			go session.Run(sessionStop)
			writeText(wsResponse{Type: "success", Message: "camera started"})

		case "stop_camera":
			if activeSession != nil {
				close(sessionStop)
				activeCam.ReleaseStreamSession(activeSession)
				activeSession = nil
			}
			writeText(wsResponse{Type: "success", Message: "camera stopped"})

		case "capture_photo":
			path, _, err := cam.Capture()
			if err != nil {
				writeText(wsResponse{Type: "error", Message: err.Error()})
				continue
			}
			writeText(wsResponse{Type: "success", Data: map[string]string{"path": path}})

		case "start_recording":
			policy := camera.RotationPolicy{MaxDurationS: s.config.RotateMaxDurationS, MaxSizeBytes: s.config.RotateMaxBytes}
			if err := cam.StartRecording(policy); err != nil {
				writeText(wsResponse{Type: "error", Message: err.Error()})
				continue
			}
			writeText(wsResponse{Type: "success", Message: "recording started"})

		case "stop_recording":
			if err := cam.StopRecording(); err != nil {
				writeText(wsResponse{Type: "error", Message: err.Error()})
				continue
			}
			writeText(wsResponse{Type: "success", Message: "recording stopped"})

		case "get_status":
			writeText(wsResponse{Type: "status", Data: cam.Status()})

		case "get_info":
			info, err := cam.Info()
			if err != nil {
				writeText(wsResponse{Type: "error", Message: err.Error()})
				continue
			}
			writeText(wsResponse{Type: "info", Data: info})

		default:
			writeText(wsResponse{Type: "error", Message: "unknown command: " + cmd.Cmd})
		}
	}
}

func (s *APIServer) resolveWSCamera(id string) (*camera.Camera, bool) {
	if id == "" {
		id = s.cameraManager.GetDefaultCameraID()
	}
	return s.cameraManager.GetCamera(id)
}
