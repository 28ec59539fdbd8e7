package camera

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorderWritesAndFinalizesOnStop(t *testing.T) {
	dir := t.TempDir()
	bus := NewFrameBus(nil)
	rec := NewRecorder(bus, nil)

	base := filepath.Join(dir, "video_20260101_120000")
	if err := rec.Start(base, ".mjpeg", RotationPolicy{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bus.Publish(newTestFrame(1))
	bus.Publish(newTestFrame(2))
	time.Sleep(50 * time.Millisecond)

	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	status := rec.Status()
	if status.State != RecorderFinalized {
		t.Fatalf("expected finalized state, got %s", status.State)
	}
	if status.FrameCount != 2 {
		t.Fatalf("expected 2 frames written, got %d", status.FrameCount)
	}
	if _, err := os.Stat(status.CurrentFile); err != nil {
		t.Fatalf("expected finalized segment file to exist: %v", err)
	}
	if filepath.Ext(status.CurrentFile) != ".mjpeg" {
		t.Fatalf("expected final segment to end in .mjpeg, got %s", status.CurrentFile)
	}
}

func TestRecorderRotatesOnMaxBytes(t *testing.T) {
	dir := t.TempDir()
	bus := NewFrameBus(nil)
	rec := NewRecorder(bus, nil)

	base := filepath.Join(dir, "video_20260101_130000")
	frameSize := int64(len(newTestFrame(1).Payload))
	policy := RotationPolicy{MaxSizeBytes: frameSize} // rotate after exactly one frame
	if err := rec.Start(base, ".mjpeg", policy); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bus.Publish(newTestFrame(1))
	time.Sleep(30 * time.Millisecond)
	bus.Publish(newTestFrame(2))
	time.Sleep(30 * time.Millisecond)

	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	status := rec.Status()
	if status.SegmentIndex < 1 {
		t.Fatalf("expected at least one rotation, segment index=%d", status.SegmentIndex)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var segments int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".mjpeg" {
			segments++
		}
	}
	if segments < 2 {
		t.Fatalf("expected at least 2 finalized segment files after rotation, got %d", segments)
	}
}

func TestRecorderStartRejectsDoubleStart(t *testing.T) {
	dir := t.TempDir()
	bus := NewFrameBus(nil)
	rec := NewRecorder(bus, nil)

	base := filepath.Join(dir, "video")
	if err := rec.Start(base, ".mjpeg", RotationPolicy{}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer rec.Stop()

	if err := rec.Start(base, ".mjpeg", RotationPolicy{}); err == nil {
		t.Fatal("expected second Start on an active recorder to be rejected")
	}
}

func TestRecorderStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	bus := NewFrameBus(nil)
	rec := NewRecorder(bus, nil)

	base := filepath.Join(dir, "video")
	if err := rec.Start(base, ".mjpeg", RotationPolicy{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op success, got: %v", err)
	}
}
