package camera

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func jpegFrame(marker byte) []byte {
	return []byte{0xFF, 0xD8, marker, marker, 0xFF, 0xD9}
}

func TestReadNextJPEGFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(jpegFrame(0x01))
	buf.Write(jpegFrame(0x02))

	r := bufio.NewReader(&buf)
	first, err := readNextJPEGFrame(r)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if !bytes.Equal(first, jpegFrame(0x01)) {
		t.Fatalf("first frame mismatch: %x", first)
	}

	second, err := readNextJPEGFrame(r)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if !bytes.Equal(second, jpegFrame(0x02)) {
		t.Fatalf("second frame mismatch: %x", second)
	}

	if _, err := readNextJPEGFrame(r); err == nil {
		t.Fatal("expected EOF after last frame")
	}
}

func TestReadNextJPEGFrameSkipsGarbagePrefix(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x11, 0x22})
	buf.Write(jpegFrame(0x9))

	r := bufio.NewReader(&buf)
	frame, err := readNextJPEGFrame(r)
	if err != nil {
		t.Fatalf("readNextJPEGFrame: %v", err)
	}
	if !bytes.Equal(frame, jpegFrame(0x9)) {
		t.Fatalf("frame mismatch: %x", frame)
	}
}

func TestExtractionWorkerRun(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "rec.mjpeg")

	var data bytes.Buffer
	for i := byte(1); i <= 4; i++ {
		data.Write(jpegFrame(i))
	}
	if err := os.WriteFile(sourcePath, data.Bytes(), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	w := NewExtractionWorker(nil, nil)
	task, err := w.Start(sourcePath, dir, 2, "jpg")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for task.State() != ExtractionCompleted {
		if time.Now().After(deadline) {
			t.Fatalf("extraction did not complete, state=%s", task.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if task.Extracted() != 2 {
		t.Fatalf("expected 2 extracted frames (every_n=2 of 4), got %d", task.Extracted())
	}
	entries, err := os.ReadDir(task.OutputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 files on disk, got %d", len(entries))
	}
}

func TestExtractionWorkerRejectsNonMJPEGSource(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "rec.mp4")
	if err := os.WriteFile(sourcePath, []byte("x"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	w := NewExtractionWorker(nil, nil)
	if _, err := w.Start(sourcePath, dir, 1, "jpg"); err == nil {
		t.Fatal("expected rejection of non-.mjpeg source")
	}
}

func TestExtractionWorkerRejectsMissingSource(t *testing.T) {
	dir := t.TempDir()
	w := NewExtractionWorker(nil, nil)
	if _, err := w.Start(filepath.Join(dir, "missing.mjpeg"), dir, 1, "jpg"); err == nil {
		t.Fatal("expected rejection of missing source file")
	}
}

func TestCleanupCompletedEvictsOldestByCreationOrder(t *testing.T) {
	dir := t.TempDir()
	w := NewExtractionWorker(nil, nil)

	var ids []string
	for i := 0; i < 5; i++ {
		sourcePath := filepath.Join(dir, "rec.mjpeg")
		if err := os.WriteFile(sourcePath, jpegFrame(byte(i)), 0644); err != nil {
			t.Fatalf("write source: %v", err)
		}
		task, err := w.Start(sourcePath, dir, 1, "jpg")
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		deadline := time.Now().Add(2 * time.Second)
		for st := task.State(); st == ExtractionPending || st == ExtractionRunning; st = task.State() {
			if time.Now().After(deadline) {
				t.Fatalf("task %d did not finish", i)
			}
			time.Sleep(5 * time.Millisecond)
		}
		ids = append(ids, task.ID)
	}

	removed := w.CleanupCompleted(2)
	if removed != 3 {
		t.Fatalf("expected 3 tasks evicted, got %d", removed)
	}
	for i, id := range ids {
		_, stillPresent := w.tasks[id]
		wantPresent := i >= 3 // the 3 oldest (ids[0:3]) should be gone
		if stillPresent != wantPresent {
			t.Errorf("task %s (created %dth): present=%v, want %v", id, i, stillPresent, wantPresent)
		}
	}
}
