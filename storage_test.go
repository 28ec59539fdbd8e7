package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFileAt(t *testing.T, path string, size int, modTime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestIsVideoFile(t *testing.T) {
	if !isVideoFile("segment_0001.mjpeg") {
		t.Error("expected .mjpeg to be recognized as a video file")
	}
	if isVideoFile("photo.jpg") {
		t.Error("did not expect .jpg to be recognized as a video file")
	}
}

func TestEnforceStorageCapDeletesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	sm, err := NewStorageManager(dir, 0, nil) // a 0 GB cap is 0 bytes
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	defer sm.Stop()
	sm.storageCapGB = 0 // force cap to 0 bytes so any content triggers cleanup

	now := time.Now()
	old := filepath.Join(dir, "cam-0", "old.mjpeg")
	newer := filepath.Join(dir, "cam-0", "new.mjpeg")
	// The newer file is empty: deleting the older one alone brings usage to
	// the 0-byte cap, so the newer one survives only if the oldest goes first.
	writeFileAt(t, old, 1024, now.Add(-time.Hour))
	writeFileAt(t, newer, 0, now)

	if err := sm.enforceStorageCap(); err != nil {
		t.Fatalf("enforceStorageCap: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected the older file to be deleted first")
	}
	if _, err := os.Stat(newer); err != nil {
		t.Error("expected the newer file to survive at least one cleanup pass")
	}
}

func TestGetStorageStatsSumsVideoFiles(t *testing.T) {
	dir := t.TempDir()
	sm, err := NewStorageManager(dir, 10, nil)
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	defer sm.Stop()

	writeFileAt(t, filepath.Join(dir, "cam-0", "a.mjpeg"), 2048, time.Now())
	writeFileAt(t, filepath.Join(dir, "cam-0", "a.jpg"), 4096, time.Now()) // not a video file, excluded

	used, capBytes, err := sm.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats: %v", err)
	}
	if used != 2048 {
		t.Errorf("expected used=2048 (only the .mjpeg file counted), got %d", used)
	}
	if capBytes != 10*BytesPerGB {
		t.Errorf("expected cap=%d, got %d", 10*BytesPerGB, capBytes)
	}
}
