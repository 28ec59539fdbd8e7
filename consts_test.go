package main

import "testing"

func TestHasExtension(t *testing.T) {
	tests := []struct {
		filename string
		ext      string
		want     bool
	}{
		{"video_20260101_120000.mjpeg", ExtensionMJPEG, true},
		{"image.jpg", ExtensionJPEG, true},
		{"video.mp4", ExtensionMJPEG, false},
		{"a", ExtensionMJPEG, false},
		{"", ExtensionJPEG, false},
	}
	for _, tt := range tests {
		if got := HasExtension(tt.filename, tt.ext); got != tt.want {
			t.Errorf("HasExtension(%q, %q) = %v, want %v", tt.filename, tt.ext, got, tt.want)
		}
	}
}

func TestIsMJPEGFile(t *testing.T) {
	if !IsMJPEGFile("segment_001.mjpeg") {
		t.Error("expected .mjpeg file to be recognized")
	}
	if IsMJPEGFile("segment_001.jpg") {
		t.Error("did not expect .jpg file to be recognized as MJPEG")
	}
}
