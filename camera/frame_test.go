package camera

import (
	"sync/atomic"
	"testing"
)

func TestFrameValid(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  bool
	}{
		{"nil frame", nil, false},
		{"empty payload", NewFrame(1, 4, 4, PixelFormatMJPEG, nil, 0, nil), false},
		{"unknown format", NewFrame(1, 4, 4, PixelFormatUnknown, []byte{1}, 0, nil), false},
		{"mjpeg one byte ok", NewFrame(1, 4, 4, PixelFormatMJPEG, []byte{0xFF}, 0, nil), true},
		{"yuyv too short", NewFrame(1, 4, 4, PixelFormatYUYV, make([]byte, 4), 0, nil), false},
		{"yuyv exact size", NewFrame(1, 4, 4, PixelFormatYUYV, make([]byte, 4*4*2), 0, nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameRetainReleaseFiresHookOnce(t *testing.T) {
	var hookCalls int32
	f := NewFrame(1, 1, 1, PixelFormatMJPEG, []byte{0xFF}, 0, func() {
		atomic.AddInt32(&hookCalls, 1)
	})
	f.Retain(2) // refcount now 3

	f.Release()
	f.Release()
	if atomic.LoadInt32(&hookCalls) != 0 {
		t.Fatalf("release hook fired early, calls=%d", hookCalls)
	}
	f.Release()
	if atomic.LoadInt32(&hookCalls) != 1 {
		t.Fatalf("release hook did not fire exactly once, calls=%d", hookCalls)
	}

	// Further releases must not re-trigger the hook.
	f.Release()
	if atomic.LoadInt32(&hookCalls) != 1 {
		t.Fatalf("release hook fired more than once, calls=%d", hookCalls)
	}
}

func TestParsePixelFormat(t *testing.T) {
	tests := []struct {
		in   string
		want PixelFormat
	}{
		{"mjpeg", PixelFormatMJPEG},
		{"MJPEG", PixelFormatMJPEG},
		{"YUYV", PixelFormatYUYV},
		{"h264", PixelFormatH264},
		{"", PixelFormatUnknown},
		{"bogus", PixelFormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParsePixelFormat(tt.in); got != tt.want {
				t.Errorf("ParsePixelFormat(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
