package camera

import "testing"

func TestNegotiationChain(t *testing.T) {
	tests := []struct {
		name      string
		preferred PixelFormat
		want      []PixelFormat
	}{
		{"preferred mjpeg dedups", PixelFormatMJPEG, []PixelFormat{PixelFormatMJPEG, PixelFormatYUYV}},
		{"preferred yuyv keeps order", PixelFormatYUYV, []PixelFormat{PixelFormatYUYV, PixelFormatMJPEG}},
		{"preferred h264 falls back to mjpeg then yuyv", PixelFormatH264, []PixelFormat{PixelFormatH264, PixelFormatMJPEG, PixelFormatYUYV}},
		{"unknown preferred is dropped", PixelFormatUnknown, []PixelFormat{PixelFormatMJPEG, PixelFormatYUYV}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := negotiationChain(tt.preferred)
			if len(got) != len(tt.want) {
				t.Fatalf("negotiationChain(%v) = %v, want %v", tt.preferred, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("negotiationChain(%v)[%d] = %v, want %v", tt.preferred, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSetStreamFPSIsAdvisoryNoop(t *testing.T) {
	if err := setStreamFPS(0, 30); err != nil {
		t.Fatalf("setStreamFPS is documented as a no-op, got error: %v", err)
	}
}
