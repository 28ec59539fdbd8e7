package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("test fixture encode: %v", err)
	}
	return buf.Bytes()
}

func TestJPEGEncoderPassThroughWhenNoResize(t *testing.T) {
	payload := encodeTestJPEG(t, 8, 8)
	frame := NewFrame(1, 8, 8, PixelFormatMJPEG, payload, 0, nil)

	enc := NewEncoder()
	out, err := enc.Encode(frame, 80, Size{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("expected pass-through to return the original payload unchanged")
	}
}

func TestJPEGEncoderResizesWhenTargetGiven(t *testing.T) {
	payload := encodeTestJPEG(t, 16, 16)
	frame := NewFrame(1, 16, 16, PixelFormatMJPEG, payload, 0, nil)

	enc := NewEncoder()
	out, err := enc.Encode(frame, 80, Size{Width: 8, Height: 8})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode resized output: %v", err)
	}
	if decoded.Bounds().Dx() != 8 || decoded.Bounds().Dy() != 8 {
		t.Fatalf("expected resized output 8x8, got %dx%d", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestJPEGEncoderRejectsUnencodableFormat(t *testing.T) {
	frame := NewFrame(1, 4, 4, PixelFormatYUYV, make([]byte, 4*4*2), 0, nil)
	enc := NewEncoder()
	if _, err := enc.Encode(frame, 80, Size{}); err == nil {
		t.Fatal("expected an error encoding an unsupported format")
	}
}

func TestJPEGEncoderClampsQuality(t *testing.T) {
	payload := encodeTestJPEG(t, 4, 4)
	frame := NewFrame(1, 4, 4, PixelFormatMJPEG, payload, 0, nil)
	enc := NewEncoder()

	// Force the decode/re-encode path via a resize so quality actually applies.
	if _, err := enc.Encode(frame, 0, Size{Width: 2, Height: 2}); err != nil {
		t.Fatalf("Encode with quality<=0: %v", err)
	}
	if _, err := enc.Encode(frame, 1000, Size{Width: 2, Height: 2}); err != nil {
		t.Fatalf("Encode with quality>100: %v", err)
	}
}
