package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Encoder is the capability the Stream Session's encode gate consults. A
// pass-through implementation (the default for MJPEG sources) skips
// encoding entirely when the frame is already JPEG and no resize was
// requested; alternate encoders are swappable for tests. Keeping encoding
// behind this interface, rather than embedded in the streamer, is what
// lets pass-through skip the decode/encode round-trip entirely.
type Encoder interface {
	// Encode produces JPEG bytes for frame at the requested quality
	// (1-100) and, if target is non-zero, resized to target dimensions.
	Encode(frame *Frame, quality int, target Size) ([]byte, error)
}

// Size is an optional target resolution for the resize gate. A zero Size
// means "no resize".
type Size struct {
	Width  int
	Height int
}

func (s Size) empty() bool { return s.Width == 0 || s.Height == 0 }

// jpegEncoder implements Encoder: JPEG/MJPEG payloads pass straight
// through when no resize is requested; anything else (or a resize
// request) is decoded, optionally resized with CatmullRom scaling, and
// re-encoded at the requested quality.
type jpegEncoder struct{}

// NewEncoder returns the default Encoder capability.
func NewEncoder() Encoder { return &jpegEncoder{} }

func (e *jpegEncoder) Encode(frame *Frame, quality int, target Size) ([]byte, error) {
	if quality <= 0 {
		quality = 80
	}
	if quality > 100 {
		quality = 100
	}

	if frame.IsJPEG() && target.empty() {
		return frame.Payload, nil
	}

	var src image.Image
	switch frame.Format {
	case PixelFormatMJPEG:
		decoded, err := jpeg.Decode(bytes.NewReader(frame.Payload))
		if err != nil {
			return nil, fmt.Errorf("encode: decode source jpeg: %w", ErrEncoding)
		}
		src = decoded
	case PixelFormatRGB24:
		src = rgb24ToImage(frame.Payload, frame.Width, frame.Height)
	default:
		return nil, fmt.Errorf("encode: format %s not encodable: %w", frame.Format, ErrEncoding)
	}

	if !target.empty() && (target.Width != src.Bounds().Dx() || target.Height != src.Bounds().Dy()) {
		src = resize(src, target.Width, target.Height)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode: %w", ErrEncoding)
	}
	return buf.Bytes(), nil
}

// resize scales src to width x height. CatmullRom gives good quality for
// downscaling preview frames without the cost of a software video
// encoder.
func resize(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// rgb24ToImage wraps a packed RGB24 buffer in an image.Image, for
// encoders asked to re-encode an uncompressed capture.
func rgb24ToImage(payload []byte, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	stride := width * 3
	for y := 0; y < height; y++ {
		row := payload[y*stride : (y+1)*stride]
		for x := 0; x < width; x++ {
			i := x * 3
			di := img.PixOffset(x, y)
			img.Pix[di] = row[i]
			img.Pix[di+1] = row[i+1]
			img.Pix[di+2] = row[i+2]
			img.Pix[di+3] = 0xFF
		}
	}
	return img
}
