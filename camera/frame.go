package camera

import (
	"strings"
	"sync/atomic"
	"time"
)

// PixelFormat identifies the pixel encoding of a Frame's payload.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatMJPEG
	PixelFormatYUYV
	PixelFormatNV12
	PixelFormatRGB24
	PixelFormatBGR24
	PixelFormatH264
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatMJPEG:
		return "MJPEG"
	case PixelFormatYUYV:
		return "YUYV"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatBGR24:
		return "BGR24"
	case PixelFormatH264:
		return "H264"
	default:
		return "UNKNOWN"
	}
}

// ParsePixelFormat maps a config/request string (case-insensitive) to a
// PixelFormat, returning PixelFormatUnknown for an empty or unrecognized
// value so callers can fall back to the device's own preferred format.
func ParsePixelFormat(s string) PixelFormat {
	switch strings.ToUpper(s) {
	case "MJPEG":
		return PixelFormatMJPEG
	case "YUYV":
		return PixelFormatYUYV
	case "NV12":
		return PixelFormatNV12
	case "RGB24":
		return PixelFormatRGB24
	case "BGR24":
		return PixelFormatBGR24
	case "H264":
		return PixelFormatH264
	default:
		return PixelFormatUnknown
	}
}

// minSizeForFormat returns the minimum payload length a width x height frame
// of the given format may have. Packed/planar formats where width*height
// alone would be too permissive get their true bits-per-pixel bound; formats
// like MJPEG/H264 are only bounded below by one byte.
func minSizeForFormat(format PixelFormat, width, height int) int {
	switch format {
	case PixelFormatYUYV:
		return width * height * 2
	case PixelFormatNV12:
		return width * height * 3 / 2
	case PixelFormatRGB24, PixelFormatBGR24:
		return width * height * 3
	default:
		return 1
	}
}

// Frame is an immutable, reference-counted view of one captured image.
// It is published to the Frame Bus exactly once; every subscriber that
// receives it holds one reference. When the last reference is released,
// releaseHook runs, which for mmap-backed frames requeues the kernel
// buffer and for heap-backed frames is a no-op.
type Frame struct {
	Sequence    uint64
	MonotonicNS int64
	WallClockUS int64
	Width       int
	Height      int
	Format      PixelFormat
	Payload     []byte
	BufferIndex int

	refcount    int32
	releaseHook func()
	requeued    int32 // CAS guard: release hook runs at most once
}

// NewFrame constructs a Frame with an initial refcount of 1 (the caller's
// own reference, typically held by the publisher until Publish hands out
// subscriber references). releaseHook may be nil for heap-owned payloads.
func NewFrame(seq uint64, width, height int, format PixelFormat, payload []byte, bufIndex int, releaseHook func()) *Frame {
	return &Frame{
		Sequence:    seq,
		MonotonicNS: time.Now().UnixNano(),
		WallClockUS: time.Now().UnixMicro(),
		Width:       width,
		Height:      height,
		Format:      format,
		Payload:     payload,
		BufferIndex: bufIndex,
		refcount:    1,
		releaseHook: releaseHook,
	}
}

// Valid reports whether the frame satisfies the Data Model invariants:
// non-empty payload, known format, and a payload large enough for the
// format's minimum packed/planar size.
func (f *Frame) Valid() bool {
	if f == nil || len(f.Payload) == 0 {
		return false
	}
	if f.Format == PixelFormatUnknown {
		return false
	}
	return len(f.Payload) >= minSizeForFormat(f.Format, f.Width, f.Height)
}

// Retain adds n references. The bus calls it with the number of
// subscribers in its publish snapshot, then releases the references of
// those that did not accept the frame.
func (f *Frame) Retain(n int32) {
	atomic.AddInt32(&f.refcount, n)
}

// Release drops one reference. When the refcount reaches zero the release
// hook fires exactly once, regardless of how many goroutines race to be
// the one that drops it to zero.
func (f *Frame) Release() {
	if atomic.AddInt32(&f.refcount, -1) > 0 {
		return
	}
	if f.releaseHook == nil {
		return
	}
	if atomic.CompareAndSwapInt32(&f.requeued, 0, 1) {
		f.releaseHook()
	}
}

// RefCount returns the current reference count, for diagnostics and the
// leaked-buffer grace-period check in the capture loop.
func (f *Frame) RefCount() int32 {
	return atomic.LoadInt32(&f.refcount)
}

// IsJPEG reports whether the payload already carries a JPEG/MJPEG
// bitstream (SOI at the start), used by the encode gate to decide whether
// encoding can be skipped (pass-through).
func (f *Frame) IsJPEG() bool {
	return f.Format == PixelFormatMJPEG && len(f.Payload) >= 2 &&
		f.Payload[0] == 0xFF && f.Payload[1] == 0xD8
}
