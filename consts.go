package main

import "time"

// =============================================================================
// Server Timeouts
// =============================================================================

const (
	// Why: Protects against slow-read attacks and hung connections
	ServerReadTimeout       = 30 * time.Second  // 30s max to read entire request body
	ServerIdleTimeout       = 120 * time.Second // 2min max idle before closing connection
	ServerReadHeaderTimeout = 10 * time.Second  // 10s max to read HTTP headers
	ServerWriteTimeout      = 0                 // 0 = no timeout (needed for long MJPEG streams)

	// Why: Prevents malicious clients from sending huge headers that consume memory.
	HTTPMaxHeaderBytes = 1 << 20 // 1MB = maximum HTTP header size
)

// =============================================================================
// Storage and Data Conversions
// =============================================================================

const (
	BytesPerKB = 1024
	BytesPerMB = 1024 * 1024
	BytesPerGB = 1024 * 1024 * 1024
)

// =============================================================================
// Default Configuration Values
// =============================================================================

const (
	// Server / capture defaults
	DefaultPort             = 8081
	DefaultStorageCapGB     = 10
	DefaultVideoBitrate     = 1024 // kbps, advisory only (no encoder in this core)
	DefaultVideoFPS         = 30
	DefaultVideoWidth       = 1280
	DefaultVideoHeight      = 720
	DefaultCameraDevice     = "/dev/video0"

	// Recorder rotation defaults
	DefaultSegmentLengthS = 60 // seconds per recorded segment before rotation

	// Stream Session defaults
	DefaultMJPEGQuality     = 80 // 1-100, JPEG encoder quality scale
	DefaultMaxStreamFPS     = 30
	DefaultMaxStreamClients = 5

	// Embed timestamp overlay toggle default
	DefaultEmbedTimestamp = false
)

// =============================================================================
// File Extensions and Formats
// =============================================================================

const (
	ExtensionMJPEG = ".mjpeg"
	ExtensionJPEG  = ".jpg"
)

// =============================================================================
// Helper Functions
// =============================================================================

// HasExtension checks if filename has the given extension
func HasExtension(filename, ext string) bool {
	if len(filename) < len(ext) {
		return false
	}
	return filename[len(filename)-len(ext):] == ext
}

// IsMJPEGFile checks if file is an MJPEG recording
func IsMJPEGFile(filename string) bool {
	return HasExtension(filename, ExtensionMJPEG)
}
