package camera

import "errors"

// Sentinel errors returned by the capture engine. Callers match these with
// errors.Is; every error the engine produces wraps one of them.
var (
	ErrDeviceBusy        = errors.New("camera: device busy")
	ErrDeviceNotFound    = errors.New("camera: device not found")
	ErrUnsupportedFormat = errors.New("camera: unsupported format")
	ErrIO                = errors.New("camera: I/O error")
	ErrState             = errors.New("camera: illegal in current state")
	ErrAdmissionDenied   = errors.New("camera: admission denied")
	ErrTimeout           = errors.New("camera: timeout")
	ErrCancelled         = errors.New("camera: cancelled")
	ErrEncoding          = errors.New("camera: encoding error")
	ErrInvalidArgument   = errors.New("camera: invalid argument")
	ErrNotFound          = errors.New("camera: not found")
)

