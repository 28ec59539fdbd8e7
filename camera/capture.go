package camera

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"
)

// CaptureState is the Capture Source's lifecycle state, independent of
// whatever CameraConfig produced it.
type CaptureState int

const (
	StateClosed CaptureState = iota
	StateReady
	StateCapturing
	StateStopping
	StateFailed
)

func (s CaptureState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "closed"
	}
}

// formatFourCC maps a PixelFormat to the kernel FourCC Open requests for
// it; candidates without an entry are skipped during negotiation.
var formatFourCC = map[PixelFormat]v4l2.FourCCType{
	PixelFormatMJPEG: v4l2.PixelFmtMJPEG,
	PixelFormatYUYV:  v4l2.PixelFmtYUYV,
	PixelFormatRGB24: v4l2.PixelFmtRGB24,
	PixelFormatH264:  v4l2.PixelFmtH264,
}

// fourCC packs four ASCII bytes into a kernel FourCC, little-endian, the
// same way V4L2 does. NV12 and BGR24 have no constant in go4vl's
// format.go, so their codes are built here with it.
func fourCC(a, b, c, d byte) v4l2.FourCCType {
	return v4l2.FourCCType(a) | v4l2.FourCCType(b)<<8 | v4l2.FourCCType(c)<<16 | v4l2.FourCCType(d)<<24
}

var (
	pixelFmtNV12  = fourCC('N', 'V', '1', '2')
	pixelFmtBGR24 = fourCC('B', 'G', 'R', '3')
)

// fourCCToFormat maps a negotiated kernel FourCC back to our PixelFormat.
func fourCCToFormat(f v4l2.FourCCType) PixelFormat {
	switch f {
	case v4l2.PixelFmtMJPEG, v4l2.PixelFmtJPEG:
		return PixelFormatMJPEG
	case v4l2.PixelFmtYUYV:
		return PixelFormatYUYV
	case v4l2.PixelFmtRGB24:
		return PixelFormatRGB24
	case v4l2.PixelFmtH264:
		return PixelFormatH264
	case pixelFmtNV12:
		return PixelFormatNV12
	case pixelFmtBGR24:
		return PixelFormatBGR24
	default:
		return PixelFormatUnknown
	}
}

const (
	captureBufferCount  = 4
	captureReadyTimeout = 1 * time.Second
	leakGracePeriod     = 1 * time.Second
)

// CaptureParams are the requested open parameters; Open records what was
// actually granted, which may differ (see NegotiatedParams).
type CaptureParams struct {
	DevicePath      string
	Width           int
	Height          int
	FPS             int
	PreferredFormat PixelFormat
}

// DeviceInfo mirrors Capture Source's Info() contract: name, bus info, and
// the formats/sizes the device claims to support.
type DeviceInfo struct {
	Name      string
	BusInfo   string
	Supported map[string][]Size
}

// mmapBuffer is one kernel-mapped buffer plus its in-flight Frame, used to
// detect leaked buffers whose refcount never drops within the grace period.
type mmapBuffer struct {
	data      []byte
	inFlight  *Frame
	queuedAt  time.Time
}

// CaptureSource owns exactly one V4L2 device. The one-session invariant is
// enforced one level up by the Capture Controller, which owns exactly one
// CaptureSource and refuses a second Open while it is open; each
// configured camera has its own controller and source.
type CaptureSource struct {
	bus *FrameBus
	log Logger

	mu      sync.Mutex
	state   CaptureState
	file    *os.File
	fd      uintptr
	params  CaptureParams
	negW    int
	negH    int
	negFmt  PixelFormat
	buffers []mmapBuffer
	seq     uint64
	lastErr error

	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCaptureSource creates a Capture Source publishing to bus.
func NewCaptureSource(bus *FrameBus, log Logger) *CaptureSource {
	return &CaptureSource{bus: bus, log: log, state: StateClosed}
}

// State returns the current lifecycle state.
func (c *CaptureSource) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the sticky error recorded on a terminal fault, or nil.
func (c *CaptureSource) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// NegotiatedParams returns the (width, height, format) actually granted by
// the kernel, which may differ from what was requested.
func (c *CaptureSource) NegotiatedParams() (width, height int, format PixelFormat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negW, c.negH, c.negFmt
}

// Open negotiates a format (requested, then MJPEG, then YUYV), allocates
// and queues the mmap buffer pool, and transitions Closed -> Ready.
func (c *CaptureSource) Open(params CaptureParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		return fmt.Errorf("open: %w", ErrState)
	}

	file, err := os.OpenFile(params.DevicePath, syscall.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("open %s: %w", params.DevicePath, ErrDeviceNotFound)
		}
		return fmt.Errorf("open %s: %w", params.DevicePath, ErrIO)
	}
	fd := file.Fd()

	if _, err := v4l2.GetCapability(fd); err != nil {
		file.Close()
		return fmt.Errorf("open %s: capability: %w", params.DevicePath, ErrIO)
	}

	chain := negotiationChain(params.PreferredFormat)
	var granted v4l2.PixFormat
	var negotiated bool
	for _, candidate := range chain {
		fcc, ok := formatFourCC[candidate]
		if !ok {
			continue
		}
		want := v4l2.PixFormat{
			Width:       uint32(params.Width),
			Height:      uint32(params.Height),
			PixelFormat: fcc,
			Field:       v4l2.FieldAny,
		}
		if err := v4l2.SetPixFormat(fd, want); err != nil {
			continue
		}
		got, err := v4l2.GetPixFormat(fd)
		if err != nil {
			continue
		}
		granted = got
		negotiated = true
		break
	}
	if !negotiated {
		file.Close()
		return fmt.Errorf("open %s: %w", params.DevicePath, ErrUnsupportedFormat)
	}

	if params.FPS > 0 {
		_ = setStreamFPS(fd, params.FPS)
	}

	reqBufs, err := v4l2.InitBuffers(fd, captureBufferCount)
	if err != nil {
		file.Close()
		return fmt.Errorf("open %s: request buffers: %w", params.DevicePath, ErrIO)
	}

	buffers := make([]mmapBuffer, 0, reqBufs.Count)
	for i := uint32(0); i < reqBufs.Count; i++ {
		buf, err := v4l2.GetBuffer(fd, i)
		if err != nil {
			unmapAll(buffers)
			file.Close()
			return fmt.Errorf("open %s: query buffer %d: %w", params.DevicePath, i, ErrIO)
		}
		mapped, err := v4l2.MapMemoryBuffer(fd, int64(buf.Info.Offset), int(buf.Length))
		if err != nil {
			unmapAll(buffers)
			file.Close()
			return fmt.Errorf("open %s: map buffer %d: %w", params.DevicePath, i, ErrIO)
		}
		buffers = append(buffers, mmapBuffer{data: mapped})
	}

	for i := range buffers {
		if _, err := v4l2.QueueBuffer(fd, uint32(i)); err != nil {
			unmapAll(buffers)
			file.Close()
			return fmt.Errorf("open %s: queue buffer %d: %w", params.DevicePath, i, ErrIO)
		}
	}

	c.file = file
	c.fd = fd
	c.params = params
	c.negW = int(granted.Width)
	c.negH = int(granted.Height)
	c.negFmt = fourCCToFormat(granted.PixelFormat)
	c.buffers = buffers
	c.seq = 0
	c.lastErr = nil
	c.state = StateReady
	return nil
}

// Info reports the device name/bus-info and the format/frame-size
// combinations the driver advertises via VIDIOC_ENUM_FMT and
// VIDIOC_ENUM_FRAMESIZES. Only valid while the device is open.
func (c *CaptureSource) Info() (DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return DeviceInfo{}, fmt.Errorf("info: %w", ErrState)
	}
	cap, err := v4l2.GetCapability(c.fd)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("info: %w", ErrIO)
	}
	info := DeviceInfo{Name: cap.Card, BusInfo: cap.BusInfo, Supported: map[string][]Size{}}
	for i := uint32(0); ; i++ {
		desc, err := v4l2.GetFormatDescription(c.fd, i)
		if err != nil {
			break
		}
		pf := fourCCToFormat(desc.PixelFormat)
		if pf == PixelFormatUnknown {
			continue
		}
		key := pf.String()
		for j := uint32(0); ; j++ {
			fs, err := v4l2.GetFormatFrameSize(c.fd, j, desc.PixelFormat)
			if err != nil {
				break
			}
			info.Supported[key] = append(info.Supported[key], Size{
				Width:  int(fs.Size.MaxWidth),
				Height: int(fs.Size.MaxHeight),
			})
		}
	}
	return info, nil
}

// Start transitions Ready -> Capturing: STREAMON, then spawns the capture
// task.
func (c *CaptureSource) Start() error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return fmt.Errorf("start: %w", ErrState)
	}
	if err := v4l2.StreamOn(c.fd); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("start: stream on: %w", ErrIO)
	}
	c.state = StateCapturing
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.captureLoop()
	return nil
}

// captureLoop is the single task permitted to touch the fd and buffer
// pool once streaming. It waits on device readiness (1s deadline), on
// readable dequeues one buffer, wraps it in a Frame, publishes it, and
// attaches a release hook that requeues the buffer on final refcount
// drop. On timeout it checks the stop flag and loops; on fatal I/O error
// it transitions to Failed and closes the bus.
func (c *CaptureSource) captureLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.stopCh:
			c.mu.Lock()
			_ = v4l2.StreamOff(c.fd)
			c.state = StateReady
			c.mu.Unlock()
			return
		default:
		}

		err := v4l2.WaitForDeviceRead(c.fd, captureReadyTimeout)
		if err != nil {
			continue // timeout: re-check stop flag
		}

		buf, err := v4l2.DequeueBuffer(c.fd)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			c.fail(fmt.Errorf("dequeue: %w", ErrIO))
			return
		}

		idx := buf.Index
		if int(idx) >= len(c.buffers) {
			continue
		}
		if buf.BytesUsed == 0 {
			// Discard zero-length frames; requeue immediately.
			c.requeue(idx)
			continue
		}

		c.mu.Lock()
		c.seq++
		seq := c.seq
		width, height, format := c.negW, c.negH, c.negFmt
		c.mu.Unlock()

		payload := c.buffers[idx].data[:buf.BytesUsed]
		bufIndex := int(idx)
		frame := NewFrame(seq, width, height, format, payload, bufIndex, func() {
			c.requeue(uint32(bufIndex))
		})
		c.buffers[idx].inFlight = frame
		c.buffers[idx].queuedAt = time.Now()

		c.bus.Publish(frame)
		c.checkLeaked(idx)
	}
}

// checkLeaked warns if a buffer handed to a subscriber hasn't been
// requeued within the grace period, per edge case (i).
func (c *CaptureSource) checkLeaked(idx uint32) {
	b := &c.buffers[idx]
	if b.inFlight == nil {
		return
	}
	if b.inFlight.RefCount() > 0 && time.Since(b.queuedAt) > leakGracePeriod {
		if c.log != nil {
			c.log.Printf("capture: buffer %d leaked past grace period, continuing with one fewer buffer", idx)
		}
	}
}

// requeue hands a buffer back to the kernel. Errors other than ENODEV are
// logged and the buffer is dropped (left unqueued); ENODEV fails the
// session.
func (c *CaptureSource) requeue(idx uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCapturing {
		return
	}
	if idx < uint32(len(c.buffers)) {
		c.buffers[idx].inFlight = nil
	}
	if _, err := v4l2.QueueBuffer(c.fd, idx); err != nil {
		if errors.Is(err, syscall.ENODEV) {
			go c.fail(fmt.Errorf("requeue: %w", ErrIO))
			return
		}
		if c.log != nil {
			c.log.Printf("capture: requeue buffer %d: %v", idx, err)
		}
	}
}

func (c *CaptureSource) fail(err error) {
	c.mu.Lock()
	c.state = StateFailed
	c.lastErr = err
	c.mu.Unlock()
	c.bus.Close()
}

// Stop sets the stop flag, waits up to 5s for the capture task to exit,
// issues STREAMOFF (done inside the loop on clean exit), and transitions
// to Ready. Past the bound the device is force-closed.
func (c *CaptureSource) Stop() error {
	c.mu.Lock()
	if c.state != StateCapturing {
		c.mu.Unlock()
		return nil
	}
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		c.mu.Lock()
		c.state = StateFailed
		c.lastErr = fmt.Errorf("stop: %w", ErrTimeout)
		c.mu.Unlock()
		c.forceClose()
	}
	return nil
}

func (c *CaptureSource) forceClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
}

// Close releases mmap regions and the fd, transitioning to Closed.
func (c *CaptureSource) Close() error {
	_ = c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	unmapAll(c.buffers)
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
	c.buffers = nil
	c.state = StateClosed
	return nil
}

func unmapAll(buffers []mmapBuffer) {
	for _, b := range buffers {
		if b.data != nil {
			_ = v4l2.UnmapMemoryBuffer(b.data)
		}
	}
}

func negotiationChain(preferred PixelFormat) []PixelFormat {
	chain := []PixelFormat{preferred, PixelFormatMJPEG, PixelFormatYUYV}
	seen := make(map[PixelFormat]bool)
	out := make([]PixelFormat, 0, len(chain))
	for _, f := range chain {
		if f == PixelFormatUnknown || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// setStreamFPS would set the capture frame interval via VIDIOC_S_PARM.
// Drivers vary widely in whether they honor it, and go4vl's v4l2 package
// in this revision does not expose a setter for it (only
// GetStreamCaptureParam, read-only). The requested fps is therefore
// advisory only: it is enforced downstream by each Stream Session's rate
// gate (§4.4) rather than at the device.
func setStreamFPS(fd uintptr, fps int) error {
	return nil
}
