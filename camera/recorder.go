package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RecorderState mirrors the RecordingSession state machine in §4.5.
type RecorderState int

const (
	RecorderStarting RecorderState = iota
	RecorderActive
	RecorderRotating
	RecorderFinalizing
	RecorderFinalized
	RecorderFailed
)

func (s RecorderState) String() string {
	switch s {
	case RecorderActive:
		return "active"
	case RecorderRotating:
		return "rotating"
	case RecorderFinalizing:
		return "finalizing"
	case RecorderFinalized:
		return "finalized"
	case RecorderFailed:
		return "failed"
	default:
		return "starting"
	}
}

// RotationPolicy bounds a segment's lifetime; 0 means unlimited.
type RotationPolicy struct {
	MaxDurationS int
	MaxSizeBytes int64
}

// Recorder is a single-writer segmented file sink subscribing to the
// Frame Bus with a block-bounded drop policy. At most one Recorder is
// active at a time (enforced by the bus's at-most-one-recorder
// invariant).
type Recorder struct {
	bus    *FrameBus
	log    Logger
	policy RotationPolicy

	mu           sync.Mutex
	state        RecorderState
	targetBase   string // e.g. "videos/video_20260101_120000"
	ext          string
	segmentIndex int
	segmentStart time.Time
	bytesWritten int64
	frameCount   int64
	lastErr      error
	currentFile  *os.File
	currentTmp   string
	currentFinal string

	sub    *Subscriber
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRecorder creates a Recorder publishing to no one; it subscribes to
// bus when Start is called.
func NewRecorder(bus *FrameBus, log Logger) *Recorder {
	return &Recorder{bus: bus, log: log, state: RecorderFinalized}
}

// Start registers the block-bounded subscriber, opens the first segment
// at targetBase+"_part1"+ext+".tmp", and transitions Starting -> Active.
func (r *Recorder) Start(targetBase, ext string, policy RotationPolicy) error {
	r.mu.Lock()
	if r.state == RecorderActive || r.state == RecorderRotating || r.state == RecorderFinalizing {
		r.mu.Unlock()
		return fmt.Errorf("recorder start: %w", ErrState)
	}
	r.mu.Unlock()

	sub, err := r.bus.Subscribe(SubscriberKindRecorder, 2, DropBlockBounded)
	if err != nil {
		return fmt.Errorf("recorder start: %w", err)
	}

	r.mu.Lock()
	r.state = RecorderStarting
	r.policy = policy
	r.targetBase = targetBase
	r.ext = ext
	r.segmentIndex = 0
	r.bytesWritten = 0
	r.frameCount = 0
	r.lastErr = nil
	r.sub = sub
	r.mu.Unlock()

	if err := r.openSegment(); err != nil {
		r.bus.Unsubscribe(sub)
		r.mu.Lock()
		r.state = RecorderFailed
		r.lastErr = err
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.state = RecorderActive
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run()
	return nil
}

func (r *Recorder) segmentPath(index int) (final, tmp string) {
	final = fmt.Sprintf("%s_part%d%s", r.targetBase, index+1, r.ext)
	tmp = final + ".tmp"
	return
}

func (r *Recorder) openSegment() error {
	final, tmp := r.segmentPath(r.segmentIndex)
	if err := os.MkdirAll(filepath.Dir(tmp), 0755); err != nil {
		return fmt.Errorf("recorder: mkdir: %w", ErrIO)
	}
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("recorder: create segment: %w", ErrIO)
	}
	r.mu.Lock()
	r.currentFile = f
	r.currentTmp = tmp
	r.currentFinal = final
	r.segmentStart = time.Now()
	r.bytesWritten = 0
	r.mu.Unlock()
	return nil
}

// run is the single task owning the recording file handle. It reads
// frames from the bus subscriber's inbox, appends them, evaluates
// rotation before each write, and exits on sentinel close or Stop.
func (r *Recorder) run() {
	defer close(r.doneCh)
	for {
		select {
		case frame, ok := <-r.sub.Inbox():
			if !ok || frame == nil {
				r.finalizeLocked()
				return
			}
			r.appendFrame(frame)
			frame.Release()
		case <-r.stopCh:
			r.drainAndFinalize()
			return
		}
	}
}

// appendFrame evaluates rotation, writes the frame verbatim (MJPEG
// pass-through preserves SOI/EOI markers), and advances counters.
func (r *Recorder) appendFrame(frame *Frame) {
	r.mu.Lock()
	policy := r.policy
	elapsed := time.Since(r.segmentStart)
	needsRotate := (policy.MaxDurationS > 0 && elapsed >= time.Duration(policy.MaxDurationS)*time.Second) ||
		(policy.MaxSizeBytes > 0 && r.bytesWritten >= policy.MaxSizeBytes)
	r.mu.Unlock()

	if needsRotate {
		r.rotate()
	}

	r.mu.Lock()
	f := r.currentFile
	r.mu.Unlock()
	if f == nil {
		return
	}

	n, err := f.Write(frame.Payload)
	if err != nil {
		r.mu.Lock()
		r.state = RecorderFailed
		r.lastErr = fmt.Errorf("recorder write: %w", ErrIO)
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.bytesWritten += int64(n)
	r.frameCount++
	r.mu.Unlock()
}

// rotate closes the current segment, renames it to its final name, opens
// the next segment, and increments the index. The publisher's own
// 10ms recorder budget already bounds how long Publish can wait on this
// subscriber; rotation itself runs entirely in this task, off the
// capture loop.
func (r *Recorder) rotate() {
	r.mu.Lock()
	r.state = RecorderRotating
	f := r.currentFile
	tmp := r.currentTmp
	final := r.currentFinal
	r.mu.Unlock()

	if f != nil {
		f.Close()
		if err := os.Rename(tmp, final); err != nil && r.log != nil {
			r.log.Printf("recorder: rotate rename %s -> %s: %v", tmp, final, err)
		}
	}

	r.mu.Lock()
	r.segmentIndex++
	r.mu.Unlock()

	if err := r.openSegment(); err != nil {
		r.mu.Lock()
		r.state = RecorderFailed
		r.lastErr = err
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.state = RecorderActive
	r.mu.Unlock()
}

// drainAndFinalize drains the inbox (bounded by 1s) before finalizing, so
// frames already in flight are not lost on a clean Stop.
func (r *Recorder) drainAndFinalize() {
	deadline := time.After(1 * time.Second)
drain:
	for {
		select {
		case frame, ok := <-r.sub.Inbox():
			if !ok || frame == nil {
				break drain
			}
			r.appendFrame(frame)
			frame.Release()
		case <-deadline:
			break drain
		}
	}
	r.finalizeLocked()
}

func (r *Recorder) finalizeLocked() {
	r.mu.Lock()
	if r.state == RecorderFinalized {
		r.mu.Unlock()
		return
	}
	r.state = RecorderFinalizing
	f := r.currentFile
	tmp := r.currentTmp
	final := r.currentFinal
	r.currentFile = nil
	r.mu.Unlock()

	if f != nil {
		f.Close()
		if err := os.Rename(tmp, final); err != nil {
			r.mu.Lock()
			r.state = RecorderFailed
			r.lastErr = fmt.Errorf("recorder: finalize rename: %w", ErrIO)
			r.mu.Unlock()
			return
		}
	}

	r.mu.Lock()
	r.state = RecorderFinalized
	r.mu.Unlock()
}

// Stop drains the inbox and finalizes the current segment. Idempotent:
// calling Finalize (i.e. Stop) on an already-Finalized recorder is a
// no-op success.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	state := r.state
	stopCh := r.stopCh
	doneCh := r.doneCh
	sub := r.sub
	r.mu.Unlock()

	if state == RecorderFinalized || state == RecorderStarting {
		return nil
	}

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
	}
	if sub != nil {
		r.bus.Unsubscribe(sub)
	}
	return nil
}

// Status returns a read-only snapshot for the control surface.
type RecorderStatus struct {
	State        RecorderState
	CurrentFile  string
	BytesWritten int64
	FrameCount   int64
	SegmentIndex int
	Elapsed      time.Duration
	LastError    error
}

func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var elapsed time.Duration
	if !r.segmentStart.IsZero() {
		elapsed = time.Since(r.segmentStart)
	}
	return RecorderStatus{
		State:        r.state,
		CurrentFile:  r.currentFinal,
		BytesWritten: r.bytesWritten,
		FrameCount:   r.frameCount,
		SegmentIndex: r.segmentIndex,
		Elapsed:      elapsed,
		LastError:    r.lastErr,
	}
}

// IsActive reports whether the recorder currently owns a subscriber.
func (r *Recorder) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == RecorderActive || r.state == RecorderRotating || r.state == RecorderStarting
}
