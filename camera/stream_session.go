package camera

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync/atomic"
	"time"
)

// StreamParams are a Stream Session's requested encoding/rate/size
// parameters, taken from the HTTP query string or a WS start command.
type StreamParams struct {
	Quality int // 1-100
	MaxFPS  int // 1-60
	Width   int // 0 = no resize
	Height  int
}

func (p *StreamParams) normalize() {
	if p.Quality <= 0 {
		p.Quality = 80
	}
	if p.MaxFPS <= 0 {
		p.MaxFPS = 30
	}
	if p.MaxFPS > 60 {
		p.MaxFPS = 60
	}
}

// FrameSink abstracts the transmit step so the same pipeline (rate gate,
// resize gate, encode gate) serves both HTTP multipart and WS binary
// delivery; only the last step differs.
type FrameSink interface {
	// Send writes one encoded JPEG frame. An error marks the session
	// closed; no retry is attempted.
	Send(jpegBytes []byte) error
}

// StreamSession is one admitted HTTP MJPEG request or WS /ws/video
// connection, each holding its own Frame Bus subscriber (newest-wins,
// capacity 2) so a slow client can never stall another.
type StreamSession struct {
	id      uint64
	bus     *FrameBus
	sub     *Subscriber
	encoder Encoder
	params  StreamParams
	sink    FrameSink
	log     Logger

	lastSent  time.Time
	frameSent uint64
	closed    int32
}

// NewStreamSession subscribes to bus and returns a session ready to run.
// Admission control (max_stream_clients) is the caller's responsibility,
// checked before this constructor is invoked.
func NewStreamSession(id uint64, bus *FrameBus, encoder Encoder, params StreamParams, sink FrameSink, log Logger) (*StreamSession, error) {
	params.normalize()
	sub, err := bus.Subscribe(SubscriberKindStream, 2, DropNewestWins)
	if err != nil {
		return nil, fmt.Errorf("stream session: %w", err)
	}
	return &StreamSession{
		id:      id,
		bus:     bus,
		sub:     sub,
		encoder: encoder,
		params:  params,
		sink:    sink,
		log:     log,
	}, nil
}

// Run drives the session's pipeline until the bus closes, the sink
// errors, or stop is closed. It blocks the caller (typically run as the
// per-session task, one goroutine per HTTP request or WS connection).
func (s *StreamSession) Run(stop <-chan struct{}) {
	defer s.bus.Unsubscribe(s.sub)
	minInterval := time.Second / time.Duration(s.params.MaxFPS)

	for {
		select {
		case <-stop:
			return
		case frame, ok := <-s.sub.Inbox():
			if !ok || frame == nil {
				return // sentinel close or unsubscribed
			}
			s.handleFrame(frame, minInterval)
			if s.Closed() {
				return // sink failed; no retry
			}
		}
	}
}

func (s *StreamSession) handleFrame(frame *Frame, minInterval time.Duration) {
	defer frame.Release()

	// Rate gate.
	if !s.lastSent.IsZero() && time.Since(s.lastSent) < minInterval {
		return
	}

	// Resize gate is folded into the encode gate's target size.
	var target Size
	if s.params.Width > 0 && s.params.Height > 0 {
		target = Size{Width: s.params.Width, Height: s.params.Height}
	}

	jpegBytes, err := s.encoder.Encode(frame, s.params.Quality, target)
	if err != nil {
		if s.log != nil {
			s.log.Debugf("stream session %d: encode: %v", s.id, err)
		}
		return
	}

	if err := s.sendWithDeadline(jpegBytes); err != nil {
		atomic.StoreInt32(&s.closed, 1)
		return
	}

	s.lastSent = time.Now()
	atomic.AddUint64(&s.frameSent, 1)
}

// sendWithDeadline treats a write blocking longer than 2s as a failure,
// per §4.4's write-deadline rule.
func (s *StreamSession) sendWithDeadline(jpegBytes []byte) error {
	done := make(chan error, 1)
	go func() { done <- s.sink.Send(jpegBytes) }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		return fmt.Errorf("stream session %d: write exceeded 2s deadline", s.id)
	}
}

// Closed reports whether the session's sink has failed.
func (s *StreamSession) Closed() bool { return atomic.LoadInt32(&s.closed) == 1 }

// FrameCount returns the number of frames successfully transmitted.
func (s *StreamSession) FrameCount() uint64 { return atomic.LoadUint64(&s.frameSent) }

// httpMultipartSink writes multipart/x-mixed-replace parts to an HTTP
// response, matching the wire format mandated by §6: boundary + headers
// + JPEG bytes + CRLF per part.
type httpMultipartSink struct {
	w        http.ResponseWriter
	mw       *multipart.Writer
	flusher  http.Flusher
}

// NewHTTPMultipartSink prepares w for an MJPEG multipart response by
// setting its Content-Type. The 200 status and headers go out with the
// first part, so the caller can still answer with an error status if the
// StreamSession is not admitted.
func NewHTTPMultipartSink(w http.ResponseWriter) *httpMultipartSink {
	mw := multipart.NewWriter(w)
	boundary := "frame"
	mw.SetBoundary(boundary)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	flusher, _ := w.(http.Flusher)
	return &httpMultipartSink{w: w, mw: mw, flusher: flusher}
}

func (s *httpMultipartSink) Send(jpegBytes []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", strconv.Itoa(len(jpegBytes)))
	part, err := s.mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write(jpegBytes); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// wsBinarySink adapts any transport with a binary-message Send to
// FrameSink; used by the root package's /ws/video handler with
// coder/websocket's Conn.Write.
type wsBinarySink struct {
	send func(data []byte) error
}

// NewWSBinarySink wraps a plain send function (typically
// conn.Write(ctx, websocket.MessageBinary, data)) as a FrameSink.
func NewWSBinarySink(send func(data []byte) error) FrameSink {
	return &wsBinarySink{send: send}
}

func (s *wsBinarySink) Send(jpegBytes []byte) error {
	return s.send(jpegBytes)
}
