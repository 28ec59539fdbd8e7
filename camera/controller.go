package camera

import (
	"fmt"
	"sync"
)

// controllerCmdKind enumerates the commands the Capture Controller accepts
// on its bounded command channel.
type controllerCmdKind int

const (
	cmdOpen controllerCmdKind = iota
	cmdClose
	cmdStart
	cmdStop
	cmdSetParams
)

type controllerCmd struct {
	kind   controllerCmdKind
	params CaptureParams
	reply  chan error
}

const controllerQueueCapacity = 8

// CaptureController is the single point of serialization for mutating
// Capture Source state. It enforces at most one open device, bounds
// Close's implicit stop, and makes SetParams atomic (stop, reconfigure,
// restart; restore prior config on failure).
type CaptureController struct {
	bus    *FrameBus
	log    Logger
	source *CaptureSource

	mu      sync.Mutex
	params  CaptureParams
	opened  bool
	cmds    chan controllerCmd
	closeCh chan struct{}
}

// NewCaptureController creates a controller owning a fresh, unopened
// CaptureSource on bus.
func NewCaptureController(bus *FrameBus, log Logger) *CaptureController {
	c := &CaptureController{
		bus:     bus,
		log:     log,
		source:  NewCaptureSource(bus, log),
		cmds:    make(chan controllerCmd, controllerQueueCapacity),
		closeCh: make(chan struct{}),
	}
	go c.dispatch()
	return c
}

func (c *CaptureController) dispatch() {
	for {
		select {
		case cmd := <-c.cmds:
			cmd.reply <- c.execute(cmd)
		case <-c.closeCh:
			return
		}
	}
}

func (c *CaptureController) execute(cmd controllerCmd) error {
	switch cmd.kind {
	case cmdOpen:
		return c.doOpen(cmd.params)
	case cmdClose:
		return c.doClose()
	case cmdStart:
		return c.doStart()
	case cmdStop:
		return c.doStop()
	case cmdSetParams:
		return c.doSetParams(cmd.params)
	default:
		return fmt.Errorf("controller: %w", ErrInvalidArgument)
	}
}

// submit enqueues a command, rejecting with ErrDeviceBusy rather than
// queueing indefinitely if the channel is full.
func (c *CaptureController) submit(kind controllerCmdKind, params CaptureParams) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- controllerCmd{kind: kind, params: params, reply: reply}:
	default:
		return fmt.Errorf("controller: command queue full: %w", ErrDeviceBusy)
	}
	return <-reply
}

// Open negotiates and arms the device. Rejects if a device is already
// open.
func (c *CaptureController) Open(params CaptureParams) error {
	return c.submit(cmdOpen, params)
}

func (c *CaptureController) doOpen(params CaptureParams) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return fmt.Errorf("open: %w", ErrDeviceBusy)
	}
	c.mu.Unlock()

	if err := c.source.Open(params); err != nil {
		return err
	}
	c.mu.Lock()
	c.opened = true
	c.params = params
	c.mu.Unlock()
	return nil
}

// Close implicitly stops first (bounded wait 5s before force-close), then
// releases the device.
func (c *CaptureController) Close() error {
	return c.submit(cmdClose, CaptureParams{})
}

func (c *CaptureController) doClose() error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.source.Close()
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return err
}

// Start begins capturing on the already-open device.
func (c *CaptureController) Start() error {
	return c.submit(cmdStart, CaptureParams{})
}

func (c *CaptureController) doStart() error {
	c.mu.Lock()
	opened := c.opened
	c.mu.Unlock()
	if !opened {
		return fmt.Errorf("start: %w", ErrState)
	}
	return c.source.Start()
}

// Stop halts capturing without closing the device.
func (c *CaptureController) Stop() error {
	return c.submit(cmdStop, CaptureParams{})
}

func (c *CaptureController) doStop() error {
	return c.source.Stop()
}

// SetParams reconfigures while capturing: stops, reconfigures, restarts
// atomically. On reconfig failure the prior configuration is restored.
func (c *CaptureController) SetParams(params CaptureParams) error {
	return c.submit(cmdSetParams, params)
}

func (c *CaptureController) doSetParams(params CaptureParams) error {
	c.mu.Lock()
	prior := c.params
	wasOpened := c.opened
	c.mu.Unlock()

	if !wasOpened {
		return fmt.Errorf("set params: %w", ErrState)
	}

	wasCapturing := c.source.State() == StateCapturing
	if wasCapturing {
		if err := c.source.Stop(); err != nil {
			return err
		}
	}
	if err := c.source.Close(); err != nil {
		return err
	}
	if err := c.source.Open(params); err != nil {
		// restore prior configuration
		if reopenErr := c.source.Open(prior); reopenErr == nil && wasCapturing {
			_ = c.source.Start()
		}
		return err
	}

	c.mu.Lock()
	c.params = params
	c.mu.Unlock()

	if wasCapturing {
		return c.source.Start()
	}
	return nil
}

// Source exposes the underlying CaptureSource for read-only status
// queries (state, negotiated params, device info).
func (c *CaptureController) Source() *CaptureSource {
	return c.source
}

// IsOpen reports whether a device is currently open.
func (c *CaptureController) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// Shutdown stops the dispatcher task. Intended for process teardown.
func (c *CaptureController) Shutdown() {
	_ = c.doClose()
	close(c.closeCh)
}
