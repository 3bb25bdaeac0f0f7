package lpxviewer

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lpxlab/retina/internal/lpxrender"
	"github.com/lpxlab/retina/internal/lpxtables"
	"github.com/lpxlab/retina/internal/lpxwire"
	"github.com/lpxlab/retina/internal/monitoring"
)

// DefaultKeyThrottle is the minimum interval between sent movement
// commands, matching the reference viewer's ~60 Hz cap.
const DefaultKeyThrottle = 16 * time.Millisecond

// DefaultStepSize is the movement magnitude sent per coalesced keypress.
const DefaultStepSize = 1.0

// keyVectors maps each movement key to its unit (dx, dy) direction.
var keyVectors = map[Key][2]float32{
	KeyW: {0, -1},
	KeyS: {0, 1},
	KeyA: {-1, 0},
	KeyD: {1, 0},
}

// renderedFrame is the mutex-guarded slot the receiver goroutine
// deposits into and the UI loop reads from.
type renderedFrame struct {
	mu        sync.Mutex
	out       *lpxrender.Output
	available bool
}

func (r *renderedFrame) set(out *lpxrender.Output) {
	r.mu.Lock()
	r.out = out
	r.available = true
	r.mu.Unlock()
}

func (r *renderedFrame) takeIfAvailable() (*lpxrender.Output, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available {
		return nil, false
	}
	r.available = false
	return r.out, true
}

// Viewer connects to a streaming server, renders every received LP
// Image, and drives a Display with frame-synchronised, throttled
// movement commands.
type Viewer struct {
	conn    net.Conn
	tables  *lpxtables.Tables
	render  *lpxrender.Renderer
	display Display

	maxFrameBytes int64
	keyThrottle   time.Duration
	stepSize      float32

	slot renderedFrame

	canSendCommand atomic.Bool
	lastSentAt     atomic.Int64 // UnixNano

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures optional Viewer behaviour.
type Option func(*Viewer)

// WithKeyThrottle overrides DefaultKeyThrottle.
func WithKeyThrottle(d time.Duration) Option {
	return func(v *Viewer) { v.keyThrottle = d }
}

// WithStepSize overrides DefaultStepSize.
func WithStepSize(step float32) Option {
	return func(v *Viewer) { v.stepSize = step }
}

// WithMaxFrameBytes overrides the wire size ceiling.
func WithMaxFrameBytes(n int64) Option {
	return func(v *Viewer) { v.maxFrameBytes = n }
}

// New connects to addr and builds a Viewer rendering against tables.
func New(addr string, tables *lpxtables.Tables, display Display, opts ...Option) (*Viewer, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("lpxviewer: dial %s: %w", addr, err)
	}
	lpxwire.SetNoDelay(conn)

	v := &Viewer{
		conn:        conn,
		tables:      tables,
		render:      lpxrender.New(),
		display:     display,
		keyThrottle: DefaultKeyThrottle,
		stepSize:    DefaultStepSize,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Run starts the receiver and UI goroutines and blocks until the
// viewer quits (Q/ESC) or the connection ends.
func (v *Viewer) Run() error {
	var once sync.Once
	stop := func() { once.Do(func() { close(v.stopCh) }) }

	v.wg.Add(1)
	go func() {
		v.receiveLoop()
		stop() // connection ended: unwind the UI loop too
	}()

	err := v.uiLoop()
	stop()
	v.conn.Close()
	v.wg.Wait()
	return err
}

// receiveLoop reads frames off the wire, renders them, and deposits
// the result into the shared slot, flipping canSendCommand so the UI
// loop knows a fresh frame has been presented.
func (v *Viewer) receiveLoop() {
	defer v.wg.Done()
	for {
		img, err := lpxwire.ReadFrame(v.conn, v.tables, v.maxFrameBytes)
		if err != nil {
			monitoring.Logf("lpxviewer: server connection ended: %v", err)
			return
		}

		out, err := v.render.Render(img, img.Width, img.Height, 1.0)
		if err != nil {
			monitoring.Logf("lpxviewer: render failed: %v", err)
			continue
		}

		v.slot.set(out)
		v.canSendCommand.Store(true)

		select {
		case <-v.stopCh:
			return
		default:
		}
	}
}

// uiLoop owns the Display: it shows freshly rendered frames and
// coalesces keypresses into throttled movement commands.
func (v *Viewer) uiLoop() error {
	var pending [2]float32
	havePending := false

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return nil
		case <-ticker.C:
		}

		if out, ok := v.slot.takeIfAvailable(); ok {
			if err := v.display.ShowFrame(out.Pix, out.Width, out.Height); err != nil {
				monitoring.Logf("lpxviewer: display error: %v", err)
			}
		}

		switch k := v.display.PollKey(); k {
		case KeyQuit:
			return nil
		case KeyW, KeyA, KeyS, KeyD:
			vec := keyVectors[k]
			pending[0], pending[1] = vec[0], vec[1]
			havePending = true
		}

		if havePending && v.tryCommand() {
			if err := v.sendMovement(pending[0], pending[1]); err != nil {
				return err
			}
			havePending = false
		}
	}
}

// tryCommand reports whether the UI loop may send a command right
// now: canSendCommand must be set (a fresh frame arrived since the
// last send) and at least keyThrottle must have elapsed since the
// last sent command.
func (v *Viewer) tryCommand() bool {
	if !v.canSendCommand.Load() {
		return false
	}
	last := v.lastSentAt.Load()
	if last != 0 && time.Since(time.Unix(0, last)) < v.keyThrottle {
		return false
	}
	return true
}

func (v *Viewer) sendMovement(dx, dy float32) error {
	cmd := lpxwire.Command{Type: lpxwire.CmdMovement, DeltaX: dx, DeltaY: dy, StepSize: v.stepSize}
	if err := lpxwire.WriteCommand(v.conn, cmd); err != nil {
		return fmt.Errorf("lpxviewer: send movement: %w", err)
	}
	v.canSendCommand.Store(false)
	v.lastSentAt.Store(time.Now().UnixNano())
	return nil
}

// Close disconnects from the server.
func (v *Viewer) Close() error {
	return v.conn.Close()
}
