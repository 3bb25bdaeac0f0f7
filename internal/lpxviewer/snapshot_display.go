package lpxviewer

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// SnapshotDisplay is a Display that writes each shown frame as a PNG
// under dir and serves keypresses from a scripted channel, standing in
// for a real GUI window in tests and headless runs.
type SnapshotDisplay struct {
	dir     string
	counter atomic.Int64

	mu     sync.Mutex
	keys   []Key
	closed bool
}

// NewSnapshotDisplay returns a SnapshotDisplay writing PNGs into dir,
// which must already exist.
func NewSnapshotDisplay(dir string) *SnapshotDisplay {
	return &SnapshotDisplay{dir: dir}
}

// ShowFrame writes pix (row-major BGR, width*height*3 bytes) as a PNG
// snapshot file under the configured directory.
func (d *SnapshotDisplay) ShowFrame(pix []byte, width, height int) error {
	if len(pix) != width*height*3 {
		return fmt.Errorf("lpxviewer: pix length %d does not match %dx%d", len(pix), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := (y*width + x) * 3
			b, g, r := pix[idx+0], pix[idx+1], pix[idx+2]
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	n := d.counter.Add(1)
	path := filepath.Join(d.dir, fmt.Sprintf("frame_%06d.png", n))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lpxviewer: create %s: %w", path, err)
	}
	defer f.Close()
	return png.Encode(f, img)
}

// QueueKey scripts a keypress for the next PollKey call(s), for tests
// to drive the UI loop deterministically.
func (d *SnapshotDisplay) QueueKey(k Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, k)
}

// PollKey returns the next scripted keypress, or KeyNone if the
// script is empty.
func (d *SnapshotDisplay) PollKey() Key {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return KeyQuit
	}
	if len(d.keys) == 0 {
		return KeyNone
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

// Close marks the display closed; subsequent ShowFrame calls still
// succeed (there is no real resource to release) but PollKey starts
// returning KeyQuit to unwind the UI loop.
func (d *SnapshotDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (d *SnapshotDisplay) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
