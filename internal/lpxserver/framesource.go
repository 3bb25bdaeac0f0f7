package lpxserver

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/bmp"

	"github.com/lpxlab/retina/internal/lpxerr"
	"github.com/lpxlab/retina/internal/lpxscan"
)

// FrameSource decouples the capture task from any particular capture
// device. A real webcam/video-file backend (OpenCV or similar) and the
// directory-backed implementation below both satisfy it; only the
// latter ships in this repository, the former is an integration point.
type FrameSource interface {
	// NextFrame returns the next frame, or ErrSourceEnded if the
	// source is exhausted and not looping.
	NextFrame() (lpxscan.Frame, error)
	// Rewind restarts the source from its first frame.
	Rewind() error
	Close() error
	// IsFileBacked reports whether this source replays pre-recorded
	// frames (true: paced to FileFPS, loops per FileLooping) or
	// captures live frames from a camera-like device (false: paced by
	// the device itself, motion-adaptive skip applies instead).
	IsFileBacked() bool
}

// rasterFrame adapts a decoded image.Image to lpxscan.Frame.
type rasterFrame struct {
	img image.Image
}

func (f rasterFrame) Dimensions() (width, height int) {
	b := f.img.Bounds()
	return b.Dx(), b.Dy()
}

func (f rasterFrame) At(x, y int) (b, g, r uint8) {
	bounds := f.img.Bounds()
	rr, gg, bb, _ := f.img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
	return uint8(bb >> 8), uint8(gg >> 8), uint8(rr >> 8)
}

// DirectorySource is a FrameSource backed by a directory of PNG/BMP
// snapshots, read in filename order. It exists so the capture task,
// server, and viewer can be exercised end-to-end without a real
// webcam or video file, and doubles as a simple file-based video
// source for a sequence of pre-rendered frames.
type DirectorySource struct {
	mu      sync.Mutex
	paths   []string
	index   int
	looping bool
}

// NewDirectorySource lists and sorts every .png/.bmp file under dir.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("lpxserver: read dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".png" || ext == ".bmp" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("lpxserver: no .png/.bmp frames found under %s: %w", dir, lpxerr.ErrSourceEnded)
	}

	return &DirectorySource{paths: paths, looping: true}, nil
}

// SetLooping controls whether NextFrame wraps back to the first frame
// after the last, or returns ErrSourceEnded.
func (s *DirectorySource) SetLooping(looping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.looping = looping
}

// NextFrame decodes and returns the next frame in sequence.
func (s *DirectorySource) NextFrame() (lpxscan.Frame, error) {
	s.mu.Lock()
	if s.index >= len(s.paths) {
		if !s.looping {
			s.mu.Unlock()
			return nil, fmt.Errorf("lpxserver: %w", lpxerr.ErrSourceEnded)
		}
		s.index = 0
	}
	path := s.paths[s.index]
	s.index++
	s.mu.Unlock()

	return decodeImageFile(path)
}

// Rewind resets to the first frame.
func (s *DirectorySource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
	return nil
}

// Close is a no-op: DirectorySource holds no open handles between calls.
func (s *DirectorySource) Close() error {
	return nil
}

// IsFileBacked is always true: DirectorySource replays a fixed set of
// pre-rendered frames from disk.
func (s *DirectorySource) IsFileBacked() bool {
	return true
}

// patternFrame is a procedurally generated BGR frame used by
// TestPatternSource; it satisfies lpxscan.Frame without allocating a
// full backing buffer per pixel access.
type patternFrame struct {
	width, height int
	phase         int
}

func (f patternFrame) Dimensions() (width, height int) {
	return f.width, f.height
}

func (f patternFrame) At(x, y int) (b, g, r uint8) {
	cx, cy := f.width/2, f.height/2
	dx, dy := x-cx-((f.phase*3)%f.width-f.width/2), y-cy
	if dx*dx+dy*dy < (f.width/6)*(f.width/6) {
		return 40, 200, 200
	}
	return uint8((x * 255) / f.width), uint8((y * 255) / f.height), uint8(f.phase % 256)
}

// TestPatternSource is a FrameSource that synthesises an animated
// test pattern (a disc sweeping left-to-right over a gradient) rather
// than reading from a real capture device. It fills the role a
// webcam adapter would occupy behind the FrameSource interface, so
// lpx-webcam-server has something to stream without depending on a
// third-party camera binding; swapping in a real device means writing
// a FrameSource that wraps that binding, not changing the server.
type TestPatternSource struct {
	width, height int
	phase         int
}

// NewTestPatternSource returns a TestPatternSource producing width x
// height frames.
func NewTestPatternSource(width, height int) *TestPatternSource {
	return &TestPatternSource{width: width, height: height}
}

// NextFrame returns the next animation frame; the source never ends
// on its own.
func (s *TestPatternSource) NextFrame() (lpxscan.Frame, error) {
	s.phase++
	return patternFrame{width: s.width, height: s.height, phase: s.phase}, nil
}

// Rewind resets the animation phase to zero.
func (s *TestPatternSource) Rewind() error {
	s.phase = 0
	return nil
}

// Close is a no-op: TestPatternSource holds no resources.
func (s *TestPatternSource) Close() error {
	return nil
}

// IsFileBacked is always false: TestPatternSource stands in for a
// live capture device, generating a fresh frame on every call.
func (s *TestPatternSource) IsFileBacked() bool {
	return false
}

func decodeImageFile(path string) (lpxscan.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lpxserver: open %s: %w", path, err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		img, err = bmp.Decode(f)
	default:
		img, err = png.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("lpxserver: decode %s: %w", path, err)
	}
	return rasterFrame{img: img}, nil
}
