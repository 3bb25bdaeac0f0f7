// Package lpxviewer implements the debug viewer: a receiver goroutine
// that reads LP Images from the wire and renders them, and a UI loop
// that owns keyboard input and frame-synchronised movement throttling.
package lpxviewer

// Key identifies a viewer keypress, decoupled from any particular GUI
// toolkit's key codes.
type Key int

const (
	KeyNone Key = iota
	KeyW
	KeyA
	KeyS
	KeyD
	KeyQuit
)

// Display is the viewer's window/keyboard collaborator. The shipped
// implementation (SnapshotDisplay) writes PNG snapshots to a directory
// and reads input from a scripted channel, so the viewer's throttling
// and movement logic is unit-testable without a real display server;
// a GUI-toolkit-backed implementation is an integration point.
type Display interface {
	// ShowFrame presents a rendered raster to the user.
	ShowFrame(pix []byte, width, height int) error
	// PollKey returns the next pending keypress, or KeyNone if none is
	// waiting. Non-blocking.
	PollKey() Key
	Close() error
}
