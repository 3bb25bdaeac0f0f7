// Package lpxerr defines the sentinel error values shared across the
// log-polar scan pipeline. Components wrap these with context using
// fmt.Errorf("...: %w", ...) and callers discriminate with errors.Is.
package lpxerr

import "errors"

var (
	// ErrInvalidTables indicates a scan-tables file was missing, short, or
	// had a header field outside its documented valid range.
	ErrInvalidTables = errors.New("lpx: invalid scan tables")

	// ErrEmptyFrame indicates the scanner was given a frame with zero
	// width or height.
	ErrEmptyFrame = errors.New("lpx: empty frame")

	// ErrInvalidFrame indicates a frame with an unsupported channel
	// count (only 1- and 3-channel frames are accepted).
	ErrInvalidFrame = errors.New("lpx: invalid frame")

	// ErrInvalidFoveaRange indicates lastFoveaIndex was not strictly
	// between 0 and lastCellIndex.
	ErrInvalidFoveaRange = errors.New("lpx: invalid fovea range")

	// ErrWireFraming indicates a declared frame size was negative, over
	// the wire protocol's size ceiling, or the connection closed with a
	// short read before the frame was fully received.
	ErrWireFraming = errors.New("lpx: wire framing error")

	// ErrSocketError indicates bind/listen/accept/connect failed.
	ErrSocketError = errors.New("lpx: socket error")

	// ErrSourceEnded indicates a non-looping frame source reached end of
	// stream; the capture goroutine should exit cleanly.
	ErrSourceEnded = errors.New("lpx: source ended")
)
