// Package lpxwire implements the framed binary wire protocol between
// the streaming server and its clients: a server-to-client LP Image
// frame prefixed with its length, and a client-to-server command
// prefixed with its type, both little-endian, matching the reference
// implementation's socket framing exactly.
package lpxwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/lpxlab/retina/internal/lpxerr"
	"github.com/lpxlab/retina/internal/lpximage"
	"github.com/lpxlab/retina/internal/lpxtables"
)

// DefaultMaxFrameBytes is the wire size ceiling enforced on both sides
// absent an overriding config value.
const DefaultMaxFrameBytes int64 = 10 * 1024 * 1024

// fixedPointScale matches lpximage's file-format fixed-point offsets.
const fixedPointScale = 1e5

// frameHeader is the 8 x int32 little-endian header that follows the
// total_size prefix in a server-to-client frame.
type frameHeader struct {
	Length    int32
	NMaxCells int32
	SpiralPer int32
	Width     int32
	Height    int32
	XOfsFixed int32
	YOfsFixed int32
	Reserved  int32
}

// CommandType identifies a client-to-server command.
type CommandType uint32

// CmdMovement is the only currently accepted client command type.
const CmdMovement CommandType = 0x02

// Command is a decoded client-to-server message.
type Command struct {
	Type           CommandType
	DeltaX, DeltaY float32
	StepSize       float32
}

// WriteFrame encodes img onto w as a server-to-client frame: a
// uint32 total_size prefix, the 8xint32 header, then length packed
// cells. maxFrameBytes bounds the encoded size; 0 uses
// DefaultMaxFrameBytes.
func WriteFrame(w io.Writer, img *lpximage.Image, maxFrameBytes int64) error {
	if img == nil {
		return fmt.Errorf("lpxwire: %w", lpxerr.ErrInvalidFrame)
	}
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}

	hdr := frameHeader{
		Length:    int32(img.Len()),
		NMaxCells: int32(img.Len()),
		SpiralPer: int32(img.SpiralPer),
		Width:     int32(img.Width),
		Height:    int32(img.Height),
		XOfsFixed: int32(img.XOfs * fixedPointScale),
		YOfsFixed: int32(img.YOfs * fixedPointScale),
	}

	const headerBytes = 8 * 4
	totalSize := int64(headerBytes) + int64(img.Len())*4
	if totalSize > maxFrameBytes {
		return fmt.Errorf("lpxwire: frame %d bytes exceeds ceiling %d: %w", totalSize, maxFrameBytes, lpxerr.ErrWireFraming)
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(totalSize)); err != nil {
		return fmt.Errorf("lpxwire: write total_size: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("lpxwire: write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, img.Cells); err != nil {
		return fmt.Errorf("lpxwire: write cells: %w", err)
	}
	return nil
}

// ReadFrame decodes a server-to-client frame from r into a freshly
// allocated Image sized from the header. tables is required to
// validate the cell count and construct the Image; it must be the
// same tables the server scanned with.
func ReadFrame(r io.Reader, tables *lpxtables.Tables, maxFrameBytes int64) (*lpximage.Image, error) {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}

	var totalSize uint32
	if err := binary.Read(r, binary.LittleEndian, &totalSize); err != nil {
		return nil, fmt.Errorf("lpxwire: read total_size: %w", err)
	}
	if int64(totalSize) > maxFrameBytes {
		return nil, fmt.Errorf("lpxwire: frame %d bytes exceeds ceiling %d: %w", totalSize, maxFrameBytes, lpxerr.ErrWireFraming)
	}

	const headerBytes = 8 * 4
	if int64(totalSize) < headerBytes {
		return nil, fmt.Errorf("lpxwire: frame %d bytes smaller than header: %w", totalSize, lpxerr.ErrWireFraming)
	}

	var hdr frameHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("lpxwire: read header: %w: %w", lpxerr.ErrWireFraming, err)
	}

	bodyBytes := int64(totalSize) - headerBytes
	if hdr.Length < 0 || int64(hdr.Length)*4 != bodyBytes {
		return nil, fmt.Errorf("lpxwire: header length %d disagrees with frame size %d: %w", hdr.Length, totalSize, lpxerr.ErrWireFraming)
	}

	img, err := lpximage.New(tables, int(hdr.Width), int(hdr.Height))
	if err != nil {
		return nil, err
	}
	if int(hdr.Length) != img.Len() {
		return nil, fmt.Errorf("lpxwire: frame cell count %d does not match tables %d: %w",
			hdr.Length, img.Len(), lpxerr.ErrWireFraming)
	}

	img.SpiralPer = float64(hdr.SpiralPer) + 0.5
	img.XOfs = float64(hdr.XOfsFixed) / fixedPointScale
	img.YOfs = float64(hdr.YOfsFixed) / fixedPointScale

	if err := binary.Read(r, binary.LittleEndian, img.Cells); err != nil {
		return nil, fmt.Errorf("lpxwire: read cells: %w: %w", lpxerr.ErrWireFraming, err)
	}
	return img, nil
}

// WriteCommand encodes cmd onto w.
func WriteCommand(w io.Writer, cmd Command) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(cmd.Type)); err != nil {
		return fmt.Errorf("lpxwire: write command type: %w", err)
	}
	if cmd.Type != CmdMovement {
		return nil
	}
	for _, f := range []float32{cmd.DeltaX, cmd.DeltaY, cmd.StepSize} {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("lpxwire: write command payload: %w", err)
		}
	}
	return nil
}

// ReadCommand decodes one command from r. Unknown command types are
// rejected: the protocol currently accepts only MOVEMENT.
func ReadCommand(r io.Reader) (Command, error) {
	var typ uint32
	if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
		return Command{}, fmt.Errorf("lpxwire: read command type: %w", err)
	}

	cmd := Command{Type: CommandType(typ)}
	if cmd.Type != CmdMovement {
		return Command{}, fmt.Errorf("lpxwire: unsupported command type %#x: %w", typ, lpxerr.ErrWireFraming)
	}

	var payload [3]float32
	if err := binary.Read(r, binary.LittleEndian, &payload); err != nil {
		return Command{}, fmt.Errorf("lpxwire: read command payload: %w", err)
	}
	cmd.DeltaX, cmd.DeltaY, cmd.StepSize = payload[0], payload[1], payload[2]
	return cmd, nil
}

// TryReadCommand polls conn non-blockingly for a pending command,
// returning (Command{}, false, nil) if nothing is currently available.
// It is the server's half of the protocol's command/frame
// multiplexing: called at most once per broadcast cycle, never while a
// frame write is in flight.
func TryReadCommand(conn net.Conn) (Command, bool, error) {
	if err := conn.SetReadDeadline(immediateDeadline()); err != nil {
		return Command{}, false, fmt.Errorf("lpxwire: set read deadline: %w", err)
	}
	defer conn.SetReadDeadline(noDeadline())

	cmd, err := ReadCommand(conn)
	if err != nil {
		if isTimeout(err) {
			return Command{}, false, nil
		}
		return Command{}, false, err
	}
	return cmd, true, nil
}

// SetNoDelay enables TCP_NODELAY on conn if it is a *net.TCPConn,
// matching the reference server's low-latency send configuration.
func SetNoDelay(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetNoDelay(true)
}

// immediateDeadline is just ahead of now: a deadline already in the
// past fails every read at once, even when command bytes are waiting.
func immediateDeadline() time.Time {
	return time.Now().Add(time.Millisecond)
}

func noDeadline() time.Time {
	return time.Time{}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
