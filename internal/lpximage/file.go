package lpximage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/lpxlab/retina/internal/lpxerr"
	"github.com/lpxlab/retina/internal/lpxtables"
)

// fileHeader is the 8 x int32 little-endian header for the portable
// LP Image file format: totalLength, length, nMaxCells,
// int(spiralPer), width, height, x_ofs*1e5, y_ofs*1e5.
type fileHeader struct {
	TotalLength int32
	Length      int32
	NMaxCells   int32
	SpiralPer   int32
	Width       int32
	Height      int32
	XOfsFixed   int32
	YOfsFixed   int32
}

const fixedPointScale = 1e5

// Save writes img to path in the portable LP Image file format.
func (img *Image) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lpximage: create %s: %w", path, err)
	}
	defer f.Close()
	return img.Encode(f)
}

// Encode writes the portable file format to w.
func (img *Image) Encode(w io.Writer) error {
	length := int32(img.Len())
	hdr := fileHeader{
		TotalLength: length, // body size in cells; header itself is fixed-size
		Length:      length,
		NMaxCells:   length,
		SpiralPer:   int32(img.SpiralPer),
		Width:       int32(img.Width),
		Height:      int32(img.Height),
		XOfsFixed:   int32(img.XOfs * fixedPointScale),
		YOfsFixed:   int32(img.YOfs * fixedPointScale),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("lpximage: write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, img.Cells); err != nil {
		return fmt.Errorf("lpximage: write cells: %w", err)
	}
	return nil
}

// Load reads path into a fresh Image whose geometry is populated from
// the file's header; tables is still required to size the scan
// accumulators and must match the file's cell count.
func Load(path string, tables *lpxtables.Tables) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lpximage: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f, tables)
}

// Decode parses the portable LP Image file format from r.
func Decode(r io.Reader, tables *lpxtables.Tables) (*Image, error) {
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("lpximage: read header: %w: %w", lpxerr.ErrInvalidTables, err)
	}
	if hdr.Length < 0 {
		return nil, fmt.Errorf("lpximage: negative length in header: %w", lpxerr.ErrInvalidTables)
	}

	img, err := New(tables, int(hdr.Width), int(hdr.Height))
	if err != nil {
		return nil, err
	}
	if int(hdr.Length) != img.Len() {
		return nil, fmt.Errorf("lpximage: file cell count %d does not match tables %d: %w",
			hdr.Length, img.Len(), lpxerr.ErrInvalidTables)
	}

	img.SpiralPer = float64(hdr.SpiralPer) + 0.5
	img.XOfs = float64(hdr.XOfsFixed) / fixedPointScale
	img.YOfs = float64(hdr.YOfsFixed) / fixedPointScale

	if err := binary.Read(r, binary.LittleEndian, img.Cells); err != nil {
		return nil, fmt.Errorf("lpximage: read cells: %w: %w", lpxerr.ErrInvalidTables, err)
	}
	return img, nil
}
