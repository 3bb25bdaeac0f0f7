// Package lpxtables loads and exposes the precomputed pixel-to-cell
// scan tables that drive the log-polar scanner and renderer. Tables
// are loaded once at process start and never mutated afterward; every
// exported accessor is safe for unsynchronised concurrent reads.
package lpxtables

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/lpxlab/retina/internal/lpxerr"
)

// Position is a pixel location in scan-map coordinates.
type Position struct {
	X, Y int
}

// Tables is the immutable spatial index mapping scan-map pixels to
// log-polar cell indices. Share a single *Tables across every
// component that needs it; there is no reason to copy it.
type Tables struct {
	MapWidth  int
	SpiralPer float64

	// OuterPixelIndex and OuterPixelCellIdx are parallel, strictly
	// ascending arrays: at pixel index OuterPixelIndex[i] the mapped
	// cell index changes to OuterPixelCellIdx[i].
	OuterPixelIndex   []int32
	OuterPixelCellIdx []int32

	// InnerCells holds, for each fovea cell in order, its (x, y)
	// position in scan-map coordinates centred at (MapWidth/2, MapWidth/2).
	InnerCells []Position

	LastFoveaIndex int
	LastCellIndex  int
}

// header mirrors the 7 x int32 little-endian scan-tables file header.
type header struct {
	TotalLength    int32
	MapWidth       int32
	SpiralPerInt   int32
	Length         int32
	InnerLength    int32
	LastFoveaIndex int32
	LastCellIndex  int32
}

// Load reads a scan-tables file from path. The file must be a
// complete little-endian encoding: the 7 x int32 header (see header),
// then outerPixelIndex, outerPixelCellIdx and the innerCells (x, y)
// pairs; a truncated file is rejected with ErrInvalidTables,
// never silently accepted.
func Load(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lpxtables: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses the scan-tables binary format from r.
func Decode(r io.Reader) (*Tables, error) {
	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("lpxtables: read header: %w: %w", lpxerr.ErrInvalidTables, err)
	}

	if hdr.Length < 0 || hdr.InnerLength < 0 || hdr.MapWidth <= 0 {
		return nil, fmt.Errorf("lpxtables: header field out of range: %w", lpxerr.ErrInvalidTables)
	}

	spiralPer := float64(hdr.SpiralPerInt) + 0.5
	if spiralPer < 0.1 || spiralPer > 1000 {
		return nil, fmt.Errorf("lpxtables: spiralPer %.3f out of [0.1, 1000]: %w", spiralPer, lpxerr.ErrInvalidTables)
	}

	outerPixelIndex := make([]int32, hdr.Length)
	if err := binary.Read(r, binary.LittleEndian, &outerPixelIndex); err != nil {
		return nil, fmt.Errorf("lpxtables: read outerPixelIndex: %w: %w", lpxerr.ErrInvalidTables, err)
	}

	outerPixelCellIdx := make([]int32, hdr.Length)
	if err := binary.Read(r, binary.LittleEndian, &outerPixelCellIdx); err != nil {
		return nil, fmt.Errorf("lpxtables: read outerPixelCellIdx: %w: %w", lpxerr.ErrInvalidTables, err)
	}

	innerCells := make([]Position, hdr.InnerLength)
	for i := range innerCells {
		var xy [2]int32
		if err := binary.Read(r, binary.LittleEndian, &xy); err != nil {
			return nil, fmt.Errorf("lpxtables: read innerCells[%d]: %w: %w", i, lpxerr.ErrInvalidTables, err)
		}
		innerCells[i] = Position{X: int(xy[0]), Y: int(xy[1])}
	}

	for i := 1; i < len(outerPixelIndex); i++ {
		if outerPixelIndex[i] <= outerPixelIndex[i-1] {
			return nil, fmt.Errorf("lpxtables: outerPixelIndex not strictly ascending at %d: %w", i, lpxerr.ErrInvalidTables)
		}
	}

	t := &Tables{
		MapWidth:          int(hdr.MapWidth),
		SpiralPer:         spiralPer,
		OuterPixelIndex:   outerPixelIndex,
		OuterPixelCellIdx: outerPixelCellIdx,
		InnerCells:        innerCells,
		LastFoveaIndex:    int(hdr.LastFoveaIndex),
		LastCellIndex:     int(hdr.LastCellIndex),
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that lastCellIndex is positive, that lastFoveaIndex
// lies strictly between 0 and lastCellIndex, and that spiralPer is in
// [0.1, 1000]; it does not check that OuterPixelIndex is ascending
// (Decode does that). Load and NewForTest both call this; callers that build a Tables by
// hand should call it too before trusting the result.
func (t *Tables) Validate() error {
	if t.LastCellIndex <= 0 {
		return fmt.Errorf("lpxtables: lastCellIndex must be positive, got %d: %w", t.LastCellIndex, lpxerr.ErrInvalidTables)
	}
	if t.LastFoveaIndex <= 0 || t.LastFoveaIndex >= t.LastCellIndex {
		return fmt.Errorf("lpxtables: lastFoveaIndex %d not strictly between 0 and lastCellIndex %d: %w",
			t.LastFoveaIndex, t.LastCellIndex, lpxerr.ErrInvalidFoveaRange)
	}
	if t.SpiralPer < 0.1 || t.SpiralPer > 1000 {
		return fmt.Errorf("lpxtables: spiralPer %.3f out of range: %w", t.SpiralPer, lpxerr.ErrInvalidTables)
	}
	return nil
}

// CellIndexForPixel returns the cell index mapped to scan-map pixel
// index pixelIdx by ordered predecessor search on OuterPixelIndex.
// This is the reference (non-LUT) lookup path, retained for tests that
// check the one-shot Scan Cache agrees with it; lpxscan.BuildCache
// computes the same mapping with its own forward-fill pass, and the
// scanner's hot path uses that cache.
func (t *Tables) CellIndexForPixel(pixelIdx int) (int, bool) {
	idx := t.OuterPixelIndex
	lo, hi := 0, len(idx)
	for lo < hi {
		mid := (lo + hi) / 2
		if idx[mid] <= int32(pixelIdx) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0, false
	}
	return int(t.OuterPixelCellIdx[lo-1]), true
}

// NewForTest builds a Tables from already-computed arrays without
// going through the binary file format. Intended for lpxtest and unit
// tests that construct small synthetic tables in memory.
func NewForTest(mapWidth int, spiralPer float64, outerPixelIndex, outerPixelCellIdx []int32, innerCells []Position, lastFoveaIndex, lastCellIndex int) *Tables {
	t := &Tables{
		MapWidth:          mapWidth,
		SpiralPer:         spiralPer,
		OuterPixelIndex:   outerPixelIndex,
		OuterPixelCellIdx: outerPixelCellIdx,
		InnerCells:        innerCells,
		LastFoveaIndex:    lastFoveaIndex,
		LastCellIndex:     lastCellIndex,
	}
	if err := t.Validate(); err != nil {
		panic(err) // programmer error in test fixture construction
	}
	return t
}
