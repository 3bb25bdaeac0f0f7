package lpxscan

import (
	"testing"

	"github.com/lpxlab/retina/internal/lpximage"
	"github.com/lpxlab/retina/internal/lpxtables"
	"github.com/lpxlab/retina/internal/lpxtest"
	"github.com/stretchr/testify/require"
)

func buildScannerAndImage(t *testing.T) (*Scanner, *lpxtables.Tables, *lpximage.Image) {
	t.Helper()
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	scanner, err := New(tables)
	require.NoError(t, err)
	img, err := lpximage.New(tables, tables.MapWidth, tables.MapWidth)
	require.NoError(t, err)
	return scanner, tables, img
}

func TestNewRejectsInvalidFoveaRange(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	tables.LastFoveaIndex = tables.LastCellIndex // invalid: must be strictly less
	_, err := New(tables)
	require.Error(t, err)
}

func TestScanRejectsEmptyFrame(t *testing.T) {
	scanner, _, img := buildScannerAndImage(t)
	frame := lpxtest.SyntheticFrame{Width: 0, Height: 0}
	err := scanner.Scan(frame, img, 100, 100)
	require.Error(t, err)
}

func TestScanProducesCellCountMatchingTables(t *testing.T) {
	scanner, tables, img := buildScannerAndImage(t)
	frame := lpxtest.NewUniformFrame(tables.MapWidth, tables.MapWidth, 10, 20, 30)

	err := scanner.Scan(frame, img, float64(tables.MapWidth)/2, float64(tables.MapWidth)/2)
	require.NoError(t, err)
	require.Equal(t, tables.LastCellIndex+1, img.Len())
}

func TestScanUniformFrameProducesUniformCells(t *testing.T) {
	scanner, tables, img := buildScannerAndImage(t)
	frame := lpxtest.NewUniformFrame(tables.MapWidth, tables.MapWidth, 10, 20, 30)
	cx, cy := float64(tables.MapWidth)/2, float64(tables.MapWidth)/2

	err := scanner.Scan(frame, img, cx, cy)
	require.NoError(t, err)

	want := lpximage.PackBGR(10, 20, 30)
	for i, cell := range img.Cells {
		require.Equal(t, want, cell, "cell %d", i)
	}
}

func TestScanZeroCountCellsAreBlackExceptFovea(t *testing.T) {
	scanner, tables, img := buildScannerAndImage(t)
	// A frame far smaller than the map means most peripheral pixels map
	// outside the frame and are never visited, leaving count==0.
	frame := lpxtest.NewUniformFrame(4, 4, 1, 2, 3)

	err := scanner.Scan(frame, img, 2, 2)
	require.NoError(t, err)

	for i := tables.LastFoveaIndex + 1; i < img.Len(); i++ {
		if img.Count[i].Load() == 0 {
			require.Equal(t, uint32(0), img.Cells[i], "cell %d should be black", i)
		}
	}
}

func TestScanFoveaIsExactSampleNoAveraging(t *testing.T) {
	scanner, tables, img := buildScannerAndImage(t)

	// Build a frame where every pixel encodes its own coordinate so we
	// can verify the fovea cell holds a single direct sample, not an
	// average, distinguishing it from the peripheral pass's behaviour.
	w := tables.MapWidth
	frame := lpxtest.SyntheticFrame{Width: w, Height: w, Channels: 3, Pix: make([]uint8, w*w*3)}
	for y := 0; y < w; y++ {
		for x := 0; x < w; x++ {
			idx := (y*w + x) * 3
			frame.Pix[idx+0] = uint8(x % 256)
			frame.Pix[idx+1] = uint8(y % 256)
			frame.Pix[idx+2] = 7
		}
	}

	cx, cy := float64(w)/2, float64(w)/2
	err := scanner.Scan(frame, img, cx, cy)
	require.NoError(t, err)

	for i, mp := range tables.InnerCells {
		if i > tables.LastFoveaIndex {
			break
		}
		x := int(cx) + mp.X - w/2
		y := int(cy) + mp.Y - w/2
		if x < 0 || x >= w || y < 0 || y >= w {
			continue
		}
		wantB, wantG, wantR := frame.At(x, y)
		gotCell := img.Cells[i]
		b, g, r := lpximage.UnpackBGR(gotCell)
		require.Equal(t, wantB, b)
		require.Equal(t, wantG, g)
		require.Equal(t, wantR, r)
	}
}

func TestScanChannelsStayInByteRange(t *testing.T) {
	scanner, tables, img := buildScannerAndImage(t)
	frame := lpxtest.NewUniformFrame(tables.MapWidth, tables.MapWidth, 250, 5, 128)

	err := scanner.Scan(frame, img, float64(tables.MapWidth)/2, float64(tables.MapWidth)/2)
	require.NoError(t, err)

	for _, cell := range img.Cells {
		b, g, r := lpximage.UnpackBGR(cell)
		require.LessOrEqual(t, int(b), 255)
		require.LessOrEqual(t, int(g), 255)
		require.LessOrEqual(t, int(r), 255)
	}
}

func TestScanRecordsOffsetFromFrameCentreNotAbsoluteFixation(t *testing.T) {
	scanner, tables, img := buildScannerAndImage(t)
	frame := lpxtest.NewUniformFrame(tables.MapWidth, tables.MapWidth, 1, 2, 3)

	fw, fh := frame.Dimensions()
	cx := float64(fw)/2 + 10
	cy := float64(fh) / 2

	err := scanner.Scan(frame, img, cx, cy)
	require.NoError(t, err)
	require.InDelta(t, 10, img.XOfs, 1e-9)
	require.InDelta(t, 0, img.YOfs, 1e-9)
}

func TestPeripheralBoxStaysBoundedForHugeMapWidth(t *testing.T) {
	// A value far beyond any realistic map, standing in for what used
	// to reach scanPeripheral via a spiral-radius formula that could
	// overflow int for realistic LastCellIndex/SpiralPer combinations.
	// peripheralBox has no such failure mode since it only scales with
	// mapWidth, not an exponential of cell count.
	top, bottom, left, right := peripheralBox(100, 100, 1<<30, 200, 200)
	require.GreaterOrEqual(t, top, 0)
	require.LessOrEqual(t, bottom, 200)
	require.GreaterOrEqual(t, left, 0)
	require.LessOrEqual(t, right, 200)
	require.Equal(t, 0, top)
	require.Equal(t, 200, bottom)
	require.Equal(t, 0, left)
	require.Equal(t, 200, right)
}

func TestPeripheralBoxCoversFullMapRegionForSmallTable(t *testing.T) {
	// The synthetic table's mapWidth (200) should produce a box large
	// enough to cover the whole map-sized frame around the fixation,
	// not a box sized from an unrelated spiral-radius formula that can
	// fall short of the table's own mapped cells.
	top, bottom, left, right := peripheralBox(100, 100, 200, 200, 200)
	require.Equal(t, 0, top)
	require.Equal(t, 200, bottom)
	require.Equal(t, 0, left)
	require.Equal(t, 200, right)
}

func TestScanOffCentreFixationDoesNotPanic(t *testing.T) {
	scanner, tables, img := buildScannerAndImage(t)
	frame := lpxtest.NewUniformFrame(tables.MapWidth, tables.MapWidth, 1, 2, 3)

	require.NotPanics(t, func() {
		err := scanner.Scan(frame, img, 0, 0)
		require.NoError(t, err)
	})
	require.NotPanics(t, func() {
		err := scanner.Scan(frame, img, float64(tables.MapWidth), float64(tables.MapWidth))
		require.NoError(t, err)
	})
}

func TestBuildCacheForwardFillsGaps(t *testing.T) {
	tables := lpxtables.NewForTest(10, 63.5,
		[]int32{5, 20}, []int32{3, 4},
		nil, 1, 9)

	cache, err := BuildCache(tables)
	require.NoError(t, err)

	// Pixels before the first boundary are unmapped.
	_, ok := cache.Lookup(0)
	require.False(t, ok)

	// Pixels at/after a boundary and before the next carry that boundary's cell.
	v, ok := cache.Lookup(5)
	require.True(t, ok)
	require.Equal(t, int32(3), v)

	v, ok = cache.Lookup(19)
	require.True(t, ok)
	require.Equal(t, int32(3), v)

	v, ok = cache.Lookup(20)
	require.True(t, ok)
	require.Equal(t, int32(4), v)
}

func TestCacheAgreesWithPredecessorSearch(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	cache, err := BuildCache(tables)
	require.NoError(t, err)

	for pixelIdx := 0; pixelIdx < cache.Len(); pixelIdx += 997 {
		want, wantOK := tables.CellIndexForPixel(pixelIdx)
		got, gotOK := cache.Lookup(pixelIdx)
		require.Equal(t, wantOK, gotOK, "pixel %d", pixelIdx)
		if wantOK {
			require.Equal(t, int32(want), got, "pixel %d", pixelIdx)
		}
	}
}
