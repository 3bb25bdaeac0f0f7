package lpximage

import (
	"bytes"
	"testing"

	"github.com/lpxlab/retina/internal/lpxtest"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackBGRRoundTrip(t *testing.T) {
	cases := []struct{ b, g, r uint8 }{
		{0, 0, 0},
		{255, 255, 255},
		{1, 2, 3},
		{200, 10, 50},
	}
	for _, c := range cases {
		packed := PackBGR(c.b, c.g, c.r)
		b, g, r := UnpackBGR(packed)
		require.Equal(t, c.b, b)
		require.Equal(t, c.g, g)
		require.Equal(t, c.r, r)
	}
}

func TestPackBGRByteLayout(t *testing.T) {
	// low byte blue, next green, next red, matching the reference packColor.
	packed := PackBGR(0x11, 0x22, 0x33)
	require.Equal(t, uint32(0x00332211), packed)
}

func TestNewRejectsInvalidTables(t *testing.T) {
	_, err := New(nil, 100, 100)
	require.Error(t, err)
}

func TestNewAllocatesPerCellBuffers(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	img, err := New(tables, 320, 240)
	require.NoError(t, err)
	require.Equal(t, tables.LastCellIndex+1, img.Len())
	require.Len(t, img.AccR, img.Len())
	require.Len(t, img.AccG, img.Len())
	require.Len(t, img.AccB, img.Len())
	require.Len(t, img.Count, img.Len())
}

func TestResetClearsAccumulatorsOnlyNotCells(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	img, err := New(tables, 320, 240)
	require.NoError(t, err)

	for i := range img.Cells {
		img.Cells[i] = PackBGR(9, 9, 9)
		img.AccR[i].Store(5)
		img.AccG[i].Store(5)
		img.AccB[i].Store(5)
		img.Count[i].Store(5)
	}

	img.Reset()

	for i := range img.Cells {
		require.Equal(t, int64(0), img.AccR[i].Load())
		require.Equal(t, int64(0), img.AccG[i].Load())
		require.Equal(t, int64(0), img.AccB[i].Load())
		require.Equal(t, int64(0), img.Count[i].Load())
		require.Equal(t, PackBGR(9, 9, 9), img.Cells[i])
	}
}

func TestSetPosition(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	img, err := New(tables, 320, 240)
	require.NoError(t, err)
	img.SetPosition(12.5, -3.25)
	require.InDelta(t, 12.5, img.XOfs, 1e-9)
	require.InDelta(t, -3.25, img.YOfs, 1e-9)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	img, err := New(tables, 320, 240)
	require.NoError(t, err)
	img.SetPosition(10.0, -5.0)
	for i := range img.Cells {
		img.Cells[i] = PackBGR(uint8(i%256), uint8((i*3)%256), uint8((i*7)%256))
	}

	var buf bytes.Buffer
	require.NoError(t, img.Encode(&buf))

	decoded, err := Decode(&buf, tables)
	require.NoError(t, err)

	require.Equal(t, img.Width, decoded.Width)
	require.Equal(t, img.Height, decoded.Height)
	require.InDelta(t, img.XOfs, decoded.XOfs, 1e-4)
	require.InDelta(t, img.YOfs, decoded.YOfs, 1e-4)
	require.Equal(t, img.Cells, decoded.Cells)
}

func TestDecodeRejectsCellCountMismatch(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	img, err := New(tables, 320, 240)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, img.Encode(&buf))
	data := buf.Bytes()

	// Corrupt the Length field (second int32) to disagree with the tables.
	data[4] = 0xFF
	data[5] = 0xFF

	_, err = Decode(bytes.NewReader(data), tables)
	require.Error(t, err)
}
