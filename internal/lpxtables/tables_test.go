package lpxtables

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// encodeTestTables writes a tiny, valid scan-tables file in memory.
func encodeTestTables(t *testing.T, mapWidth int, spiralPerInt int32, outerIdx, outerCell []int32, inner []Position, lastFovea, lastCell int32) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := header{
		TotalLength:    0,
		MapWidth:       int32(mapWidth),
		SpiralPerInt:   spiralPerInt,
		Length:         int32(len(outerIdx)),
		InnerLength:    int32(len(inner)),
		LastFoveaIndex: lastFovea,
		LastCellIndex:  lastCell,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &hdr))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, outerIdx))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, outerCell))
	for _, p := range inner {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(p.X)))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(p.Y)))
	}
	return buf.Bytes()
}

func TestDecodeValidTables(t *testing.T) {
	data := encodeTestTables(t, 100,
		63, // -> spiralPer 63.5
		[]int32{10, 20, 30},
		[]int32{6, 7, 8},
		[]Position{{X: 1, Y: 1}, {X: -1, Y: -1}},
		2, 9,
	)

	tables, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 100, tables.MapWidth)
	require.InDelta(t, 63.5, tables.SpiralPer, 1e-9)
	require.Equal(t, 2, tables.LastFoveaIndex)
	require.Equal(t, 9, tables.LastCellIndex)
	require.Len(t, tables.InnerCells, 2)
}

func TestDecodeRejectsTrailingShortFile(t *testing.T) {
	data := encodeTestTables(t, 100, 63,
		[]int32{10, 20, 30}, []int32{6, 7, 8},
		[]Position{{X: 1, Y: 1}}, 2, 9)
	truncated := data[:len(data)-10]

	_, err := Decode(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestDecodeRejectsSpiralPerOutOfRange(t *testing.T) {
	data := encodeTestTables(t, 100, 100000,
		[]int32{10}, []int32{6},
		nil, 2, 9)

	_, err := Decode(bytes.NewReader(data))
	require.Error(t, err)
}

func TestDecodeRejectsNonAscendingOuterPixelIndex(t *testing.T) {
	data := encodeTestTables(t, 100, 63,
		[]int32{10, 5, 30}, []int32{6, 7, 8},
		nil, 2, 9)

	_, err := Decode(bytes.NewReader(data))
	require.Error(t, err)
}

func TestDecodeRejectsInvalidFoveaRange(t *testing.T) {
	data := encodeTestTables(t, 100, 63,
		[]int32{10, 20}, []int32{6, 7},
		nil, 9, 9) // lastFoveaIndex == lastCellIndex is invalid

	_, err := Decode(bytes.NewReader(data))
	require.Error(t, err)
}

func TestCellIndexForPixelPredecessorSearch(t *testing.T) {
	tables := NewForTest(100, 63.5,
		[]int32{10, 20, 30}, []int32{6, 7, 8},
		nil, 2, 9)

	idx, ok := tables.CellIndexForPixel(15)
	require.True(t, ok)
	require.Equal(t, 6, idx)

	idx, ok = tables.CellIndexForPixel(25)
	require.True(t, ok)
	require.Equal(t, 7, idx)

	_, ok = tables.CellIndexForPixel(5)
	require.False(t, ok)
}
