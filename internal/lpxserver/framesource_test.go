package lpxserver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTestPatternSourceProducesRequestedDimensions(t *testing.T) {
	src := NewTestPatternSource(64, 48)
	frame, err := src.NextFrame()
	require.NoError(t, err)

	w, h := frame.Dimensions()
	require.Equal(t, 64, w)
	require.Equal(t, 48, h)
}

func TestTestPatternSourceNeverEnds(t *testing.T) {
	src := NewTestPatternSource(16, 16)
	for i := 0; i < 50; i++ {
		_, err := src.NextFrame()
		require.NoError(t, err)
	}
}

func TestTestPatternSourceRewindResetsPhase(t *testing.T) {
	src := NewTestPatternSource(16, 16)
	for i := 0; i < 10; i++ {
		_, err := src.NextFrame()
		require.NoError(t, err)
	}
	require.NoError(t, src.Rewind())
	require.Equal(t, 0, src.phase)
}

func TestTestPatternSourceAtStaysInByteRange(t *testing.T) {
	src := NewTestPatternSource(32, 32)
	frame, err := src.NextFrame()
	require.NoError(t, err)

	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			b, g, r := frame.At(x, y)
			_ = b
			_ = g
			_ = r
		}
	}
}
