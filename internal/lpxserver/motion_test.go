package lpxserver

import (
	"testing"

	"github.com/lpxlab/retina/internal/lpxtest"
	"github.com/stretchr/testify/require"
)

func TestMotionScorerFirstCallIsZero(t *testing.T) {
	m := &motionScorer{}
	frame := lpxtest.NewUniformFrame(64, 64, 10, 10, 10)
	require.Equal(t, 0.0, m.score(frame))
}

func TestMotionScorerDetectsChange(t *testing.T) {
	m := &motionScorer{}
	dark := lpxtest.NewUniformFrame(64, 64, 0, 0, 0)
	bright := lpxtest.NewUniformFrame(64, 64, 255, 255, 255)

	m.score(dark)
	score := m.score(bright)
	require.Greater(t, score, 100.0)
}

func TestMotionScorerStableOnRepeatedFrame(t *testing.T) {
	m := &motionScorer{}
	frame := lpxtest.NewUniformFrame(64, 64, 50, 60, 70)

	m.score(frame)
	score := m.score(frame)
	require.Equal(t, 0.0, score)
}
