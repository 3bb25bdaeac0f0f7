package lpxserver

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lpxlab/retina/internal/lpxconfig"
	"github.com/lpxlab/retina/internal/lpxscan"
	"github.com/lpxlab/retina/internal/lpxtest"
	"github.com/lpxlab/retina/internal/lpxwire"
	"github.com/stretchr/testify/require"
)

// countingSource is a FrameSource that hands out a varying uniform
// frame on every call (so motionScorer sees real motion) and reports
// isFile as its IsFileBacked answer, without pacing or looping
// behaviour of its own.
type countingSource struct {
	width, height int
	isFile        bool
	calls         atomic.Int64
}

func (s *countingSource) NextFrame() (lpxscan.Frame, error) {
	n := s.calls.Add(1)
	return lpxtest.NewUniformFrame(s.width, s.height, uint8(n), uint8(n*2), uint8(n*3)), nil
}

func (s *countingSource) Rewind() error      { return nil }
func (s *countingSource) Close() error       { return nil }
func (s *countingSource) IsFileBacked() bool { return s.isFile }

func floatPtr(v float64) *float64 { return &v }

// TestMovementLatencyOffsetReflectsCommandNotAbsoluteFixation is the
// movement-latency scenario: a MOVEMENT(dx=1, dy=0, step=10) command
// must cause the next received frame to report x_ofs ~= 10, y_ofs ~= 0
// (the offset from frame centre), not the absolute scan centre.
func TestMovementLatencyOffsetReflectsCommandNotAbsoluteFixation(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	s, err := New(tables, lpxconfig.Empty())
	require.NoError(t, err)

	source := NewTestPatternSource(tables.MapWidth, tables.MapWidth)
	require.NoError(t, s.Start("127.0.0.1:0", source, tables.MapWidth, tables.MapWidth))
	defer s.Stop()

	addr := s.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// Drain one frame before moving so the connection is warmed up.
	_, err = lpxwire.ReadFrame(conn, tables, 0)
	require.NoError(t, err)

	require.NoError(t, lpxwire.WriteCommand(conn, lpxwire.Command{
		Type: lpxwire.CmdMovement, DeltaX: 1, DeltaY: 0, StepSize: 10,
	}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		img, err := lpxwire.ReadFrame(conn, tables, 0)
		require.NoError(t, err)
		if img.XOfs > 5 {
			require.InDelta(t, 10, img.XOfs, 1.0)
			require.InDelta(t, 0, img.YOfs, 1.0)
			return
		}
	}
	t.Fatal("movement was never reflected in a received frame's x_ofs")
}

// TestCaptureLoopSkipsAdaptiveSkipForFileSources is the adaptive-skip
// scoping scenario: a file-backed source must never feed the motion
// scorer (pacing/looping owns its cadence instead), while a live
// source always does.
func TestCaptureLoopSkipsAdaptiveSkipForFileSources(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())

	fileSrc := &countingSource{width: tables.MapWidth, height: tables.MapWidth, isFile: true}
	s, err := New(tables, &lpxconfig.Config{FileFPS: floatPtr(0)})
	require.NoError(t, err)
	require.NoError(t, s.Start("127.0.0.1:0", fileSrc, tables.MapWidth, tables.MapWidth))

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && fileSrc.calls.Load() < 20 {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	require.GreaterOrEqual(t, fileSrc.calls.Load(), int64(1))
	require.Equal(t, 0.0, s.Stats().MotionScoreEMA)

	liveSrc := &countingSource{width: tables.MapWidth, height: tables.MapWidth, isFile: false}
	s2, err := New(tables, lpxconfig.Empty())
	require.NoError(t, err)
	require.NoError(t, s2.Start("127.0.0.1:0", liveSrc, tables.MapWidth, tables.MapWidth))

	deadline = time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && liveSrc.calls.Load() < 20 {
		time.Sleep(5 * time.Millisecond)
	}
	s2.Stop()
	require.NotEqual(t, 0.0, s2.Stats().MotionScoreEMA)
}

func TestQueuePopOldestOnOverflow(t *testing.T) {
	q := NewQueue[int](3)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.Push(4) // overflow: drops 1

	var got []int
	for i := 0; i < 3; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		got = append(got, v)
	}
	require.Equal(t, []int{2, 3, 4}, got)
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue[int](3)
	done := make(chan int, 1)
	go func() {
		v, ok := q.Pop()
		require.True(t, ok)
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-done:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueueCloseWakesBlockedPop(t *testing.T) {
	q := NewQueue[int](3)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Close")
	}
}

func TestQueueClosedDrainsRemainingItemsFirst(t *testing.T) {
	q := NewQueue[int](3)
	q.Push(1)
	q.Push(2)
	q.Close()

	v, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, 2, v)

	_, ok = q.Pop()
	require.False(t, ok)
}

func TestClientSetAddRemoveCount(t *testing.T) {
	set := newClientSet()
	require.Equal(t, 0, set.count())

	c1, c2 := net.Pipe()
	defer c2.Close()
	id := set.add(c1)
	require.Equal(t, 1, set.count())

	set.remove(id)
	require.Equal(t, 0, set.count())
}

func TestNewRejectsInvalidTables(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestHandleMovementClampsFixation(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	s, err := New(tables, lpxconfig.Empty())
	require.NoError(t, err)

	// A huge repeated delta should clamp to the configured fraction of
	// mapWidth, not run away unbounded.
	for i := 0; i < 1000; i++ {
		s.HandleMovement(lpxwire.Command{Type: lpxwire.CmdMovement, DeltaX: 1, DeltaY: 1, StepSize: 1000})
	}

	x, y := s.fix.get()
	bound := lpxconfig.Empty().GetMovementClampFrac() * float64(tables.MapWidth)
	require.LessOrEqual(t, x, bound+1e-6)
	require.LessOrEqual(t, y, bound+1e-6)
	require.GreaterOrEqual(t, x, -bound-1e-6)
	require.GreaterOrEqual(t, y, -bound-1e-6)
}

func TestSetCenterOffsetClamps(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	s, err := New(tables, lpxconfig.Empty())
	require.NoError(t, err)

	s.SetCenterOffset(1e9, -1e9)
	x, y := s.fix.get()
	bound := lpxconfig.Empty().GetMovementClampFrac() * float64(tables.MapWidth)
	require.InDelta(t, bound, x, 1e-6)
	require.InDelta(t, -bound, y, 1e-6)
}

func TestClientCountReflectsConnections(t *testing.T) {
	tables := lpxtest.BuildSyntheticTables(lpxtest.DefaultSyntheticTablesSpec())
	s, err := New(tables, lpxconfig.Empty())
	require.NoError(t, err)
	require.Equal(t, 0, s.ClientCount())

	c1, c2 := net.Pipe()
	defer c2.Close()
	s.clients.add(c1)
	require.Equal(t, 1, s.ClientCount())
}

func TestBroadcastOrderingPreservesPushOrder(t *testing.T) {
	// The broadcast queue is a plain FIFO (modulo pop-oldest overflow):
	// pushing then popping without overflow preserves order.
	q := NewQueue[int](3)
	var wg sync.WaitGroup
	wg.Add(1)
	var results []int
	go func() {
		defer wg.Done()
		for i := 0; i < 3; i++ {
			v, ok := q.Pop()
			if !ok {
				return
			}
			results = append(results, v)
		}
	}()

	q.Push(1)
	q.Push(2)
	q.Push(3)
	wg.Wait()

	require.Equal(t, []int{1, 2, 3}, results)
}
