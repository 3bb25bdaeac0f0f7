// Package lpxstats tracks operational counters for the scan pipeline:
// frames captured and dropped, scans completed, per-client delivery,
// and commands applied. It mirrors the reference packet-statistics
// component (AddPacket/AddDropped/LogStats) adapted from network
// packets to video frames and cells.
package lpxstats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lpxlab/retina/internal/monitoring"
)

// Pipeline holds the atomic counters for one streaming server instance.
// All methods are safe for concurrent use.
type Pipeline struct {
	FramesCaptured    atomic.Int64
	FramesDroppedCap  atomic.Int64 // dropped from the capture->processing queue
	FramesDroppedBcst atomic.Int64 // dropped from the processing->broadcast queue
	ScansCompleted    atomic.Int64
	ScansFailed       atomic.Int64
	CommandsApplied   atomic.Int64
	ClientsConnected  atomic.Int64
	ClientsTotal      atomic.Int64
	FramesSent        atomic.Int64
	WriteFailures     atomic.Int64

	latency latencyEMA
	motion  latencyEMA
}

// Snapshot is a point-in-time, copyable view of Pipeline's counters.
type Snapshot struct {
	FramesCaptured    int64
	FramesDroppedCap  int64
	FramesDroppedBcst int64
	ScansCompleted    int64
	ScansFailed       int64
	CommandsApplied   int64
	ClientsConnected  int64
	ClientsTotal      int64
	FramesSent        int64
	WriteFailures     int64
	ScanLatencyEMA    time.Duration
	MotionScoreEMA    float64
}

// NewPipeline returns a Pipeline whose latency/motion EMAs use the
// given decay factor (0 < decay <= 1; higher reacts faster).
func NewPipeline(decay float64) *Pipeline {
	return &Pipeline{
		latency: newLatencyEMA(decay),
		motion:  newLatencyEMA(decay),
	}
}

// RecordScanLatency folds a scan's wall-clock duration into the EMA
// that the webcam capture stage reads to adapt its frame-skip factor.
func (p *Pipeline) RecordScanLatency(d time.Duration) {
	p.latency.update(float64(d))
}

// ScanLatencyEMA returns the current smoothed scan latency.
func (p *Pipeline) ScanLatencyEMA() time.Duration {
	return time.Duration(p.latency.value())
}

// RecordMotionScore folds a frame's motion score into its own EMA.
func (p *Pipeline) RecordMotionScore(score float64) {
	p.motion.update(score)
}

// MotionScoreEMA returns the current smoothed motion score.
func (p *Pipeline) MotionScoreEMA() float64 {
	return p.motion.value()
}

// Snapshot returns a copy of every counter for logging or export.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		FramesCaptured:    p.FramesCaptured.Load(),
		FramesDroppedCap:  p.FramesDroppedCap.Load(),
		FramesDroppedBcst: p.FramesDroppedBcst.Load(),
		ScansCompleted:    p.ScansCompleted.Load(),
		ScansFailed:       p.ScansFailed.Load(),
		CommandsApplied:   p.CommandsApplied.Load(),
		ClientsConnected:  p.ClientsConnected.Load(),
		ClientsTotal:      p.ClientsTotal.Load(),
		FramesSent:        p.FramesSent.Load(),
		WriteFailures:     p.WriteFailures.Load(),
		ScanLatencyEMA:    p.ScanLatencyEMA(),
		MotionScoreEMA:    p.MotionScoreEMA(),
	}
}

// LogStats writes a one-line summary of the current snapshot through
// the package-level monitoring logger. Intended to be called on a
// periodic ticker from the server's lifecycle goroutine.
func (p *Pipeline) LogStats() {
	s := p.Snapshot()
	monitoring.Logf(
		"[stats] captured=%d dropped_cap=%d dropped_bcst=%d scans=%d scan_failed=%d "+
			"clients=%d frames_sent=%d write_failures=%d scan_latency_ema=%s motion_ema=%.2f",
		s.FramesCaptured, s.FramesDroppedCap, s.FramesDroppedBcst, s.ScansCompleted, s.ScansFailed,
		s.ClientsConnected, s.FramesSent, s.WriteFailures, s.ScanLatencyEMA, s.MotionScoreEMA,
	)
}

// String implements fmt.Stringer for ad-hoc debugging.
func (s Snapshot) String() string {
	return fmt.Sprintf("Snapshot{captured=%d sent=%d clients=%d scanLatency=%s}",
		s.FramesCaptured, s.FramesSent, s.ClientsConnected, s.ScanLatencyEMA)
}
