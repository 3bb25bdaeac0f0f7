package lpxserver

import (
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lpxlab/retina/internal/lpxconfig"
	"github.com/lpxlab/retina/internal/lpximage"
	"github.com/lpxlab/retina/internal/lpxscan"
	"github.com/lpxlab/retina/internal/lpxstats"
	"github.com/lpxlab/retina/internal/lpxtables"
	"github.com/lpxlab/retina/internal/lpxwire"
	"github.com/lpxlab/retina/internal/monitoring"
)

// Server owns the scan tables, the fixation state, the two bounded
// queues, and the client set, and drives the four long-lived server
// tasks documented in the package doc: capture, processing, broadcast,
// and acceptor.
type Server struct {
	tables  *lpxtables.Tables
	scanner *lpxscan.Scanner
	cfg     *lpxconfig.Config
	stats   *lpxstats.Pipeline

	outWidth, outHeight int

	frameQueue     *Queue[lpxscan.Frame]
	broadcastQueue *Queue[*lpximage.Image]
	clients        *clientSet

	source FrameSource

	fix fixation

	fpsBits  atomic.Uint64
	looping  atomic.Bool
	rewindCh chan struct{}

	listener net.Listener
	running  atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	latestMu  sync.Mutex
	latestImg *lpximage.Image
}

// New builds a Server. tables and cfg must be non-nil; cfg may be
// lpxconfig.Empty() to take every default.
func New(tables *lpxtables.Tables, cfg *lpxconfig.Config) (*Server, error) {
	scanner, err := lpxscan.New(tables)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = lpxconfig.Empty()
	}

	s := &Server{
		tables:         tables,
		scanner:        scanner,
		cfg:            cfg,
		stats:          lpxstats.NewPipeline(cfg.GetLatencyEMADecay()),
		frameQueue:     NewQueue[lpxscan.Frame](cfg.GetFrameQueueCapacity()),
		broadcastQueue: NewQueue[*lpximage.Image](cfg.GetBroadcastQueueCapacity()),
		clients:        newClientSet(),
		rewindCh:       make(chan struct{}, 1),
	}
	s.fpsBits.Store(math.Float64bits(cfg.GetFileFPS()))
	s.looping.Store(cfg.GetFileLooping())
	return s, nil
}

// Stats returns a snapshot of the pipeline's running counters.
func (s *Server) Stats() lpxstats.Snapshot {
	return s.stats.Snapshot()
}

// Start binds addr, begins accepting clients, and launches the four
// server tasks reading frames from source and rendering to
// outW x outH LP Images.
func (s *Server) Start(addr string, source FrameSource, outW, outH int) error {
	if addr == "" {
		addr = s.cfg.GetListenAddr()
	}
	if outW <= 0 {
		outW = s.cfg.GetOutputWidth()
	}
	if outH <= 0 {
		outH = s.cfg.GetOutputHeight()
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("lpxserver: listen %s: %w", addr, err)
	}

	s.source = source
	s.outWidth, s.outHeight = outW, outH
	s.listener = lis
	s.stopCh = make(chan struct{})
	s.running.Store(true)

	s.wg.Add(4)
	go s.captureLoop()
	go s.processingLoop()
	go s.broadcastLoop()
	go s.acceptLoop()

	monitoring.Logf("lpxserver: listening on %s, output %dx%d", addr, outW, outH)
	return nil
}

// Stop cooperatively shuts the server down: clears the running flag,
// closes the listener and both queues, waits for all four tasks to
// return, then closes every client socket. The four tasks are joined
// together; Broadcast and Acceptor are not joined ahead of Capture and
// Processing.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}
	s.frameQueue.Close()
	s.broadcastQueue.Close()

	s.wg.Wait()
	s.clients.closeAll()
	if s.source != nil {
		s.source.Close()
	}
	monitoring.Logf("lpxserver: stopped")
}

// SetLooping controls whether a file source rewinds at end-of-stream
// instead of ending the capture task.
func (s *Server) SetLooping(loop bool) {
	s.looping.Store(loop)
	if ds, ok := s.source.(*DirectorySource); ok {
		ds.SetLooping(loop)
	}
}

// SetFPS sets the target capture rate for a file source.
func (s *Server) SetFPS(fps float64) {
	if fps <= 0 {
		return
	}
	s.fpsBits.Store(math.Float64bits(fps))
}

// SetCenterOffset directly sets the fixation offset, clamped per
// configuration.
func (s *Server) SetCenterOffset(x, y float64) {
	cx, cy := clampFixation(x, y, s.tables.MapWidth, s.cfg.GetMovementClampFrac())
	s.fix.set(cx, cy)
}

// HandleMovement applies a decoded MOVEMENT command to the fixation
// state: x_ofs/y_ofs += delta*stepSize, clamped.
func (s *Server) HandleMovement(cmd lpxwire.Command) {
	x, y := s.fix.get()
	x += float64(cmd.DeltaX) * float64(cmd.StepSize)
	y += float64(cmd.DeltaY) * float64(cmd.StepSize)
	cx, cy := clampFixation(x, y, s.tables.MapWidth, s.cfg.GetMovementClampFrac())
	s.fix.set(cx, cy)
	s.stats.CommandsApplied.Add(1)
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	return s.clients.count()
}

// LatestImage returns the most recently broadcast LP Image, for an
// optional secondary consumer such as the browser preview bridge. It
// is the same *lpximage.Image fanned out to TCP clients, so callers
// must not mutate it.
func (s *Server) LatestImage() (*lpximage.Image, bool) {
	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	return s.latestImg, s.latestImg != nil
}

func (s *Server) fps() float64 {
	return math.Float64frombits(s.fpsBits.Load())
}

// captureLoop is task 1: produces frames from the source and pushes
// onto the bounded frame queue. File sources (IsFileBacked true) are
// paced to the configured FileFPS and looped per FileLooping; live
// sources instead get motion-adaptive frame skip, since a live device
// has no fixed playback rate to pace against and benefits from
// dropping frames under load instead.
func (s *Server) captureLoop() {
	defer s.wg.Done()

	isFile := s.source.IsFileBacked()

	scorer := &motionScorer{}
	minSkip, maxSkip := s.cfg.GetMinSkip(), s.cfg.GetMaxSkip()
	skip := minSkip
	frameCounter := 0

	var lastFrameAt time.Time

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.rewindCh:
			if s.source != nil {
				s.source.Rewind()
			}
		default:
		}

		frame, err := s.source.NextFrame()
		if err != nil {
			if s.looping.Load() {
				if rewErr := s.source.Rewind(); rewErr == nil {
					continue
				}
			}
			monitoring.Logf("lpxserver: capture ended: %v", err)
			return
		}

		if !isFile {
			frameCounter++
			score := scorer.score(frame)
			s.stats.RecordMotionScore(score)
			skip = adaptiveSkip(skip, minSkip, maxSkip, score, s.cfg.GetMotionThreshold(), s.stats.ScanLatencyEMA())
			if frameCounter%skip != 0 {
				continue
			}
		}

		if isFile {
			if fps := s.fps(); fps > 0 {
				interval := time.Duration(float64(time.Second) / fps)
				if !lastFrameAt.IsZero() {
					if elapsed := time.Since(lastFrameAt); elapsed < interval {
						time.Sleep(interval - elapsed)
					}
				}
				lastFrameAt = time.Now()
			}
		}

		s.stats.FramesCaptured.Add(1)
		if s.frameQueue.Len() >= s.cfg.GetFrameQueueCapacity() {
			s.stats.FramesDroppedCap.Add(1)
		}
		s.frameQueue.Push(frame)
	}
}

// adaptiveSkip adjusts the keep-every-Nth-frame skip count from the
// motion score and recent scan latency: motion above the threshold or
// a scan-latency EMA under 10ms pulls skip toward minSkip (keep more
// frames); otherwise (low motion and latency of 10ms or more) it moves
// one step toward maxSkip.
func adaptiveSkip(current, minSkip, maxSkip int, motionScore, motionThreshold float64, latencyEMA time.Duration) int {
	next := current
	if motionScore > motionThreshold || latencyEMA < 10*time.Millisecond {
		next--
	} else {
		next++
	}
	if next < minSkip {
		next = minSkip
	}
	if next > maxSkip {
		next = maxSkip
	}
	return next
}

// processingLoop is task 2: pops a frame, scans it at the current
// fixation, and pushes the resulting LP Image onto the broadcast
// queue.
func (s *Server) processingLoop() {
	defer s.wg.Done()
	for {
		frame, ok := s.frameQueue.Pop()
		if !ok {
			return
		}

		img, err := lpximage.New(s.tables, s.outWidth, s.outHeight)
		if err != nil {
			s.stats.ScansFailed.Add(1)
			monitoring.Logf("lpxserver: allocate image: %v", err)
			continue
		}

		xOfs, yOfs := s.fix.get()
		cx := float64(s.outWidth)/2 + xOfs
		cy := float64(s.outHeight)/2 + yOfs

		start := time.Now()
		if err := s.scanner.Scan(frame, img, cx, cy); err != nil {
			s.stats.ScansFailed.Add(1)
			monitoring.Logf("lpxserver: scan failed: %v", err)
			continue
		}
		s.stats.RecordScanLatency(time.Since(start))
		s.stats.ScansCompleted.Add(1)

		if s.broadcastQueue.Len() >= s.cfg.GetBroadcastQueueCapacity() {
			s.stats.FramesDroppedBcst.Add(1)
		}
		s.broadcastQueue.Push(img)
	}
}

// broadcastLoop is task 3: pops one LP Image and fans it out to every
// connected client, first draining at most one pending command per
// client per cycle.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	for {
		img, ok := s.broadcastQueue.Pop()
		if !ok {
			return
		}

		s.latestMu.Lock()
		s.latestImg = img
		s.latestMu.Unlock()

		for _, c := range s.clients.snapshot() {
			if cmd, got, err := lpxwire.TryReadCommand(c.conn); err == nil && got {
				s.HandleMovement(cmd)
			}

			if err := lpxwire.WriteFrame(c.conn, img, s.cfg.GetWireMaxFrameBytes()); err != nil {
				s.stats.WriteFailures.Add(1)
				s.stats.ClientsConnected.Add(-1)
				s.clients.remove(c.id)
				continue
			}
			s.stats.FramesSent.Add(1)
		}
	}
}

// acceptLoop is task 4: non-blocking accept; the first client to
// connect triggers a rewind signal so new viewers start from frame 0.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if tl, ok := s.listener.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(200 * time.Millisecond))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if isTimeoutErr(err) {
				continue
			}
			return
		}

		lpxwire.SetNoDelay(conn)
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetWriteBuffer(64 * 1024)
		}

		wasEmpty := s.clients.count() == 0
		s.clients.add(conn)
		s.stats.ClientsConnected.Add(1)
		s.stats.ClientsTotal.Add(1)
		if wasEmpty {
			select {
			case s.rewindCh <- struct{}{}:
			default:
			}
		}
	}
}

func isTimeoutErr(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
