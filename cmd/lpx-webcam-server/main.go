// lpx-webcam-server streams a live capture source through the
// log-polar scan pipeline. No third-party camera binding ships with
// this repository (see internal/lpxserver.FrameSource); the animated
// test pattern below stands in for a real webcam adapter until one is
// wired behind the same interface.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lpxlab/retina/internal/lpxconfig"
	"github.com/lpxlab/retina/internal/lpxserver"
	"github.com/lpxlab/retina/internal/lpxtables"
	"github.com/lpxlab/retina/internal/lpxweb"
	"github.com/lpxlab/retina/internal/monitoring"
	"github.com/lpxlab/retina/internal/version"
)

var (
	listen     = flag.String("listen", "", "TCP listen address (overrides config)")
	tablesPath = flag.String("tables", "", "path to a scan table (lpxtables) file")
	configPath = flag.String("config", "", "optional path to a JSON server config file")
	outW       = flag.Int("width", 1920, "output LP Image width")
	outH       = flag.Int("height", 1080, "output LP Image height")
	minSkip    = flag.Int("min-skip", 2, "minimum adaptive frame skip")
	maxSkip    = flag.Int("max-skip", 6, "maximum adaptive frame skip")
	threshold  = flag.Float64("motion-threshold", 5.0, "motion score above which frame skip relaxes toward min-skip")
	web        = flag.String("web", "", "optional HTTP listen address serving a browser preview over WebSocket")
	showVer    = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		log.Printf("lpx-webcam-server %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *tablesPath == "" {
		log.Fatal("lpx-webcam-server: -tables is required")
	}

	tables, err := lpxtables.Load(*tablesPath)
	if err != nil {
		log.Fatalf("lpx-webcam-server: load tables: %v", err)
	}

	cfg := lpxconfig.Empty()
	if *configPath != "" {
		cfg, err = lpxconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("lpx-webcam-server: load config: %v", err)
		}
	}
	// Only flags given on the command line override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-skip":
			cfg.MinSkip = minSkip
		case "max-skip":
			cfg.MaxSkip = maxSkip
		case "motion-threshold":
			cfg.MotionThreshold = threshold
		case "width":
			cfg.OutputWidth = outW
		case "height":
			cfg.OutputHeight = outH
		}
	})

	srv, err := lpxserver.New(tables, cfg)
	if err != nil {
		log.Fatalf("lpx-webcam-server: %v", err)
	}

	source := lpxserver.NewTestPatternSource(cfg.GetOutputWidth(), cfg.GetOutputHeight())

	listenAddr := *listen
	if listenAddr == "" {
		listenAddr = cfg.GetListenAddr()
	}

	if err := srv.Start(listenAddr, source, cfg.GetOutputWidth(), cfg.GetOutputHeight()); err != nil {
		log.Fatalf("lpx-webcam-server: start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *web != "" {
		bridge := lpxweb.New(srv, 33*time.Millisecond)
		httpSrv := &http.Server{Addr: *web, Handler: bridge.Handler()}
		go func() {
			monitoring.Logf("lpx-webcam-server: web preview listening on %s", *web)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				monitoring.Logf("lpx-webcam-server: web preview: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
	}

	<-ctx.Done()
	log.Print("lpx-webcam-server: shutting down")
	srv.Stop()
}
