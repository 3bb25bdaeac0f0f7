// lpx-file-server streams a directory of still images through the
// log-polar scan pipeline to any TCP client that connects, looping
// through the directory at a configurable frame rate.
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
	dir        = flag.String("dir", "", "directory of PNG/BMP frames to stream")
	configPath = flag.String("config", "", "optional path to a JSON server config file")
	outW       = flag.Int("width", 0, "output LP Image width (overrides config)")
	outH       = flag.Int("height", 0, "output LP Image height (overrides config)")
	fps        = flag.Float64("fps", 0, "playback frame rate (overrides config)")
	loop       = flag.Bool("loop", true, "loop the directory at end-of-stream")
	web        = flag.String("web", "", "optional HTTP listen address serving a browser preview over WebSocket")
	showVer    = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		log.Printf("lpx-file-server %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *tablesPath == "" {
		log.Fatal("lpx-file-server: -tables is required")
	}
	if *dir == "" {
		log.Fatal("lpx-file-server: -dir is required")
	}

	tables, err := lpxtables.Load(*tablesPath)
	if err != nil {
		log.Fatalf("lpx-file-server: load tables: %v", err)
	}

	cfg := lpxconfig.Empty()
	if *configPath != "" {
		cfg, err = lpxconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("lpx-file-server: load config: %v", err)
		}
	}
	if *fps > 0 {
		f := *fps
		cfg.FileFPS = &f
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "loop" {
			cfg.FileLooping = loop
		}
	})

	srv, err := lpxserver.New(tables, cfg)
	if err != nil {
		log.Fatalf("lpx-file-server: %v", err)
	}

	source, err := lpxserver.NewDirectorySource(*dir)
	if err != nil {
		log.Fatalf("lpx-file-server: open %s: %v", *dir, err)
	}
	source.SetLooping(cfg.GetFileLooping())

	listenAddr := *listen
	if listenAddr == "" {
		listenAddr = cfg.GetListenAddr()
	}
	width, height := *outW, *outH
	if width <= 0 {
		width = cfg.GetOutputWidth()
	}
	if height <= 0 {
		height = cfg.GetOutputHeight()
	}

	if err := srv.Start(listenAddr, source, width, height); err != nil {
		log.Fatalf("lpx-file-server: start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *web != "" {
		bridge := lpxweb.New(srv, 33*time.Millisecond)
		httpSrv := &http.Server{Addr: *web, Handler: bridge.Handler()}
		go func() {
			monitoring.Logf("lpx-file-server: web preview listening on %s", *web)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				monitoring.Logf("lpx-file-server: web preview: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
	}

	<-ctx.Done()
	log.Print("lpx-file-server: shutting down")
	srv.Stop()
}
