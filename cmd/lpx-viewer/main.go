// lpx-viewer connects to a streaming server, renders every received
// LP Image, and writes the rendered frames as PNG snapshots — the
// shipped Display implementation, since a real GUI window is an
// external collaborator this repository does not depend on.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lpxlab/retina/internal/lpxtables"
	"github.com/lpxlab/retina/internal/lpxviewer"
	"github.com/lpxlab/retina/internal/version"
)

var (
	addr       = flag.String("server", "localhost:5050", "server address (host:port)")
	tablesPath = flag.String("tables", "", "path to the scan table (lpxtables) file used by the server")
	snapDir    = flag.String("snapshots", "", "directory to write rendered PNG snapshots into (default: a temp dir)")
	showVer    = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		log.Printf("lpx-viewer %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *tablesPath == "" {
		log.Fatal("lpx-viewer: -tables is required")
	}

	tables, err := lpxtables.Load(*tablesPath)
	if err != nil {
		log.Fatalf("lpx-viewer: load tables: %v", err)
	}

	dir := *snapDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "lpx-viewer-*")
		if err != nil {
			log.Fatalf("lpx-viewer: create snapshot dir: %v", err)
		}
	}
	display := lpxviewer.NewSnapshotDisplay(dir)
	log.Printf("lpx-viewer: writing snapshots to %s", dir)

	v, err := lpxviewer.New(*addr, tables, display)
	if err != nil {
		log.Fatalf("lpx-viewer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		v.Close()
	}()

	if err := v.Run(); err != nil {
		log.Fatalf("lpx-viewer: %v", err)
	}
}
