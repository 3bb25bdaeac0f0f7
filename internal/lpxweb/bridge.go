// Package lpxweb is an optional browser-facing preview bridge: it
// re-renders the server's latest broadcast LP Image and pushes it to
// connected browsers as binary PNG frames over a WebSocket, alongside
// the raw TCP streaming path that remains the primary wire protocol.
package lpxweb

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/lpxlab/retina/internal/lpximage"
	"github.com/lpxlab/retina/internal/lpxrender"
	"github.com/lpxlab/retina/internal/monitoring"
)

// ImageSource is the minimal slice of *lpxserver.Server the bridge
// depends on, kept narrow so the bridge can be unit tested without
// standing up a full server.
type ImageSource interface {
	LatestImage() (*lpximage.Image, bool)
}

// Bridge serves a WebSocket endpoint that streams rendered PNG frames
// from source at a fixed push interval.
type Bridge struct {
	source       ImageSource
	render       *lpxrender.Renderer
	pushInterval time.Duration
}

// New returns a Bridge pulling frames from source at pushInterval
// (0 defaults to ~30Hz).
func New(source ImageSource, pushInterval time.Duration) *Bridge {
	if pushInterval <= 0 {
		pushInterval = 33 * time.Millisecond
	}
	return &Bridge{source: source, render: lpxrender.New(), pushInterval: pushInterval}
}

// Handler returns an http.Handler that upgrades each request to a
// WebSocket and streams rendered frames until the client disconnects.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(b.serveWS)
}

func (b *Bridge) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		monitoring.Logf("lpxweb: accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ticker := time.NewTicker(b.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client context done")
			return
		case <-ticker.C:
			img, ok := b.source.LatestImage()
			if !ok {
				continue
			}
			png, err := b.renderPNG(img)
			if err != nil {
				monitoring.Logf("lpxweb: render failed: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = conn.Write(writeCtx, websocket.MessageBinary, png)
			cancel()
			if err != nil {
				monitoring.Logf("lpxweb: write failed: %v", err)
				return
			}
		}
	}
}

// renderPNG renders img at scale 1 and PNG-encodes the result.
func (b *Bridge) renderPNG(img *lpximage.Image) ([]byte, error) {
	out, err := b.render.Render(img, img.Width, img.Height, 1.0)
	if err != nil {
		return nil, err
	}

	rgba := image.NewRGBA(image.Rect(0, 0, out.Width, out.Height))
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			idx := (y*out.Width + x) * 3
			bl, g, r := out.Pix[idx+0], out.Pix[idx+1], out.Pix[idx+2]
			rgba.Set(x, y, color.RGBA{R: r, G: g, B: bl, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
