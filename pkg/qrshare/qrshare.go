// Package qrshare renders dashboard links as QR codes with a jigsaw mark in
// the middle, so a panel can be opened on a phone next to the screen.
package qrshare

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
)

// maxURL caps the encoded link; longer ones are truncated.
const maxURL = 1024

type Options struct {
	SizePx int // output edge in pixels

	Fg color.RGBA // modules
	Bg color.RGBA // background, quiet zone included

	// MarkFrac is the edge of the central mark as a fraction of the image,
	// clamped to 0.15..0.30 so ECC=H can still recover the covered modules.
	MarkFrac float64

	// Tiles colours the 2x2 mark, low to high.
	Tiles [4]color.RGBA
}

// DefaultOptions matches the map palette.
func DefaultOptions() Options {
	return Options{
		SizePx:   1024,
		Fg:       color.RGBA{0, 0, 0, 255},
		Bg:       color.RGBA{255, 255, 255, 255},
		MarkFrac: 0.24,
		Tiles: [4]color.RGBA{
			{0x44, 0x01, 0x54, 0xff},
			{0x31, 0x68, 0x8e, 0xff},
			{0x35, 0xb7, 0x79, 0xff},
			{0xfd, 0xe7, 0x25, 0xff},
		},
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.SizePx <= 0 {
		o.SizePx = d.SizePx
	}
	if (o.Fg == color.RGBA{}) {
		o.Fg = d.Fg
	}
	if (o.Bg == color.RGBA{}) {
		o.Bg = d.Bg
	}
	if o.Tiles == [4]color.RGBA{} {
		o.Tiles = d.Tiles
	}
	switch {
	case o.MarkFrac <= 0:
		o.MarkFrac = d.MarkFrac
	case o.MarkFrac < 0.15:
		o.MarkFrac = 0.15
	case o.MarkFrac > 0.30:
		o.MarkFrac = 0.30
	}
	return o
}

// Render builds the QR image for data.
func Render(data string, opt Options) (*image.RGBA, error) {
	opt = opt.normalized()

	qr, err := qrcode.New(data, qrcode.Highest)
	if err != nil {
		return nil, err
	}
	qr.ForegroundColor = opt.Fg
	qr.BackgroundColor = opt.Bg

	src := qr.Image(opt.SizePx)
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	drawMark(dst, opt)
	return dst, nil
}

// EncodePNG writes the QR for data as PNG.
func EncodePNG(w io.Writer, data string, opt Options) error {
	img, err := Render(data, opt)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

// drawMark clears a centred box and draws four tiles in it, the way a
// jigsaw of averaged cells looks on the map.
func drawMark(dst *image.RGBA, opt Options) {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	box := int(opt.MarkFrac * float64(min(w, h)))
	box -= box % 2
	if box < 8 {
		return
	}
	x0, y0 := w/2-box/2, h/2-box/2
	fill(dst, image.Rect(x0, y0, x0+box, y0+box), opt.Bg)

	pad := box / 10
	gap := max(box/40, 1)
	inner := box - 2*pad
	tile := (inner - gap) / 2
	for i, col := range opt.Tiles {
		tx := x0 + pad + (i%2)*(tile+gap)
		ty := y0 + pad + (1-i/2)*(tile+gap)
		fill(dst, image.Rect(tx, ty, tx+tile, ty+tile), col)
	}
}

func fill(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	draw.Draw(img, r, &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// Handler serves /qrpng?u=<link>. Without u it encodes the referring page,
// then the request URL itself.
func Handler(opt Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := r.URL.Query().Get("u")
		if u == "" {
			if ref := r.Referer(); ref != "" {
				u = ref
			} else {
				scheme := "http"
				if r.TLS != nil {
					scheme = "https"
				}
				u = scheme + "://" + r.Host + r.URL.RequestURI()
			}
		}
		if len(u) > maxURL {
			u = u[:maxURL]
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Disposition", "inline; filename=\"qr.png\"")
		if err := EncodePNG(w, u, opt); err != nil {
			http.Error(w, "QR encode: "+err.Error(), http.StatusInternalServerError)
		}
	}
}
