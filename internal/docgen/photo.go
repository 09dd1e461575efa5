package docgen

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
)

// ErrImageDecode marks a source photo that could not be decoded.
var ErrImageDecode = errors.New("docgen: undecodable image")

// PhotoOptions controls how a photo is prepared for placement.
// Width/Height are in PDF points; pixel dimensions follow from DPI
// (pixels = points * dpi / 72).
type PhotoOptions struct {
	WidthPt        float64
	HeightPt       float64
	DPI            int
	Shape          Shape
	CornerRadiusPt float64
	Sharpen        bool
}

// MaskPhoto resizes the source image to the exact slot dimensions (the box
// dictates the final shape, no aspect-ratio preservation), optionally
// sharpens it, applies the requested mask and returns a PNG carrying the
// target DPI so downstream placement keeps the physical size.
func MaskPhoto(src []byte, opts PhotoOptions) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 300
	}
	pw := int(math.Round(opts.WidthPt * float64(dpi) / 72))
	ph := int(math.Round(opts.HeightPt * float64(dpi) / 72))
	if pw <= 0 || ph <= 0 {
		return nil, errors.New("docgen: photo target size must be positive")
	}

	resized := imaging.Resize(img, pw, ph, imaging.Lanczos)
	if opts.Sharpen {
		resized = imaging.Sharpen(resized, 0.6)
	}

	out := image.NewNRGBA(image.Rect(0, 0, pw, ph))
	switch opts.Shape {
	case ShapeRound:
		draw.DrawMask(out, out.Bounds(), resized, image.Point{}, ellipseMask(pw, ph), image.Point{}, draw.Over)
	case ShapeSoftRound:
		radius := opts.CornerRadiusPt * float64(dpi) / 72
		draw.DrawMask(out, out.Bounds(), resized, image.Point{}, roundedRectMask(pw, ph, radius), image.Point{}, draw.Over)
	default:
		draw.Draw(out, out.Bounds(), resized, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return withDPI(buf.Bytes(), dpi)
}

const maskSubsamples = 4 // 4x4 supersampling per pixel for soft edges

// ellipseMask builds an 8-bit alpha mask for the full ellipse inscribed in
// the w×h box.
func ellipseMask(w, h int) *image.Alpha {
	cx := float64(w) / 2
	cy := float64(h) / 2
	rx := cx
	ry := cy
	inside := func(x, y float64) bool {
		dx := (x - cx) / rx
		dy := (y - cy) / ry
		return dx*dx+dy*dy <= 1
	}
	return coverageMask(w, h, inside)
}

// roundedRectMask builds an alpha mask for a rectangle with rounded corners
// of the given pixel radius.
func roundedRectMask(w, h int, radius float64) *image.Alpha {
	maxR := math.Min(float64(w), float64(h)) / 2
	r := math.Max(0, math.Min(radius, maxR))
	fw := float64(w)
	fh := float64(h)
	inside := func(x, y float64) bool {
		if x < 0 || y < 0 || x > fw || y > fh {
			return false
		}
		// Corner circles only bite where both coordinates are inside the
		// corner square.
		var cx, cy float64
		switch {
		case x < r && y < r:
			cx, cy = r, r
		case x > fw-r && y < r:
			cx, cy = fw-r, r
		case x < r && y > fh-r:
			cx, cy = r, fh-r
		case x > fw-r && y > fh-r:
			cx, cy = fw-r, fh-r
		default:
			return true
		}
		dx := x - cx
		dy := y - cy
		return dx*dx+dy*dy <= r*r
	}
	return coverageMask(w, h, inside)
}

// coverageMask rasterizes an inside-test into an anti-aliased alpha mask by
// averaging a fixed subsample grid per pixel.
func coverageMask(w, h int, inside func(x, y float64) bool) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	step := 1.0 / float64(maskSubsamples)
	half := step / 2
	total := maskSubsamples * maskSubsamples
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			hits := 0
			for sy := 0; sy < maskSubsamples; sy++ {
				for sx := 0; sx < maskSubsamples; sx++ {
					x := float64(px) + half + float64(sx)*step
					y := float64(py) + half + float64(sy)*step
					if inside(x, y) {
						hits++
					}
				}
			}
			mask.SetAlpha(px, py, color.Alpha{A: uint8(hits * 255 / total)})
		}
	}
	return mask
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// withDPI injects a pHYs chunk right after IHDR so the PNG carries its
// physical resolution. The stdlib encoder never writes one.
func withDPI(data []byte, dpi int) ([]byte, error) {
	// 8-byte signature + 25-byte IHDR chunk.
	const insertAt = 33
	if len(data) < insertAt || !bytes.Equal(data[:8], pngSignature) || !bytes.Equal(data[12:16], []byte("IHDR")) {
		return nil, errors.New("docgen: unexpected png layout")
	}

	ppm := uint32(math.Round(float64(dpi) / 0.0254)) // pixels per metre

	chunk := make([]byte, 21)
	binary.BigEndian.PutUint32(chunk[0:4], 9)
	copy(chunk[4:8], "pHYs")
	binary.BigEndian.PutUint32(chunk[8:12], ppm)
	binary.BigEndian.PutUint32(chunk[12:16], ppm)
	chunk[16] = 1 // unit: metre
	binary.BigEndian.PutUint32(chunk[17:21], crc32.ChecksumIEEE(chunk[4:17]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:insertAt]...)
	out = append(out, chunk...)
	out = append(out, data[insertAt:]...)
	return out, nil
}
