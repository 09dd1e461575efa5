package docgen

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func TestMaskPhotoDimensions(t *testing.T) {
	src := testJPEG(t, 120, 90)

	cases := []struct {
		wPt, hPt float64
		dpi      int
		wantW    int
		wantH    int
	}{
		{63, 69, 300, 263, 288}, // 63*300/72=262.5, 69*300/72=287.5
		{100, 50, 72, 100, 50},
		{80, 80, 150, 167, 167},
	}
	for _, tc := range cases {
		out, err := MaskPhoto(src, PhotoOptions{WidthPt: tc.wPt, HeightPt: tc.hPt, DPI: tc.dpi, Shape: ShapeRound, Sharpen: true})
		if err != nil {
			t.Fatalf("mask photo: %v", err)
		}
		img := decodePNG(t, out)
		b := img.Bounds()
		if b.Dx() != tc.wantW || b.Dy() != tc.wantH {
			t.Fatalf("size (%v,%v)@%d: got %dx%d want %dx%d", tc.wPt, tc.hPt, tc.dpi, b.Dx(), b.Dy(), tc.wantW, tc.wantH)
		}
	}
}

func TestMaskPhotoRoundTransparentCorners(t *testing.T) {
	src := testJPEG(t, 100, 100)
	out, err := MaskPhoto(src, PhotoOptions{WidthPt: 60, HeightPt: 60, DPI: 72, Shape: ShapeRound, Sharpen: false})
	if err != nil {
		t.Fatalf("mask photo: %v", err)
	}
	img := decodePNG(t, out)
	b := img.Bounds()

	_, _, _, corner := img.At(b.Min.X, b.Min.Y).RGBA()
	if corner != 0 {
		t.Fatalf("corner pixel should be fully transparent, alpha=%d", corner)
	}
	_, _, _, center := img.At(b.Dx()/2, b.Dy()/2).RGBA()
	if center != 0xffff {
		t.Fatalf("center pixel should be fully opaque, alpha=%d", center)
	}
}

func TestMaskPhotoSoftRoundKeepsEdgeMidpoints(t *testing.T) {
	src := testJPEG(t, 100, 100)
	out, err := MaskPhoto(src, PhotoOptions{WidthPt: 63, HeightPt: 69, DPI: 72, Shape: ShapeSoftRound, CornerRadiusPt: 10, Sharpen: false})
	if err != nil {
		t.Fatalf("mask photo: %v", err)
	}
	img := decodePNG(t, out)
	b := img.Bounds()

	_, _, _, corner := img.At(b.Min.X, b.Min.Y).RGBA()
	if corner != 0 {
		t.Fatalf("corner pixel should be transparent, alpha=%d", corner)
	}
	_, _, _, edge := img.At(b.Min.X, b.Dy()/2).RGBA()
	if edge == 0 {
		t.Fatalf("mid-edge pixel should not be masked away")
	}
}

func TestMaskPhotoEmbedsDPI(t *testing.T) {
	src := testJPEG(t, 50, 50)
	out, err := MaskPhoto(src, PhotoOptions{WidthPt: 40, HeightPt: 40, DPI: 300, Shape: ShapeNone})
	if err != nil {
		t.Fatalf("mask photo: %v", err)
	}

	idx := bytes.Index(out, []byte("pHYs"))
	if idx < 0 {
		t.Fatalf("output has no pHYs chunk")
	}
	ppm := binary.BigEndian.Uint32(out[idx+4 : idx+8])
	if ppm != 11811 { // round(300 / 0.0254)
		t.Fatalf("pixels per metre = %d, want 11811", ppm)
	}
	if out[idx+12] != 1 {
		t.Fatalf("pHYs unit = %d, want metre", out[idx+12])
	}

	// The chunk must not corrupt the stream.
	decodePNG(t, out)
}

func TestMaskPhotoRejectsGarbage(t *testing.T) {
	_, err := MaskPhoto([]byte("definitely not an image"), PhotoOptions{WidthPt: 10, HeightPt: 10, DPI: 72})
	if !errors.Is(err, ErrImageDecode) {
		t.Fatalf("err = %v, want ErrImageDecode", err)
	}
}
