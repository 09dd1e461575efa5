package docgen

import (
	"errors"
	"testing"
)

func TestQRPNGSize(t *testing.T) {
	out, err := QRPNG("https://samaj.example/idcard-verify/abc123", 154)
	if err != nil {
		t.Fatalf("qr encode: %v", err)
	}
	img := decodePNG(t, out)
	b := img.Bounds()
	if b.Dx() != 154 || b.Dy() != 154 {
		t.Fatalf("qr size = %dx%d, want 154x154", b.Dx(), b.Dy())
	}
}

func TestQRPNGEmptyPayload(t *testing.T) {
	if _, err := QRPNG("", 100); err == nil {
		t.Fatal("empty payload should not encode")
	}
}

func TestBarcodePNGSize(t *testing.T) {
	out, err := BarcodePNG("R0000042", 400, 80)
	if err != nil {
		t.Fatalf("barcode encode: %v", err)
	}
	img := decodePNG(t, out)
	b := img.Bounds()
	if b.Dx() != 400 || b.Dy() != 80 {
		t.Fatalf("barcode size = %dx%d, want 400x80", b.Dx(), b.Dy())
	}
}

func TestBarcodePNGUnencodable(t *testing.T) {
	_, err := BarcodePNG("héllo", 400, 80)
	if !errors.Is(err, ErrUnencodable) {
		t.Fatalf("err = %v, want ErrUnencodable", err)
	}
}
