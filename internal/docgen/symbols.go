package docgen

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	qrcode "github.com/skip2/go-qrcode"
)

// ErrUnencodable marks a barcode payload containing characters outside the
// Code128 character set.
var ErrUnencodable = errors.New("docgen: unencodable barcode data")

// QRPNG encodes data verbatim into a QR symbol of sizePx×sizePx pixels.
// Error correction and border follow library defaults; callers decide what
// to do about empty payloads before calling.
func QRPNG(data string, sizePx int) ([]byte, error) {
	out, err := qrcode.Encode(data, qrcode.Medium, sizePx)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return out, nil
}

// BarcodePNG encodes data as a Code128 symbol scaled to the given pixel box.
func BarcodePNG(data string, widthPx, heightPx int) ([]byte, error) {
	code, err := code128.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}
	scaled, err := barcode.Scale(code, widthPx, heightPx)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode barcode png: %w", err)
	}
	return buf.Bytes(), nil
}
