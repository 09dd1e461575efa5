package docgen

import (
	"errors"
	"fmt"
)

// Alignment anchors a text field at its X coordinate.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Shape selects the mask applied to a placed photo.
type Shape string

const (
	ShapeNone      Shape = "none"
	ShapeRound     Shape = "round"
	ShapeSoftRound Shape = "soft_round"
)

// Scaling rescales every template page to a target size before composition.
type Scaling struct {
	Width  float64
	Height float64
}

// TextField positions a single named value on the page.
// Coordinates are PDF points; Y is measured from the bottom edge of the page.
type TextField struct {
	Name  string
	X     float64
	Y     float64
	Font  string // e.g. "Helvetica", "Helvetica-Bold"; empty means Helvetica
	Size  float64
	Align Alignment // empty means left
	// MaxWidth, when positive, shrinks the font so the rendered string fits.
	MaxWidth float64
	Color    string // "black" (default) or "white"
}

// ImageSlot positions the member photo. X/Y address the lower-left corner.
type ImageSlot struct {
	X            float64
	Y            float64
	Width        float64
	Height       float64
	Shape        Shape
	CornerRadius float64 // only used with ShapeSoftRound
}

// QRSlot positions the QR symbol. Data may be baked into the layout or
// injected per render call; the render-time value wins.
type QRSlot struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
	Data   string
}

// BarcodeSlot positions a Code128 symbol. The payload always comes from the
// caller; a slot without a payload is skipped.
type BarcodeSlot struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Layout is a data-only description of where dynamic content lands on a
// document template. Values are immutable per render: callers pass overrides
// through RenderOptions instead of mutating a shared layout.
type Layout struct {
	Scaling    *Scaling
	TextFields []TextField
	Image      *ImageSlot
	QR         *QRSlot
	Barcode    *BarcodeSlot
	// DuplicatePage forces a second page mirroring page 1 when the template
	// has only one page (legacy two-sided card contract).
	DuplicatePage bool
}

// Validate checks structural sanity. Placement is deliberately not checked
// against page bounds: out-of-bounds coordinates are a caller error.
func (l Layout) Validate() error {
	if l.Scaling != nil && (l.Scaling.Width <= 0 || l.Scaling.Height <= 0) {
		return errors.New("layout: scaling dimensions must be positive")
	}
	for i, f := range l.TextFields {
		if f.Name == "" {
			return fmt.Errorf("layout: text field %d has no name", i)
		}
		if f.Size <= 0 {
			return fmt.Errorf("layout: text field %q has non-positive size", f.Name)
		}
		switch f.Align {
		case "", AlignLeft, AlignCenter, AlignRight:
		default:
			return fmt.Errorf("layout: text field %q has invalid alignment %q", f.Name, f.Align)
		}
		if f.MaxWidth < 0 {
			return fmt.Errorf("layout: text field %q has negative max width", f.Name)
		}
	}
	if l.Image != nil {
		if l.Image.Width <= 0 || l.Image.Height <= 0 {
			return errors.New("layout: image slot dimensions must be positive")
		}
		switch l.Image.Shape {
		case "", ShapeNone, ShapeRound, ShapeSoftRound:
		default:
			return fmt.Errorf("layout: image slot has invalid shape %q", l.Image.Shape)
		}
	}
	if l.QR != nil && (l.QR.Width <= 0 || l.QR.Height <= 0) {
		return errors.New("layout: qr slot dimensions must be positive")
	}
	if l.Barcode != nil && (l.Barcode.Width <= 0 || l.Barcode.Height <= 0) {
		return errors.New("layout: barcode slot dimensions must be positive")
	}
	return nil
}
