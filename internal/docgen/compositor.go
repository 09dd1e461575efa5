package docgen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/phpdave11/gofpdi"
)

var (
	// ErrTemplateRead marks a template that could not be parsed.
	ErrTemplateRead = errors.New("docgen: unreadable template")
	// ErrFieldRender marks a failure while drawing overlay content.
	ErrFieldRender = errors.New("docgen: field render failed")
)

// RenderOptions carries per-call inputs that are merged with the layout
// without mutating it.
type RenderOptions struct {
	// Photo is the raw member photo; nil skips the image slot silently.
	Photo []byte
	// QRData overrides the layout's QR payload when non-empty.
	QRData string
	// BarcodeData fills the barcode slot; empty skips the slot.
	BarcodeData string
}

// Compositor renders text, photos and code symbols onto paged PDF
// templates. It is stateless and safe for concurrent use.
type Compositor struct {
	// DPI is the raster resolution used for photos and code symbols.
	DPI int

	// Generator hooks, swappable in tests.
	qrFunc      func(data string, sizePx int) ([]byte, error)
	barcodeFunc func(data string, widthPx, heightPx int) ([]byte, error)
	photoFunc   func(src []byte, opts PhotoOptions) ([]byte, error)
}

// NewCompositor 构造使用默认生成器的渲染器。
func NewCompositor(dpi int) *Compositor {
	if dpi <= 0 {
		dpi = 300
	}
	return &Compositor{
		DPI:         dpi,
		qrFunc:      QRPNG,
		barcodeFunc: BarcodePNG,
		photoFunc:   MaskPhoto,
	}
}

// Render overlays fields onto the template's first page and preserves every
// remaining page. The returned buffer is a complete document; on error
// nothing is returned.
//
// Page geometry: layout coordinates are PDF points with Y measured from the
// bottom of the page (print convention); the overlay flips them internally.
func (c *Compositor) Render(template []byte, fields map[string]string, layout Layout, opts RenderOptions) ([]byte, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	doc, err := openTemplate(template)
	if err != nil {
		return nil, err
	}

	canvasW, canvasH, err := doc.pageSize(1)
	if err != nil {
		return nil, err
	}
	if layout.Scaling != nil {
		canvasW = layout.Scaling.Width
		canvasH = layout.Scaling.Height
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: canvasW, Ht: canvasH},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)

	// Page 1: template under the overlay, so the background stays visible.
	pdf.AddPage()
	if err := doc.place(pdf, 1, canvasW, canvasH); err != nil {
		return nil, err
	}

	c.drawTextFields(pdf, fields, layout, canvasH)

	if opts.Photo != nil && layout.Image != nil {
		if err := c.drawPhoto(pdf, opts.Photo, *layout.Image, canvasH); err != nil {
			return nil, err
		}
	}

	if layout.QR != nil {
		payload := opts.QRData
		if payload == "" {
			payload = layout.QR.Data
		}
		// 未解析出内容时静默跳过，不算错误。
		if payload != "" {
			if err := c.drawQR(pdf, payload, *layout.QR, canvasH); err != nil {
				return nil, err
			}
		}
	}

	if layout.Barcode != nil && opts.BarcodeData != "" {
		if err := c.drawBarcode(pdf, opts.BarcodeData, *layout.Barcode, canvasH); err != nil {
			return nil, err
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFieldRender, err)
	}

	// Pages 2..N survive unchanged (rescaled when the layout asks for it).
	for pageno := 2; pageno <= doc.pages; pageno++ {
		pw, ph := canvasW, canvasH
		if layout.Scaling == nil {
			if pw, ph, err = doc.pageSize(pageno); err != nil {
				return nil, err
			}
		}
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: pw, Ht: ph})
		if err := doc.place(pdf, pageno, pw, ph); err != nil {
			return nil, err
		}
	}

	// Legacy two-sided card contract: a single-page template gets its page
	// repeated as the back side.
	if doc.pages == 1 && layout.DuplicatePage {
		pdf.AddPage()
		if err := doc.place(pdf, 1, canvasW, canvasH); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Compositor) drawTextFields(pdf *gofpdf.Fpdf, fields map[string]string, layout Layout, canvasH float64) {
	for _, f := range layout.TextFields {
		value, ok := fields[f.Name]
		if !ok {
			continue
		}

		family, style := splitFontSpec(f.Font)
		size := f.Size
		pdf.SetFont(family, style, size)
		r, g, b := colorRGB(f.Color)
		pdf.SetTextColor(r, g, b)

		_, width := fitTextSize(pdf, value, size, f.MaxWidth)
		pdf.Text(anchorX(f.X, width, f.Align), canvasH-f.Y, value)
	}
}

func (c *Compositor) drawPhoto(pdf *gofpdf.Fpdf, photo []byte, slot ImageSlot, canvasH float64) error {
	masked, err := c.photoFunc(photo, PhotoOptions{
		WidthPt:        slot.Width,
		HeightPt:       slot.Height,
		DPI:            c.DPI,
		Shape:          slot.Shape,
		CornerRadiusPt: slot.CornerRadius,
		Sharpen:        true,
	})
	if err != nil {
		return err
	}
	placePNG(pdf, masked, "member_photo", slot.X, slot.Y, slot.Width, slot.Height, canvasH)
	return nil
}

func (c *Compositor) drawQR(pdf *gofpdf.Fpdf, payload string, slot QRSlot, canvasH float64) error {
	// QR 符号是正方形，非正方形槽位取短边，不拉伸。
	side := slot.Width
	if slot.Height > 0 && slot.Height < side {
		side = slot.Height
	}
	sizePx := int(math.Round(side * float64(c.DPI) / 72))
	data, err := c.qrFunc(payload, sizePx)
	if err != nil {
		return fmt.Errorf("generate qr: %w", err)
	}
	placePNG(pdf, data, "qr_symbol", slot.X, slot.Y, side, side, canvasH)
	return nil
}

func (c *Compositor) drawBarcode(pdf *gofpdf.Fpdf, payload string, slot BarcodeSlot, canvasH float64) error {
	wPx := int(math.Round(slot.Width * float64(c.DPI) / 72))
	hPx := int(math.Round(slot.Height * float64(c.DPI) / 72))
	data, err := c.barcodeFunc(payload, wPx, hPx)
	if err != nil {
		return err
	}
	placePNG(pdf, data, "barcode_symbol", slot.X, slot.Y, slot.Width, slot.Height, canvasH)
	return nil
}

// placePNG registers the raster under a stable name and draws it with alpha
// compositing, so transparent mask regions never occlude the template.
func placePNG(pdf *gofpdf.Fpdf, data []byte, name string, x, y, w, h, canvasH float64) {
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	pdf.ImageOptions(name, x, canvasH-y-h, w, h, false, opts, 0, "")
}

// templateDoc wraps a parsed template. gofpdi reports failures by panicking,
// so every entry point recovers into ErrTemplateRead.
type templateDoc struct {
	imp   *gofpdi.Importer
	pages int
	sizes map[int]map[string]map[string]float64
}

func openTemplate(template []byte) (doc *templateDoc, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %v", ErrTemplateRead, r)
		}
	}()

	imp := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(template))
	imp.SetSourceStream(&rs)

	pages := imp.GetNumPages()
	if pages < 1 {
		return nil, fmt.Errorf("%w: template has no pages", ErrTemplateRead)
	}
	return &templateDoc{imp: imp, pages: pages, sizes: imp.GetPageSizes()}, nil
}

func (t *templateDoc) pageSize(pageno int) (w, h float64, err error) {
	box, ok := t.sizes[pageno]["/MediaBox"]
	if !ok {
		return 0, 0, fmt.Errorf("%w: page %d has no media box", ErrTemplateRead, pageno)
	}
	return box["w"], box["h"], nil
}

// place imports the template page and draws it stretched to w×h at the
// current page's origin.
func (t *templateDoc) place(pdf *gofpdf.Fpdf, pageno int, w, h float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTemplateRead, r)
		}
	}()

	tpl := t.imp.ImportPage(pageno, "/MediaBox")
	pdf.ImportTemplates(t.imp.PutFormXobjectsUnordered())
	pdf.ImportObjects(t.imp.GetImportedObjectsUnordered())
	pdf.ImportObjPos(t.imp.GetImportedObjHashPos())
	name, scaleX, scaleY, tX, tY := t.imp.UseTemplate(tpl, 0, 0, w, h)
	pdf.UseImportedTemplate(name, scaleX, scaleY, tX, tY)
	return nil
}

// fitTextSize measures value in the pdf's current font and, when maxWidth
// is set and exceeded, shrinks the font size proportionally. A single pass,
// not iterative convergence: pathological metrics may still overflow by a
// rounding hair.
func fitTextSize(pdf *gofpdf.Fpdf, value string, size, maxWidth float64) (fitted, width float64) {
	width = pdf.GetStringWidth(value)
	fitted = size
	if maxWidth > 0 && width > maxWidth {
		fitted = size * maxWidth / width
		pdf.SetFontSize(fitted)
		width = pdf.GetStringWidth(value)
	}
	return fitted, width
}

// anchorX converts the layout X into the left edge of the glyph run.
func anchorX(x, width float64, align Alignment) float64 {
	switch align {
	case AlignCenter:
		return x - width/2
	case AlignRight:
		return x - width
	default:
		return x
	}
}

// splitFontSpec maps PostScript font names ("Helvetica-Bold") onto gofpdf
// core font family and style strings.
func splitFontSpec(font string) (family, style string) {
	if font == "" {
		return "Helvetica", ""
	}
	family = font
	if idx := strings.IndexByte(font, '-'); idx >= 0 {
		family = font[:idx]
		switch strings.ToLower(font[idx+1:]) {
		case "bold":
			style = "B"
		case "oblique", "italic":
			style = "I"
		case "boldoblique", "bolditalic":
			style = "BI"
		}
	}
	return family, style
}

func colorRGB(name string) (r, g, b int) {
	if strings.EqualFold(name, "white") {
		return 255, 255, 255
	}
	return 0, 0, 0
}
