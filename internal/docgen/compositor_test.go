package docgen

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/phpdave11/gofpdi"
)

// testTemplate builds an n-page PDF of the given point size, each page
// carrying a bit of text so the importer has content to carry over.
func testTemplate(t *testing.T, pages int, w, h float64) []byte {
	t.Helper()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.Text(40, 40, "page body")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("build template: %v", err)
	}
	return buf.Bytes()
}

// inspectPDF re-opens a rendered document with the importer and reports its
// page count and first-page size.
func inspectPDF(t *testing.T, doc []byte) (pages int, w, h float64) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("output not parseable: %v", r)
		}
	}()
	imp := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(doc))
	imp.SetSourceStream(&rs)
	pages = imp.GetNumPages()
	box := imp.GetPageSizes()[1]["/MediaBox"]
	return pages, box["w"], box["h"]
}

func TestRenderPreservesTrailingPages(t *testing.T) {
	c := NewCompositor(300)
	tmpl := testTemplate(t, 3, 595, 842)
	layout := Layout{
		TextFields: []TextField{{Name: "name", X: 72, Y: 700, Size: 12}},
	}

	out, err := c.Render(tmpl, map[string]string{"name": "Asha Patel"}, layout, RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	pages, w, h := inspectPDF(t, out)
	if pages != 3 {
		t.Fatalf("pages = %d, want 3", pages)
	}
	if w != 595 || h != 842 {
		t.Fatalf("page size = %vx%v, want 595x842", w, h)
	}
}

func TestRenderScalingAdoptsTargetSize(t *testing.T) {
	c := NewCompositor(300)
	tmpl := testTemplate(t, 2, 595, 842)
	layout := Layout{
		Scaling:    &Scaling{Width: 153, Height: 243},
		TextFields: []TextField{{Name: "reg_no", X: 76, Y: 130, Size: 11, Align: AlignCenter}},
	}

	out, err := c.Render(tmpl, map[string]string{"reg_no": "R0000042"}, layout, RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	pages, w, h := inspectPDF(t, out)
	if pages != 2 {
		t.Fatalf("pages = %d, want 2", pages)
	}
	if w != 153 || h != 243 {
		t.Fatalf("page size = %vx%v, want 153x243", w, h)
	}
}

func TestRenderDuplicatesSinglePage(t *testing.T) {
	c := NewCompositor(300)
	tmpl := testTemplate(t, 1, 153, 243)
	layout := Layout{DuplicatePage: true}

	out, err := c.Render(tmpl, nil, layout, RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	pages, _, _ := inspectPDF(t, out)
	if pages != 2 {
		t.Fatalf("pages = %d, want duplicated back side", pages)
	}

	// The duplication contract only applies to single-page templates.
	tmpl2 := testTemplate(t, 2, 153, 243)
	out, err = c.Render(tmpl2, nil, layout, RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if pages, _, _ = inspectPDF(t, out); pages != 2 {
		t.Fatalf("pages = %d, want 2 (no duplication)", pages)
	}
}

func TestRenderSkipsMissingFields(t *testing.T) {
	c := NewCompositor(300)
	tmpl := testTemplate(t, 1, 595, 842)
	layout := Layout{
		TextFields: []TextField{
			{Name: "name", X: 72, Y: 700, Size: 12},
			{Name: "mob", X: 72, Y: 680, Size: 12},
		},
	}

	// Only one of the two fields supplied; the other is skipped, not an error.
	out, err := c.Render(tmpl, map[string]string{"name": "Asha Patel"}, layout, RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if pages, _, _ := inspectPDF(t, out); pages != 1 {
		t.Fatalf("pages = %d, want 1", pages)
	}
}

func TestRenderQRPayloadResolution(t *testing.T) {
	tmpl := testTemplate(t, 1, 153, 243)

	run := func(layout Layout, opts RenderOptions) int {
		c := NewCompositor(300)
		calls := 0
		c.qrFunc = func(data string, sizePx int) ([]byte, error) {
			calls++
			return QRPNG(data, sizePx)
		}
		if _, err := c.Render(tmpl, nil, layout, opts); err != nil {
			t.Fatalf("render: %v", err)
		}
		return calls
	}

	slot := &QRSlot{X: 93, Y: 155, Width: 37, Height: 37}

	// No payload from either source: the slot is silently skipped.
	if n := run(Layout{QR: slot}, RenderOptions{}); n != 0 {
		t.Fatalf("qr generated %d times without payload, want 0", n)
	}
	// Override present but no slot: nothing to draw.
	if n := run(Layout{}, RenderOptions{QRData: "https://samaj.example/v/1"}); n != 0 {
		t.Fatalf("qr generated %d times without slot, want 0", n)
	}
	// Override wins over the layout payload.
	layout := Layout{QR: &QRSlot{X: 93, Y: 155, Width: 37, Height: 37, Data: "layout-data"}}
	c := NewCompositor(300)
	var got string
	c.qrFunc = func(data string, sizePx int) ([]byte, error) {
		got = data
		return QRPNG(data, sizePx)
	}
	if _, err := c.Render(tmpl, nil, layout, RenderOptions{QRData: "override-data"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "override-data" {
		t.Fatalf("qr payload = %q, want override", got)
	}
	// Layout payload used when no override arrives.
	if n := run(layout, RenderOptions{}); n != 1 {
		t.Fatalf("qr generated %d times with layout payload, want 1", n)
	}
}

func TestRenderQRNonSquareSlotUsesShortSide(t *testing.T) {
	tmpl := testTemplate(t, 1, 153, 243)

	render := func(slot *QRSlot) int {
		c := NewCompositor(72)
		var sizePx int
		c.qrFunc = func(data string, size int) ([]byte, error) {
			sizePx = size
			return QRPNG(data, size)
		}
		layout := Layout{QR: slot}
		if _, err := c.Render(tmpl, nil, layout, RenderOptions{QRData: "https://samaj.example/v/1"}); err != nil {
			t.Fatalf("render: %v", err)
		}
		return sizePx
	}

	// 非正方形槽位取短边，符号不拉伸。
	if got := render(&QRSlot{X: 10, Y: 100, Width: 40, Height: 20}); got != 20 {
		t.Fatalf("wide slot raster = %dpx, want 20", got)
	}
	if got := render(&QRSlot{X: 10, Y: 100, Width: 20, Height: 40}); got != 20 {
		t.Fatalf("tall slot raster = %dpx, want 20", got)
	}
	if got := render(&QRSlot{X: 10, Y: 100, Width: 30}); got != 30 {
		t.Fatalf("heightless slot raster = %dpx, want 30", got)
	}
}

func TestRenderPhotoSlot(t *testing.T) {
	tmpl := testTemplate(t, 1, 153, 243)
	layout := Layout{Image: &ImageSlot{X: 8, Y: 123, Width: 63, Height: 69, Shape: ShapeSoftRound, CornerRadius: 10}}

	c := NewCompositor(300)
	calls := 0
	c.photoFunc = func(src []byte, opts PhotoOptions) ([]byte, error) {
		calls++
		return MaskPhoto(src, opts)
	}

	// Nil photo skips the slot without touching the generator.
	if _, err := c.Render(tmpl, nil, layout, RenderOptions{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if calls != 0 {
		t.Fatalf("photo generator ran %d times for nil photo, want 0", calls)
	}

	photo := testJPEG(t, 80, 90)
	out, err := c.Render(tmpl, nil, layout, RenderOptions{Photo: photo})
	if err != nil {
		t.Fatalf("render with photo: %v", err)
	}
	if calls != 1 {
		t.Fatalf("photo generator ran %d times, want 1", calls)
	}
	if pages, _, _ := inspectPDF(t, out); pages != 1 {
		t.Fatalf("pages = %d, want 1", pages)
	}

	// A broken photo surfaces as ErrImageDecode.
	if _, err := c.Render(tmpl, nil, layout, RenderOptions{Photo: []byte("nope")}); !errors.Is(err, ErrImageDecode) {
		t.Fatalf("err = %v, want ErrImageDecode", err)
	}
}

func TestRenderBarcodeFailureAborts(t *testing.T) {
	tmpl := testTemplate(t, 1, 595, 842)
	layout := Layout{Barcode: &BarcodeSlot{X: 72, Y: 72, Width: 200, Height: 40}}

	c := NewCompositor(300)
	_, err := c.Render(tmpl, nil, layout, RenderOptions{BarcodeData: "héllo"})
	if !errors.Is(err, ErrUnencodable) {
		t.Fatalf("err = %v, want ErrUnencodable", err)
	}

	// Empty payload skips the slot.
	if _, err := c.Render(tmpl, nil, layout, RenderOptions{}); err != nil {
		t.Fatalf("render without payload: %v", err)
	}
}

func TestRenderRejectsBadTemplate(t *testing.T) {
	c := NewCompositor(300)
	_, err := c.Render([]byte("%PDF-garbage"), nil, Layout{}, RenderOptions{})
	if !errors.Is(err, ErrTemplateRead) {
		t.Fatalf("err = %v, want ErrTemplateRead", err)
	}
}

func TestFitTextSizeShrinksToWidth(t *testing.T) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 595, Ht: 842}})
	pdf.SetFont("Helvetica", "B", 11)
	pdf.AddPage()

	long := "SHRI AKHIL BHARATIYA SAMAJ SANGATHAN TRUST"
	fitted, width := fitTextSize(pdf, long, 11, 120)
	if fitted >= 11 {
		t.Fatalf("fitted size = %v, want < 11", fitted)
	}
	if width > 120.5 {
		t.Fatalf("fitted width = %v, want <= max width", width)
	}

	pdf.SetFont("Helvetica", "B", 11)
	fitted, _ = fitTextSize(pdf, "R42", 11, 120)
	if fitted != 11 {
		t.Fatalf("short value resized to %v, want unchanged", fitted)
	}
}

func TestAnchorX(t *testing.T) {
	if got := anchorX(110, 40, AlignCenter); got != 90 {
		t.Fatalf("center anchor = %v, want 90", got)
	}
	if got := anchorX(110, 40, AlignRight); got != 70 {
		t.Fatalf("right anchor = %v, want 70", got)
	}
	if got := anchorX(110, 40, AlignLeft); got != 110 {
		t.Fatalf("left anchor = %v, want 110", got)
	}
}

func TestSplitFontSpec(t *testing.T) {
	cases := []struct {
		in     string
		family string
		style  string
	}{
		{"Helvetica", "Helvetica", ""},
		{"Helvetica-Bold", "Helvetica", "B"},
		{"Helvetica-Oblique", "Helvetica", "I"},
		{"Helvetica-BoldOblique", "Helvetica", "BI"},
		{"Times-Italic", "Times", "I"},
		{"", "Helvetica", ""},
	}
	for _, tc := range cases {
		family, style := splitFontSpec(tc.in)
		if family != tc.family || style != tc.style {
			t.Fatalf("splitFontSpec(%q) = (%q, %q), want (%q, %q)", tc.in, family, style, tc.family, tc.style)
		}
	}
}

func TestLayoutForDocType(t *testing.T) {
	for _, dt := range []string{DocIDCard, DocCertificate, DocWelcomeLetter} {
		layout, ok := LayoutForDocType(dt)
		if !ok {
			t.Fatalf("no layout for %q", dt)
		}
		if err := layout.Validate(); err != nil {
			t.Fatalf("preset %q invalid: %v", dt, err)
		}
	}
	if _, ok := LayoutForDocType("poster"); ok {
		t.Fatal("unknown doc type should not resolve")
	}
}
