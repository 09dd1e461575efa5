package docgen

// Document type identifiers accepted by the generate endpoint and the
// email worker.
const (
	DocIDCard        = "id_card"
	DocCertificate   = "certificate"
	DocWelcomeLetter = "welcome_letter"
)

// IDCardLayout 返回会员证的布局。每次调用返回一个新副本，
// 避免共享布局被并发渲染污染。
func IDCardLayout() Layout {
	return Layout{
		Scaling: &Scaling{Width: 153, Height: 243},
		TextFields: []TextField{
			{Name: "reg_no", X: 110, Y: 130, Font: "Helvetica-Bold", Size: 11, Align: AlignCenter, MaxWidth: 120},
			{Name: "name", X: 50, Y: 110, Size: 8, MaxWidth: 200},
			{Name: "in", X: 50, Y: 100, Size: 8, MaxWidth: 200},
			{Name: "mob", X: 50, Y: 88, Size: 8, MaxWidth: 200},
			{Name: "date", X: 50, Y: 77, Size: 8, MaxWidth: 200},
			{Name: "block", X: 50, Y: 65, Size: 8, MaxWidth: 200},
			{Name: "district", X: 50, Y: 55, Size: 8, MaxWidth: 200},
			{Name: "state", X: 50, Y: 44, Size: 8, MaxWidth: 200},
		},
		Image:         &ImageSlot{X: 8, Y: 123, Width: 63, Height: 69, Shape: ShapeSoftRound, CornerRadius: 10},
		QR:            &QRSlot{X: 93, Y: 155, Width: 37, Height: 37},
		DuplicatePage: true,
	}
}

// CertificateLayout 返回会员证书（A4 横版模板）的布局。
func CertificateLayout() Layout {
	return Layout{
		TextFields: []TextField{
			{Name: "name", X: 300, Y: 400, Font: "Helvetica-Bold", Size: 18},
			{Name: "reg_no", X: 280, Y: 370, Size: 14},
			{Name: "reg_date", X: 280, Y: 340, Size: 12},
			{Name: "valid_till", X: 280, Y: 310, Size: 12},
		},
		Image: &ImageSlot{X: 450, Y: 420, Width: 80, Height: 80, Shape: ShapeRound},
		QR:    &QRSlot{X: 500, Y: 100, Width: 60, Height: 60},
	}
}

// WelcomeLetterLayout 返回欢迎信的布局。信纸正文在模板里，
// 这里只叠加称呼与注册信息。
func WelcomeLetterLayout() Layout {
	return Layout{
		TextFields: []TextField{
			{Name: "name", X: 72, Y: 640, Font: "Helvetica-Bold", Size: 12, MaxWidth: 300},
			{Name: "reg_no", X: 72, Y: 620, Size: 11},
			{Name: "date", X: 470, Y: 700, Size: 10, Align: AlignRight},
		},
	}
}

// LayoutForDocType maps a document type to its preset layout.
func LayoutForDocType(docType string) (Layout, bool) {
	switch docType {
	case DocIDCard:
		return IDCardLayout(), true
	case DocCertificate:
		return CertificateLayout(), true
	case DocWelcomeLetter:
		return WelcomeLetterLayout(), true
	default:
		return Layout{}, false
	}
}
