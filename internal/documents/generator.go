package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"samaj/internal/config"
	"samaj/internal/database"
	"samaj/internal/docgen"
	"samaj/internal/metrics"
	"samaj/internal/storage"
)

// ErrUnknownDocType 表示请求了未定义的文档类型。
var ErrUnknownDocType = errors.New("documents: unknown document type")

// Generator 负责把会员记录渲染成可下发的 PDF 文档。
// 模板存放在对象存储中，文档本身按需生成、不落库。
type Generator struct {
	storage         *storage.Client
	compositor      *docgen.Compositor
	cfg             config.DocgenConfig
	frontendBaseURL string
	logger          *slog.Logger
}

func NewGenerator(st *storage.Client, cfg config.DocgenConfig, frontendBaseURL string, logger *slog.Logger) *Generator {
	return &Generator{
		storage:         st,
		compositor:      docgen.NewCompositor(cfg.DPI),
		cfg:             cfg,
		frontendBaseURL: frontendBaseURL,
		logger:          logger,
	}
}

// Generate renders the requested document for the member and returns the PDF
// bytes with a download filename. Each call recomputes the document from the
// current record state.
func (g *Generator) Generate(ctx context.Context, member *database.Member, docType string) (data []byte, filename string, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDocumentRender(docType, start, err)
	}()

	layout, ok := docgen.LayoutForDocType(docType)
	if !ok {
		return nil, "", ErrUnknownDocType
	}

	key, ok := g.templateKey(docType)
	if !ok {
		return nil, "", ErrUnknownDocType
	}
	template, err := g.storage.ReadObject(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("load template %q: %w", key, err)
	}

	opts := docgen.RenderOptions{}
	if docType != docgen.DocWelcomeLetter {
		opts.QRData = fmt.Sprintf("%s/idcard-verify/%s", g.frontendBaseURL, member.UserID)
	}

	// 会员照片缺失时静默跳过图片槽位，不视为错误。
	if layout.Image != nil && member.PhotoObjectKey != "" {
		photo, perr := g.storage.ReadObject(ctx, member.PhotoObjectKey)
		if perr != nil {
			if storage.IsNoSuchKey(perr) {
				g.logger.Warn("member photo object missing, rendering without photo",
					slog.Uint64("member_id", uint64(member.ID)),
					slog.String("object_key", member.PhotoObjectKey),
				)
			} else {
				return nil, "", fmt.Errorf("load member photo: %w", perr)
			}
		} else {
			opts.Photo = photo
		}
	}

	data, err = g.compositor.Render(template, g.fields(member, docType), layout, opts)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("%s_%s.pdf", docType, member.UserID), nil
}

func (g *Generator) templateKey(docType string) (string, bool) {
	switch docType {
	case docgen.DocIDCard:
		return g.cfg.IDCardTemplateKey, true
	case docgen.DocCertificate:
		return g.cfg.CertificateTemplateKey, true
	case docgen.DocWelcomeLetter:
		return g.cfg.WelcomeTemplateKey, true
	default:
		return "", false
	}
}

// fields builds the overlay field map. Date formatting and concatenation
// happen here so the compositor only ever sees final strings.
func (g *Generator) fields(member *database.Member, docType string) map[string]string {
	joined := member.CreatedAt.Format("02-01-2006")
	switch docType {
	case docgen.DocIDCard:
		return map[string]string{
			"reg_no":   member.UserID,
			"name":     member.Name,
			"in":       member.Profession,
			"mob":      member.Phone,
			"date":     joined,
			"block":    member.SubDistrict,
			"district": member.District,
			"state":    member.State,
		}
	case docgen.DocCertificate:
		return map[string]string{
			"name":       member.Name,
			"reg_no":     member.UserID,
			"reg_date":   joined,
			"valid_till": member.CreatedAt.AddDate(5, 0, 0).Format("02-01-2006"),
		}
	case docgen.DocWelcomeLetter:
		return map[string]string{
			"name":   member.Name,
			"reg_no": member.UserID,
			"date":   time.Now().Format("02-01-2006"),
		}
	default:
		return nil
	}
}
