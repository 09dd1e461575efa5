package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"samaj/internal/api/middleware"
	"samaj/internal/database"
	"samaj/internal/docgen"
	"samaj/internal/documents"
	"samaj/internal/tasks"
)

// DocumentHandler 按需渲染会员证件与信函。
// 文档不落库：每次请求都基于当前会员数据重新生成。
type DocumentHandler struct {
	db          *gorm.DB
	generator   *documents.Generator
	asynqClient *asynq.Client
	logger      *slog.Logger
}

func NewDocumentHandler(db *gorm.DB, generator *documents.Generator, asynqClient *asynq.Client, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		db:          db,
		generator:   generator,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

type generateDocumentRequest struct {
	MemberID uint   `json:"member_id"`
	DocType  string `json:"doc_type" binding:"required"`
	// Email 为 true 时不直接返回文件，而是投递邮件任务。
	Email bool `json:"email"`
}

// Generate 渲染文档并以附件形式下载，或转投邮件队列。
func (h *DocumentHandler) Generate(c *gin.Context) {
	var req generateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	callerID, ok := memberIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	// 非工作人员只能为自己生成文档。
	targetID := req.MemberID
	if targetID == 0 {
		targetID = callerID
	}
	if targetID != callerID && !c.GetBool("isStaff") {
		Forbidden(c, "cannot generate documents for other members")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(
		slog.Uint64("member_id", uint64(targetID)),
		slog.String("doc_type", req.DocType),
	)

	var member database.Member
	if err := h.db.WithContext(ctx).First(&member, targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "member not found")
			return
		}
		logger.Error("load member failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if req.Email {
		task, err := tasks.NewDocumentEmailTask(tasks.DocumentEmailPayload{
			MemberID:      member.ID,
			DocType:       req.DocType,
			Subject:       "Your membership document",
			Body:          "Please find your requested document attached.",
			CorrelationID: middleware.GetCorrelationID(c),
		})
		if err == nil {
			_, err = h.asynqClient.EnqueueContext(ctx, task)
		}
		if err != nil {
			logger.Error("enqueue document email failed", slog.Any("error", err))
			Internal(c, "could not generate document")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	data, filename, err := h.generator.Generate(ctx, &member, req.DocType)
	if err != nil {
		switch {
		case errors.Is(err, documents.ErrUnknownDocType):
			BadRequest(c, "unknown document type")
		case errors.Is(err, docgen.ErrImageDecode):
			logger.Error("member photo undecodable", slog.Any("error", err))
			Internal(c, "could not generate document")
		default:
			logger.Error("render document failed", slog.Any("error", err))
			Internal(c, "could not generate document")
		}
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
