package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"samaj/internal/database"
	"samaj/internal/storage"
)

// PhotoHandler 负责会员照片的上传与访问。
// 上传的照片只存对象键，证件渲染时按需拉取并裁切。
type PhotoHandler struct {
	db        *gorm.DB
	Storage   *storage.Client
	Logger    *slog.Logger
	ClamdAddr string
}

// NewPhotoHandler 返回 PhotoHandler 实例。
func NewPhotoHandler(db *gorm.DB, storageClient *storage.Client, logger *slog.Logger, clamdAddr string) *PhotoHandler {
	return &PhotoHandler{
		db:        db,
		Storage:   storageClient,
		Logger:    logger,
		ClamdAddr: clamdAddr,
	}
}

// Upload 处理受保护的照片上传，并在上传前扫描病毒。
func (h *PhotoHandler) Upload(c *gin.Context) {
	memberID, ok := memberIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}

	fileReader, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		return
	}

	// clamd 未配置时跳过扫描（开发环境）。
	if h.ClamdAddr != "" {
		clamdClient := clamd.NewClamd(h.ClamdAddr)

		abortChan := make(chan bool)
		scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
		fileReader.Close()
		if err != nil {
			h.Logger.Error("scan file", slog.String("error", err.Error()))
			Internal(c, "failed to scan file")
			return
		}
		defer close(abortChan)

		for result := range scanChan {
			if result.Status != clamd.RES_OK {
				BadRequest(c, "malicious file detected")
				return
			}
		}

		fileReader, err = file.Open()
		if err != nil {
			Internal(c, "failed to reopen file")
			return
		}
	}
	defer fileReader.Close()

	objectKey := fmt.Sprintf("member-photos/%d/%s", memberID, uuid.NewString())
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx := c.Request.Context()
	if _, err := h.Storage.UploadFile(ctx, objectKey, fileReader, file.Size, contentType); err != nil {
		h.Logger.Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	var member database.Member
	if err := h.db.WithContext(ctx).First(&member, memberID).Error; err != nil {
		h.Logger.Error("load member", slog.String("error", err.Error()))
		Internal(c, "failed to update member")
		return
	}
	oldKey := member.PhotoObjectKey

	if err := h.db.WithContext(ctx).Model(&member).
		Update("photo_object_key", objectKey).Error; err != nil {
		h.Logger.Error("update member photo", slog.String("error", err.Error()))
		Internal(c, "failed to update member")
		return
	}

	// 旧照片异步清理失败不影响请求结果。
	if oldKey != "" {
		if err := h.Storage.DeleteObject(ctx, oldKey); err != nil {
			h.Logger.Warn("delete old photo failed",
				slog.String("object_key", oldKey),
				slog.Any("error", err),
			)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

// GetURL 返回本人照片的临时预签名 URL。
func (h *PhotoHandler) GetURL(c *gin.Context) {
	memberID, ok := memberIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var member database.Member
	if err := h.db.WithContext(c.Request.Context()).First(&member, memberID).Error; err != nil {
		NotFound(c, "member not found")
		return
	}
	if member.PhotoObjectKey == "" {
		NotFound(c, "no photo uploaded")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), member.PhotoObjectKey, 15*time.Minute)
	if err != nil {
		h.Logger.Error("generate presigned url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}
