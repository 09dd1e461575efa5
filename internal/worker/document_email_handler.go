package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"samaj/internal/database"
	"samaj/internal/documents"
	"samaj/internal/errcode"
	"samaj/internal/mailer"
	"samaj/internal/storage"
	"samaj/internal/tasks"
)

// DocumentEmailHandler 负责消费文档邮件任务：
// 渲染 PDF、作为附件发出邮件，并把结果广播给在线客户端。
type DocumentEmailHandler struct {
	db          *gorm.DB
	generator   *documents.Generator
	mailer      *mailer.Mailer
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewDocumentEmailHandler 创建任务处理器。
func NewDocumentEmailHandler(
	db *gorm.DB,
	generator *documents.Generator,
	m *mailer.Mailer,
	redisClient *redis.Client,
	logger *slog.Logger,
) *DocumentEmailHandler {
	return &DocumentEmailHandler{
		db:          db,
		generator:   generator,
		mailer:      m,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *DocumentEmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.DocumentEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("member_id", uint64(payload.MemberID)),
		slog.String("doc_type", payload.DocType),
	)
	log.Info("Starting document email task...")

	var member database.Member
	if err := h.db.WithContext(ctx).First(&member, payload.MemberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("member not found, skipping task")
			return nil
		}
		log.Error("query member failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		notify := errorNotify(member.ID, payload, retErr)
		if err := h.publishNotify(ctx, member.ID, notify); err != nil {
			log.Error("publish document email error notification failed", slog.Any("error", err))
		}
	}()

	// 文档类型错误属于请求缺陷，重试不会成功，直接丢弃任务。
	pdfBytes, filename, err := h.generator.Generate(ctx, &member, payload.DocType)
	if err != nil {
		if errors.Is(err, documents.ErrUnknownDocType) {
			log.Warn("unknown doc type, skipping task")
			return nil
		}
		log.Error("generate document failed", slog.Any("error", err))
		return err
	}

	attachment := mailer.Attachment{
		Filename:    filename,
		ContentType: "application/pdf",
		Data:        pdfBytes,
	}
	if err := h.mailer.Send(member.Email, payload.Subject, payload.Body, attachment); err != nil {
		log.Error("send document email failed", slog.Any("error", err))
		return err
	}

	notify := DocumentEmailNotifyMessage{
		Status:        "completed",
		MemberID:      member.ID,
		DocType:       payload.DocType,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := h.publishNotify(ctx, member.ID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("Document email task completed successfully.")
	return nil
}

// errorNotify 把任务失败折叠成可下发的通知。错误码决定文案，
// 原始错误细节只进日志，不进通知。
func errorNotify(memberID uint, payload tasks.DocumentEmailPayload, err error) DocumentEmailNotifyMessage {
	code := errcode.SystemError
	if storage.IsNoSuchKey(err) {
		code = errcode.ResourceMissing
	}
	return DocumentEmailNotifyMessage{
		Status:        "error",
		MemberID:      memberID,
		DocType:       payload.DocType,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     code,
		ErrorMessage:  errcode.Message(code),
	}
}

func (h *DocumentEmailHandler) publishNotify(ctx context.Context, memberID uint, notify DocumentEmailNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", memberID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
