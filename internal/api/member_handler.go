package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"samaj/internal/api/middleware"
	"samaj/internal/database"
	"samaj/internal/docgen"
	"samaj/internal/identity"
	"samaj/internal/tasks"
)

// MemberHandler 处理会员注册、查询与核验。
type MemberHandler struct {
	db          *gorm.DB
	identity    *identity.Service
	asynqClient *asynq.Client
	logger      *slog.Logger
}

func NewMemberHandler(db *gorm.DB, identitySvc *identity.Service, asynqClient *asynq.Client, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{
		db:          db,
		identity:    identitySvc,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

type joinRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	DOB   string `json:"dob"`

	Gender     string `json:"gender"`
	Profession string `json:"profession"`

	Street      string `json:"street"`
	SubDistrict string `json:"sub_district"`
	District    string `json:"district"`
	City        string `json:"city"`
	Division    string `json:"division"`
	State       string `json:"state"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`

	ReferredByID *uint `json:"referred_by_id"`
}

type memberResponse struct {
	ID         uint   `json:"id"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Gender     string `json:"gender"`
	Profession string `json:"profession"`
	District   string `json:"district"`
	State      string `json:"state"`
	IsVerified bool   `json:"is_verified"`
	IsBlocked  bool   `json:"is_blocked"`
	JoinedAt   string `json:"joined_at"`
}

func toMemberResponse(m *database.Member) memberResponse {
	return memberResponse{
		ID:         m.ID,
		UserID:     m.UserID,
		Email:      m.Email,
		Name:       m.Name,
		Phone:      m.Phone,
		Gender:     m.Gender,
		Profession: m.Profession,
		District:   m.District,
		State:      m.State,
		IsVerified: m.IsVerified,
		IsBlocked:  m.IsBlocked,
		JoinedAt:   m.CreatedAt.Format("2006-01-02"),
	}
}

func (h *MemberHandler) candidateFromRequest(req joinRequest) identity.Candidate {
	return identity.Candidate{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		Phone:        strings.TrimSpace(req.Phone),
		DOB:          strings.TrimSpace(req.DOB),
		Gender:       req.Gender,
		Profession:   req.Profession,
		Street:       req.Street,
		SubDistrict:  req.SubDistrict,
		District:     req.District,
		City:         req.City,
		Division:     req.Division,
		State:        req.State,
		Country:      req.Country,
		PostalCode:   req.PostalCode,
		ReferredByID: req.ReferredByID,
	}
}

// Join 公开注册入口：签发临时注册号。
func (h *MemberHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	logger := middleware.LoggerFromContext(c)

	member, err := h.identity.IssueProvisional(c.Request.Context(), h.candidateFromRequest(req))
	if err != nil {
		h.replyIssueError(c, logger, err)
		return
	}

	logger.Info("member registered",
		slog.Uint64("member_id", uint64(member.ID)),
		slog.String("user_id", member.UserID),
	)
	c.JSON(http.StatusCreated, toMemberResponse(member))
}

// Create 是工作人员的代注册入口，语义与 Join 相同。
func (h *MemberHandler) Create(c *gin.Context) {
	h.Join(c)
}

// Upsert 是会员申请入口：已有邮箱只更新档案，新邮箱走注册流程。
func (h *MemberHandler) Upsert(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	logger := middleware.LoggerFromContext(c)

	member, created, err := h.identity.UpsertMember(c.Request.Context(), h.candidateFromRequest(req))
	if err != nil {
		h.replyIssueError(c, logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	logger.Info("member application processed",
		slog.Uint64("member_id", uint64(member.ID)),
		slog.Bool("created", created),
	)
	c.JSON(status, toMemberResponse(member))
}

func (h *MemberHandler) replyIssueError(c *gin.Context, logger *slog.Logger, err error) {
	var verr *identity.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid field", "field": verr.Field})
	case errors.Is(err, identity.ErrDuplicateEmail):
		Conflict(c, "email already registered")
	default:
		logger.Error("issue provisional id failed", slog.Any("error", err))
		Internal(c, "could not complete registration")
	}
}

// List 分页列出会员，支持按核验状态、地区与关键字过滤。
func (h *MemberHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	query := h.db.WithContext(ctx).Model(&database.Member{})

	if verified := c.Query("verified"); verified != "" {
		query = query.Where("is_verified = ?", verified == "true")
	}
	if state := c.Query("state"); state != "" {
		query = query.Where("state = ?", state)
	}
	if district := c.Query("district"); district != "" {
		query = query.Where("district = ?", district)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR email LIKE ? OR user_id LIKE ?", like, like, like)
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logger.Error("count members failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var members []database.Member
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&members).Error; err != nil {
		logger.Error("list members failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]memberResponse, 0, len(members))
	for i := range members {
		items = append(items, toMemberResponse(&members[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Detail 返回单个会员。
func (h *MemberHandler) Detail(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid member id")
		return
	}

	var member database.Member
	if err := h.db.WithContext(c.Request.Context()).First(&member, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "member not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load member failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, toMemberResponse(&member))
}

// Verify 将临时注册号晋升为正式 R 号，并异步补发欢迎信邮件。
func (h *MemberHandler) Verify(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid member id")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	member, err := h.identity.Verify(ctx, uint(id))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			NotFound(c, "member not found")
			return
		}
		logger.Error("verify member failed", slog.Any("error", err))
		Internal(c, "could not complete registration")
		return
	}

	task, err := tasks.NewDocumentEmailTask(tasks.DocumentEmailPayload{
		MemberID:      member.ID,
		DocType:       docgen.DocWelcomeLetter,
		Subject:       "Welcome to the Samaj",
		Body:          "Your membership is verified. Your registration number is " + member.UserID + ".",
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err == nil {
		_, err = h.asynqClient.EnqueueContext(ctx, task)
	}
	if err != nil {
		// 邮件失败不回滚核验，记录后继续。
		logger.Error("enqueue welcome email failed",
			slog.Uint64("member_id", uint64(member.ID)),
			slog.Any("error", err),
		)
	}

	logger.Info("member verified",
		slog.Uint64("member_id", uint64(member.ID)),
		slog.String("user_id", member.UserID),
	)
	c.JSON(http.StatusOK, toMemberResponse(member))
}
