package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"samaj/internal/api/middleware"
	"samaj/internal/database"
)

// VolunteerHandler 管理志愿者体系：Wing → Level → Designation，
// 以及会员到具体职务的挂接。
type VolunteerHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewVolunteerHandler(db *gorm.DB, logger *slog.Logger) *VolunteerHandler {
	return &VolunteerHandler{db: db, logger: logger}
}

type wingRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateWing 新建一个分支。
func (h *VolunteerHandler) CreateWing(c *gin.Context) {
	var req wingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	wing := database.Wing{Name: req.Name, Description: req.Description}
	if err := h.db.WithContext(c.Request.Context()).Create(&wing).Error; err != nil {
		middleware.LoggerFromContext(c).Error("create wing failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, wing)
}

// ListWings 返回所有分支及其层级。
func (h *VolunteerHandler) ListWings(c *gin.Context) {
	var wings []database.Wing
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Levels").
		Preload("Levels.Designations").
		Find(&wings).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list wings failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": wings})
}

type bulkLevelsRequest struct {
	WingID uint     `json:"wing_id" binding:"required"`
	Names  []string `json:"names" binding:"required,min=1"`
}

// CreateLevels 在指定分支下批量建层级。
func (h *VolunteerHandler) CreateLevels(c *gin.Context) {
	var req bulkLevelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var wing database.Wing
	if err := h.db.WithContext(ctx).First(&wing, req.WingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "wing not found")
			return
		}
		logger.Error("load wing failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	levels := make([]database.Level, 0, len(req.Names))
	for _, name := range req.Names {
		levels = append(levels, database.Level{Name: name, WingID: wing.ID})
	}
	if err := h.db.WithContext(ctx).Create(&levels).Error; err != nil {
		logger.Error("create levels failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": levels})
}

type designationRequest struct {
	Title          string `json:"title" binding:"required"`
	LevelID        uint   `json:"level_id" binding:"required"`
	TotalPositions uint   `json:"total_positions" binding:"required,min=1"`
}

// CreateDesignation 在层级下新建职务。
func (h *VolunteerHandler) CreateDesignation(c *gin.Context) {
	var req designationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var level database.Level
	if err := h.db.WithContext(ctx).First(&level, req.LevelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "level not found")
			return
		}
		logger.Error("load level failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	designation := database.Designation{
		Title:          req.Title,
		LevelID:        level.ID,
		TotalPositions: req.TotalPositions,
	}
	if err := h.db.WithContext(ctx).Create(&designation).Error; err != nil {
		logger.Error("create designation failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, designation)
}

// ListDesignations 列出层级下的职务及占用数。
func (h *VolunteerHandler) ListDesignations(c *gin.Context) {
	levelID, err := strconv.ParseUint(c.Query("level_id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid level id")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var designations []database.Designation
	if err := h.db.WithContext(ctx).
		Where("level_id = ?", uint(levelID)).
		Find(&designations).Error; err != nil {
		logger.Error("list designations failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]gin.H, 0, len(designations))
	for _, d := range designations {
		var filled int64
		if err := h.db.WithContext(ctx).Model(&database.Volunteer{}).
			Where("designation_id = ?", d.ID).
			Count(&filled).Error; err != nil {
			logger.Error("count volunteers failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		items = append(items, gin.H{
			"id":              d.ID,
			"title":           d.Title,
			"total_positions": d.TotalPositions,
			"filled":          filled,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type enrollVolunteerRequest struct {
	MemberID      uint   `json:"member_id" binding:"required"`
	PhoneNumber   string `json:"phone_number" binding:"required"`
	WingID        *uint  `json:"wing_id"`
	LevelID       *uint  `json:"level_id"`
	DesignationID *uint  `json:"designation_id"`
}

// Enroll 将会员登记为志愿者。职务名额满时拒绝。
func (h *VolunteerHandler) Enroll(c *gin.Context) {
	var req enrollVolunteerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(
		slog.Uint64("member_id", uint64(req.MemberID)),
	)

	var member database.Member
	if err := h.db.WithContext(ctx).First(&member, req.MemberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "member not found")
			return
		}
		logger.Error("load member failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if req.DesignationID != nil {
		var designation database.Designation
		if err := h.db.WithContext(ctx).First(&designation, *req.DesignationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				NotFound(c, "designation not found")
				return
			}
			logger.Error("load designation failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		var filled int64
		if err := h.db.WithContext(ctx).Model(&database.Volunteer{}).
			Where("designation_id = ?", designation.ID).
			Count(&filled).Error; err != nil {
			logger.Error("count volunteers failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		if filled >= int64(designation.TotalPositions) {
			Conflict(c, "designation has no open positions")
			return
		}
	}

	volunteer := database.Volunteer{
		MemberID:      member.ID,
		PhoneNumber:   req.PhoneNumber,
		WingID:        req.WingID,
		LevelID:       req.LevelID,
		DesignationID: req.DesignationID,
		JoinedDate:    time.Now(),
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&volunteer).Error; err != nil {
			return err
		}
		return tx.Model(&member).Update("is_volunteer", true).Error
	})
	if err != nil {
		logger.Error("enroll volunteer failed", slog.Any("error", err))
		Conflict(c, "member already enrolled")
		return
	}

	logger.Info("volunteer enrolled", slog.Uint64("volunteer_id", uint64(volunteer.ID)))
	c.JSON(http.StatusCreated, volunteer)
}

// ListVolunteers 列出志愿者，支持按分支过滤。
func (h *VolunteerHandler) ListVolunteers(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).
		Model(&database.Volunteer{}).
		Preload("Member")
	if wingID := c.Query("wing_id"); wingID != "" {
		query = query.Where("wing_id = ?", wingID)
	}

	var volunteers []database.Volunteer
	if err := query.Find(&volunteers).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list volunteers failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": volunteers})
}
