package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"samaj/internal/api/middleware"
	"samaj/internal/database"
)

// DashboardHandler 提供登录会员的概览数据与地址查找表。
type DashboardHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewDashboardHandler(db *gorm.DB, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{db: db, logger: logger}
}

// Me 返回当前会员的完整档案。
func (h *DashboardHandler) Me(c *gin.Context) {
	memberID, ok := memberIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var member database.Member
	if err := h.db.WithContext(c.Request.Context()).First(&member, memberID).Error; err != nil {
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

// UserCount 返回会员总量与核验量。
func (h *DashboardHandler) UserCount(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var total, verified int64
	if err := h.db.WithContext(ctx).Model(&database.Member{}).Count(&total).Error; err != nil {
		logger.Error("count members failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&database.Member{}).
		Where("is_verified = ?", true).Count(&verified).Error; err != nil {
		logger.Error("count verified members failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "verified": verified})
}

// Referrals 列出由当前会员引荐的会员。
func (h *DashboardHandler) Referrals(c *gin.Context) {
	memberID, ok := memberIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	h.listReferrals(c, memberID)
}

// ReferralsOf 列出指定会员的引荐（工作人员用）。
func (h *DashboardHandler) ReferralsOf(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid member id")
		return
	}
	h.listReferrals(c, uint(id))
}

func (h *DashboardHandler) listReferrals(c *gin.Context, memberID uint) {
	var referred []database.Member
	if err := h.db.WithContext(c.Request.Context()).
		Where("referred_by_id = ?", memberID).
		Order("id DESC").
		Find(&referred).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list referrals failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]memberResponse, 0, len(referred))
	for i := range referred {
		items = append(items, toMemberResponse(&referred[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// States 返回州与下辖地区的查找表。
func (h *DashboardHandler) States(c *gin.Context) {
	var states []database.State
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Districts").
		Order("name").
		Find(&states).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list states failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": states})
}

// Districts 返回某个州的地区列表。
func (h *DashboardHandler) Districts(c *gin.Context) {
	stateID, err := strconv.ParseUint(c.Query("state_id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid state id")
		return
	}

	var districts []database.District
	if err := h.db.WithContext(c.Request.Context()).
		Where("state_id = ?", uint(stateID)).
		Order("name").
		Find(&districts).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list districts failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": districts})
}
