package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"samaj/internal/api/middleware"
	"samaj/internal/database"
)

// VyapariHandler 管理商户目录：分类、商户条目与广告位。
type VyapariHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewVyapariHandler(db *gorm.DB, logger *slog.Logger) *VyapariHandler {
	return &VyapariHandler{db: db, logger: logger}
}

type categoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateCategory 新建一级分类。
func (h *VyapariHandler) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	category := database.Category{Name: req.Name, Description: req.Description}
	if err := h.db.WithContext(c.Request.Context()).Create(&category).Error; err != nil {
		middleware.LoggerFromContext(c).Error("create category failed", slog.Any("error", err))
		Conflict(c, "category already exists")
		return
	}
	c.JSON(http.StatusCreated, category)
}

// ListCategories 返回所有分类及其子分类。
func (h *VyapariHandler) ListCategories(c *gin.Context) {
	var categories []database.Category
	if err := h.db.WithContext(c.Request.Context()).
		Preload("SubCategories").
		Find(&categories).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list categories failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": categories})
}

type subCategoryRequest struct {
	CategoryID  uint   `json:"category_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateSubCategory 在分类下新建子分类，(category, name) 唯一。
func (h *VyapariHandler) CreateSubCategory(c *gin.Context) {
	var req subCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var category database.Category
	if err := h.db.WithContext(ctx).First(&category, req.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "category not found")
			return
		}
		logger.Error("load category failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	sub := database.SubCategory{
		CategoryID:  category.ID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.db.WithContext(ctx).Create(&sub).Error; err != nil {
		logger.Error("create subcategory failed", slog.Any("error", err))
		Conflict(c, "subcategory already exists in this category")
		return
	}
	c.JSON(http.StatusCreated, sub)
}

type vyapariRequest struct {
	Name             string            `json:"name" binding:"required"`
	ShortDescription string            `json:"short_description"`
	LongDescription  string            `json:"long_description"`
	BusinessType     string            `json:"business_type"`
	CategoryID       *uint             `json:"category_id"`
	SubCategoryID    *uint             `json:"sub_category_id"`
	Email            *string           `json:"email"`
	Phone            string            `json:"phone"`
	Owner            string            `json:"owner"`
	EmployeeCount    *uint             `json:"employee_count"`
	Tags             string            `json:"tags"`
	InstaURL         string            `json:"insta_url"`
	FacebookURL      string            `json:"facebook_url"`
	WebsiteURL       string            `json:"website_url"`
	Address          map[string]string `json:"address"`
	Location         map[string]string `json:"location"`
}

// CreateVyapari 登记一个商户条目。地址与坐标以 JSONB 存储。
func (h *VyapariHandler) CreateVyapari(c *gin.Context) {
	var req vyapariRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.String("name", req.Name))

	vyapari := database.Vyapari{
		Name:             req.Name,
		ShortDescription: req.ShortDescription,
		LongDescription:  req.LongDescription,
		BusinessType:     req.BusinessType,
		CategoryID:       req.CategoryID,
		SubCategoryID:    req.SubCategoryID,
		Email:            req.Email,
		Phone:            req.Phone,
		Owner:            req.Owner,
		EmployeeCount:    req.EmployeeCount,
		Tags:             req.Tags,
		InstaURL:         req.InstaURL,
		FacebookURL:      req.FacebookURL,
		WebsiteURL:       req.WebsiteURL,
	}
	if memberID, ok := memberIDFromContext(c); ok {
		vyapari.ReferredByID = &memberID
	}
	if len(req.Address) > 0 {
		if data, err := json.Marshal(req.Address); err == nil {
			vyapari.Address = datatypes.JSON(data)
		}
	}
	if len(req.Location) > 0 {
		if data, err := json.Marshal(req.Location); err == nil {
			vyapari.Location = datatypes.JSON(data)
		}
	}

	if err := h.db.WithContext(ctx).Create(&vyapari).Error; err != nil {
		logger.Error("create vyapari failed", slog.Any("error", err))
		Conflict(c, "vyapari already exists")
		return
	}

	logger.Info("vyapari created", slog.Uint64("vyapari_id", uint64(vyapari.ID)))
	c.JSON(http.StatusCreated, vyapari)
}

// ListVyaparis 分页列出商户，支持分类与关键字过滤。
// state/district 过滤走 JSONB 地址字段。
func (h *VyapariHandler) ListVyaparis(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	query := h.db.WithContext(ctx).Model(&database.Vyapari{}).
		Preload("Category").
		Preload("SubCategory").
		Where("is_blocked = ?", false)

	if categoryID := c.Query("category_id"); categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	if subCategoryID := c.Query("sub_category_id"); subCategoryID != "" {
		query = query.Where("sub_category_id = ?", subCategoryID)
	}
	if state := c.Query("state"); state != "" {
		query = query.Where(datatypes.JSONQuery("address").Equals(state, "state"))
	}
	if district := c.Query("district"); district != "" {
		query = query.Where(datatypes.JSONQuery("address").Equals(district, "district"))
	}
	if city := c.Query("city"); city != "" {
		query = query.Where(datatypes.JSONQuery("address").Equals(city, "city"))
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR tags LIKE ?", like, like)
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
		logger.Error("count vyaparis failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var items []database.Vyapari
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error; err != nil {
		logger.Error("list vyaparis failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// VyapariDetail 返回单个商户。
func (h *VyapariHandler) VyapariDetail(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid vyapari id")
		return
	}

	var vyapari database.Vyapari
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Category").
		Preload("SubCategory").
		First(&vyapari, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "vyapari not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load vyapari failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, vyapari)
}

type advertisementRequest struct {
	VyapariID uint       `json:"vyapari_id" binding:"required"`
	AdType    string     `json:"ad_type" binding:"required,oneof=global state district category subcategory"`
	ImageURL  string     `json:"image_url" binding:"required"`
	TargetURL string     `json:"target_url"`
	StartsAt  *time.Time `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at"`
}

// CreateAdvertisement 为商户投放广告位。
func (h *VyapariHandler) CreateAdvertisement(c *gin.Context) {
	var req advertisementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var vyapari database.Vyapari
	if err := h.db.WithContext(ctx).First(&vyapari, req.VyapariID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "vyapari not found")
			return
		}
		logger.Error("load vyapari failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	ad := database.Advertisement{
		VyapariID: vyapari.ID,
		AdType:    req.AdType,
		ImageURL:  req.ImageURL,
		TargetURL: req.TargetURL,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		IsActive:  true,
	}
	if err := h.db.WithContext(ctx).Create(&ad).Error; err != nil {
		logger.Error("create advertisement failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, ad)
}

// ListAdvertisements 列出当前生效的广告位。
func (h *VyapariHandler) ListAdvertisements(c *gin.Context) {
	now := time.Now()
	query := h.db.WithContext(c.Request.Context()).
		Model(&database.Advertisement{}).
		Where("is_active = ?", true).
		Where("starts_at IS NULL OR starts_at <= ?", now).
		Where("ends_at IS NULL OR ends_at >= ?", now)
	if adType := c.Query("ad_type"); adType != "" {
		query = query.Where("ad_type = ?", adType)
	}

	var ads []database.Advertisement
	if err := query.Find(&ads).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list advertisements failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": ads})
}
