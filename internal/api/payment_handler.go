package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"samaj/internal/api/middleware"
	"samaj/internal/database"
	"samaj/internal/payments"
)

// PaymentHandler 处理网关收款：下单与回调核验。
type PaymentHandler struct {
	db      *gorm.DB
	gateway payments.Gateway
	logger  *slog.Logger
}

func NewPaymentHandler(db *gorm.DB, gateway payments.Gateway, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		db:      db,
		gateway: gateway,
		logger:  logger,
	}
}

type createOrderRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,min=100"` // paise
	PaymentFor string `json:"payment_for" binding:"required"`
	Notes      string `json:"notes"`
}

// CreateOrder 在网关侧登记订单并落库一条 PENDING 记录。
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(
		slog.String("payment_for", req.PaymentFor),
		slog.Int64("amount", req.Amount),
	)

	receipt := "samaj-" + req.PaymentFor
	order, err := h.gateway.CreateOrder(req.Amount, "INR", receipt, map[string]any{
		"email": req.Email,
		"phone": req.Phone,
	})
	if err != nil {
		logger.Error("create gateway order failed", slog.Any("error", err))
		Internal(c, "could not create order")
		return
	}

	payment := database.Payment{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Amount:     order.Amount,
		Currency:   order.Currency,
		PaymentFor: req.PaymentFor,
		Status:     "PENDING",
		Notes:      req.Notes,
		OrderID:    order.ID,
	}
	if err := h.db.WithContext(ctx).Create(&payment).Error; err != nil {
		logger.Error("persist payment failed", slog.Any("error", err))
		Internal(c, "could not create order")
		return
	}

	logger.Info("payment order created", slog.String("order_id", order.ID))
	c.JSON(http.StatusCreated, gin.H{
		"order_id": order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// VerifyPayment 校验网关回调签名并更新订单状态。
// 签名不合法的请求会把订单标记为 FAILED。
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(
		slog.String("order_id", req.OrderID),
	)

	var payment database.Payment
	if err := h.db.WithContext(ctx).
		Where("order_id = ?", req.OrderID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "order not found")
			return
		}
		logger.Error("load payment failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		logger.Warn("payment signature mismatch", slog.String("payment_id", req.PaymentID))
		if err := h.db.WithContext(ctx).Model(&payment).
			Update("status", "FAILED").Error; err != nil {
			logger.Error("mark payment failed", slog.Any("error", err))
		}
		BadRequest(c, "signature verification failed")
		return
	}

	update := map[string]any{
		"status":             "COMPLETED",
		"gateway_payment_id": req.PaymentID,
	}

	// 拉取支付详情留档；失败不阻塞状态更新。
	if details, err := h.gateway.FetchPayment(req.PaymentID); err != nil {
		logger.Warn("fetch payment details failed", slog.Any("error", err))
	} else {
		if method, ok := details["method"].(string); ok {
			update["method"] = method
		}
		if raw, err := json.Marshal(details); err == nil {
			update["details"] = datatypes.JSON(raw)
		}
	}

	if err := h.db.WithContext(ctx).Model(&payment).Updates(update).Error; err != nil {
		logger.Error("update payment failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("payment completed", slog.String("payment_id", req.PaymentID))
	c.JSON(http.StatusOK, gin.H{"status": "COMPLETED"})
}

// List 分页列出收款记录（仅工作人员）。
func (h *PaymentHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	query := h.db.WithContext(ctx).Model(&database.Payment{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
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
		logger.Error("count payments failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var items []database.Payment
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error; err != nil {
		logger.Error("list payments failed", slog.Any("error", err))
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
