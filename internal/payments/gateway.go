package payments

import (
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"samaj/internal/config"
)

// Order 是网关侧创建的一笔待支付订单。
type Order struct {
	ID       string
	Amount   int64 // 最小货币单位（paise）
	Currency string
}

// Gateway 抽象支付网关，便于在测试里替换为假实现。
type Gateway interface {
	CreateOrder(amount int64, currency, receipt string, notes map[string]any) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	FetchPayment(paymentID string) (map[string]any, error)
}

// RazorpayGateway 通过 Razorpay 官方 SDK 实现 Gateway。
type RazorpayGateway struct {
	client    *razorpay.Client
	keySecret string
}

func NewRazorpayGateway(cfg config.RazorpayConfig) *RazorpayGateway {
	return &RazorpayGateway{
		client:    razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		keySecret: cfg.KeySecret,
	}
}

// CreateOrder 在网关侧登记订单。金额以 paise 计。
func (g *RazorpayGateway) CreateOrder(amount int64, currency, receipt string, notes map[string]any) (*Order, error) {
	data := map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("create razorpay order: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("create razorpay order: response missing id")
	}
	return &Order{ID: id, Amount: amount, Currency: currency}, nil
}

// VerifySignature 校验回调签名，防止伪造的支付完成请求。
func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	params := map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}
	return utils.VerifyPaymentSignature(params, signature, g.keySecret)
}

// FetchPayment 拉取支付详情（支付方式、状态等），用于入库留档。
func (g *RazorpayGateway) FetchPayment(paymentID string) (map[string]any, error) {
	body, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch razorpay payment %q: %w", paymentID, err)
	}
	return body, nil
}
