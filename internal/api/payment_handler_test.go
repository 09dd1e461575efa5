package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"samaj/internal/database"
	"samaj/internal/payments"
)

type fakeGateway struct {
	orders        int
	goodSignature string
	details       map[string]any
}

func (g *fakeGateway) CreateOrder(amount int64, currency, receipt string, notes map[string]any) (*payments.Order, error) {
	g.orders++
	return &payments.Order{ID: "order_test_1", Amount: amount, Currency: currency}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return signature == g.goodSignature
}

func (g *fakeGateway) FetchPayment(paymentID string) (map[string]any, error) {
	return g.details, nil
}

func TestCreateOrderPersistsPending(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	gateway := &fakeGateway{goodSignature: "sig"}
	h := NewPaymentHandler(db, gateway, nil)

	w := httptest.NewRecorder()
	c := testContext(w, jsonRequest(t, http.MethodPost, "/v1/payments/order", map[string]any{
		"name":        "Asha Patel",
		"email":       "a@x.com",
		"phone":       "999",
		"amount":      50000,
		"payment_for": "membership",
	}))
	h.CreateOrder(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	if gateway.orders != 1 {
		t.Fatalf("gateway orders = %d, want 1", gateway.orders)
	}

	var payment database.Payment
	if err := db.Where("order_id = ?", "order_test_1").First(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != "PENDING" {
		t.Fatalf("status = %q, want PENDING", payment.Status)
	}
	if payment.Amount != 50000 {
		t.Fatalf("amount = %d, want 50000", payment.Amount)
	}
}

func TestVerifyPaymentCompletes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	gateway := &fakeGateway{
		goodSignature: "valid-sig",
		details:       map[string]any{"method": "upi", "bank": "TEST"},
	}
	h := NewPaymentHandler(db, gateway, nil)

	seed := database.Payment{
		Name:    "Asha Patel",
		Email:   "a@x.com",
		Amount:  50000,
		OrderID: "order_test_1",
		Status:  "PENDING",
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	w := httptest.NewRecorder()
	c := testContext(w, jsonRequest(t, http.MethodPost, "/v1/payments/verify", map[string]any{
		"razorpay_order_id":   "order_test_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "valid-sig",
	}))
	h.VerifyPayment(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var payment database.Payment
	if err := db.First(&payment, seed.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != "COMPLETED" {
		t.Fatalf("status = %q, want COMPLETED", payment.Status)
	}
	if payment.GatewayPaymentID != "pay_1" {
		t.Fatalf("gateway payment id = %q", payment.GatewayPaymentID)
	}
	if payment.Method != "upi" {
		t.Fatalf("method = %q, want upi", payment.Method)
	}

	var details map[string]any
	if err := json.Unmarshal(payment.Details, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details["bank"] != "TEST" {
		t.Fatalf("details not persisted: %v", details)
	}
}

func TestVerifyPaymentBadSignatureFails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	gateway := &fakeGateway{goodSignature: "valid-sig"}
	h := NewPaymentHandler(db, gateway, nil)

	seed := database.Payment{OrderID: "order_test_1", Status: "PENDING"}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	w := httptest.NewRecorder()
	c := testContext(w, jsonRequest(t, http.MethodPost, "/v1/payments/verify", map[string]any{
		"razorpay_order_id":   "order_test_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "forged",
	}))
	h.VerifyPayment(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}

	var payment database.Payment
	if err := db.First(&payment, seed.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != "FAILED" {
		t.Fatalf("status = %q, want FAILED", payment.Status)
	}
}

func TestVerifyPaymentUnknownOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPaymentHandler(newTestDB(t), &fakeGateway{}, nil)

	w := httptest.NewRecorder()
	c := testContext(w, jsonRequest(t, http.MethodPost, "/v1/payments/verify", map[string]any{
		"razorpay_order_id":   "missing",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "sig",
	}))
	h.VerifyPayment(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d body=%s", w.Code, w.Body.String())
	}
}
