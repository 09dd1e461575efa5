package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"samaj/internal/database"
	"samaj/internal/identity"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// asynq 客户端指向不存在的地址：入队失败会被记录但不阻塞请求。
func newDeadAsynqClient(t *testing.T) *asynq.Client {
	t.Helper()
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { client.Close() })
	return client
}

func newMemberHandler(t *testing.T, db *gorm.DB) *MemberHandler {
	t.Helper()
	return NewMemberHandler(db, identity.NewService(db), newDeadAsynqClient(t), slog.Default())
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func testContext(w *httptest.ResponseRecorder, req *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c
}

func validJoinPayload(email string) map[string]any {
	return map[string]any{
		"email": email,
		"name":  "Asha Patel",
		"phone": "9990001111",
		"dob":   "1990-01-05",
		"state": "Maharashtra",
	}
}

func TestJoinIssuesProvisionalID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := newMemberHandler(t, db)

	w := httptest.NewRecorder()
	c := testContext(w, jsonRequest(t, http.MethodPost, "/v1/members/join", validJoinPayload("a@x.com")))
	h.Join(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	var resp memberResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.UserID) != 8 {
		t.Fatalf("user id %q is not an 8-char token", resp.UserID)
	}
	if resp.IsVerified {
		t.Fatal("fresh member must not be verified")
	}

	var member database.Member
	if err := db.First(&member, resp.ID).Error; err != nil {
		t.Fatalf("load member: %v", err)
	}
	if member.Username != "a@x.com" {
		t.Fatalf("username = %q, want the email", member.Username)
	}
}

func TestJoinValidationNamesField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newMemberHandler(t, newTestDB(t))

	w := httptest.NewRecorder()
	c := testContext(w, jsonRequest(t, http.MethodPost, "/v1/members/join", map[string]any{
		"email": "a@x.com",
		"name":  "A",
		"phone": "999",
	}))
	h.Join(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["field"] != "dob" {
		t.Fatalf("field = %q, want dob", resp["field"])
	}
}

func TestJoinDuplicateEmailConflicts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := newMemberHandler(t, db)

	w := httptest.NewRecorder()
	h.Join(testContext(w, jsonRequest(t, http.MethodPost, "/v1/members/join", validJoinPayload("dup@x.com"))))
	if w.Code != http.StatusCreated {
		t.Fatalf("first join: expected 201 got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Join(testContext(w, jsonRequest(t, http.MethodPost, "/v1/members/join", validJoinPayload("dup@x.com"))))
	if w.Code != http.StatusConflict {
		t.Fatalf("repeat join: expected 409 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestVerifyPromotesMember(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := newMemberHandler(t, db)

	w := httptest.NewRecorder()
	h.Join(testContext(w, jsonRequest(t, http.MethodPost, "/v1/members/join", validJoinPayload("v@x.com"))))
	var created memberResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode join response: %v", err)
	}

	w = httptest.NewRecorder()
	c := testContext(w, httptest.NewRequest(http.MethodPost, "/v1/members/1/verify", nil))
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	h.Verify(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var resp memberResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if resp.UserID != "R0000001" {
		t.Fatalf("user id = %q, want R0000001", resp.UserID)
	}
	if !resp.IsVerified {
		t.Fatal("member should be verified")
	}

	// 重复核验是幂等的。
	w = httptest.NewRecorder()
	c = testContext(w, httptest.NewRequest(http.MethodPost, "/v1/members/1/verify", nil))
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	h.Verify(c)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode repeat verify response: %v", err)
	}
	if resp.UserID != "R0000001" {
		t.Fatalf("repeat verify reallocated: %q", resp.UserID)
	}
}

func TestVerifyUnknownMember(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newMemberHandler(t, newTestDB(t))

	w := httptest.NewRecorder()
	c := testContext(w, httptest.NewRequest(http.MethodPost, "/v1/members/99/verify", nil))
	c.Params = gin.Params{{Key: "id", Value: "99"}}
	h.Verify(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestListFiltersByVerification(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := newMemberHandler(t, db)

	seed := []database.Member{
		{Email: "a@x.com", Username: "a@x.com", UserID: "aaaa1111", Name: "A", State: "Gujarat"},
		{Email: "b@x.com", Username: "R0000001", UserID: "R0000001", Name: "B", State: "Gujarat", IsVerified: true},
		{Email: "c@x.com", Username: "c@x.com", UserID: "cccc3333", Name: "C", State: "Punjab"},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed member: %v", err)
		}
	}

	w := httptest.NewRecorder()
	c := testContext(w, httptest.NewRequest(http.MethodGet, "/v1/members?verified=true", nil))
	h.List(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []memberResponse `json:"items"`
		Total int64            `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 || resp.Items[0].UserID != "R0000001" {
		t.Fatalf("unexpected verified filter result: %+v", resp)
	}

	w = httptest.NewRecorder()
	c = testContext(w, httptest.NewRequest(http.MethodGet, "/v1/members?state=Gujarat", nil))
	h.List(c)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("state filter total = %d, want 2", resp.Total)
	}
}
