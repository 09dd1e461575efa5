package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"samaj/internal/auth"
	"samaj/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// 单连接串行化，避免内存库并发写时的 busy 错误。
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

func validCandidate(email string) Candidate {
	return Candidate{
		Email: email,
		Name:  "Asha Patel",
		Phone: "9990001111",
		DOB:   "1990-01-05",
	}
}

var provisionalID = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestIssueProvisional(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	m, err := svc.IssueProvisional(ctx, Candidate{Email: "a@x.com", Name: "A", Phone: "999", DOB: "1990-01-05"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !provisionalID.MatchString(m.UserID) {
		t.Fatalf("user id %q is not an 8-hex-char token", m.UserID)
	}
	if m.Username != "a@x.com" {
		t.Fatalf("username = %q, want the email", m.Username)
	}
	if m.IsVerified {
		t.Fatal("fresh member must not be verified")
	}
	// Password derives from the date of birth, DDMMYYYY.
	if !auth.CheckPasswordHash("05011990", m.PasswordHash) {
		t.Fatal("password hash does not verify against DDMMYYYY dob")
	}

	_, err = svc.IssueProvisional(ctx, Candidate{Email: "a@x.com", Name: "B", Phone: "888", DOB: "1991-02-06"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("repeat email err = %v, want ErrDuplicateEmail", err)
	}
}

func TestIssueProvisionalValidationOrder(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	cases := []struct {
		candidate Candidate
		field     string
	}{
		{Candidate{}, "dob"},
		{Candidate{DOB: "1990-01-05"}, "email"},
		{Candidate{DOB: "1990-01-05", Email: "a@x.com"}, "name"},
		{Candidate{DOB: "1990-01-05", Email: "a@x.com", Name: "A"}, "phone"},
		{Candidate{DOB: "05-01-1990", Email: "a@x.com", Name: "A", Phone: "999"}, "dob"},
	}
	for _, tc := range cases {
		_, err := svc.IssueProvisional(ctx, tc.candidate)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("candidate %+v: err = %v, want ValidationError", tc.candidate, err)
		}
		if verr.Field != tc.field {
			t.Fatalf("candidate %+v: field = %q, want %q", tc.candidate, verr.Field, tc.field)
		}
	}
}

func TestIssueProvisionalConcurrentUnique(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	const n = 100
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := svc.IssueProvisional(ctx, validCandidate(fmt.Sprintf("user%d@x.com", i)))
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = m.UserID
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("issue %d: %v", i, errs[i])
		}
		if seen[ids[i]] {
			t.Fatalf("duplicate user id %q", ids[i])
		}
		seen[ids[i]] = true
	}
}

func TestUpsertMember(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	created, isNew, err := svc.UpsertMember(ctx, validCandidate("up@x.com"))
	if err != nil {
		t.Fatalf("upsert create: %v", err)
	}
	if !isNew {
		t.Fatal("first upsert should create")
	}
	if !provisionalID.MatchString(created.UserID) {
		t.Fatalf("user id %q is not a provisional token", created.UserID)
	}

	update := validCandidate("up@x.com")
	update.Profession = "Carpenter"
	update.City = "Indore"
	updated, isNew, err := svc.UpsertMember(ctx, update)
	if err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if isNew {
		t.Fatal("repeat upsert should update, not create")
	}
	if updated.ID != created.ID {
		t.Fatalf("upsert created a second record: %d != %d", updated.ID, created.ID)
	}
	if updated.Profession != "Carpenter" || updated.City != "Indore" {
		t.Fatalf("profile not updated: %+v", updated)
	}
	// 更新不能触碰凭据或注册号。
	if updated.UserID != created.UserID {
		t.Fatalf("upsert rewrote user id: %q -> %q", created.UserID, updated.UserID)
	}
	if updated.PasswordHash != created.PasswordHash {
		t.Fatal("upsert rewrote password hash")
	}
}

func TestVerifyAssignsNextSequence(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	// Existing verified members R0000001..R0000005.
	for i := 1; i <= 5; i++ {
		m := database.Member{
			Email:      fmt.Sprintf("v%d@x.com", i),
			Username:   fmt.Sprintf("R%07d", i),
			UserID:     fmt.Sprintf("R%07d", i),
			IsVerified: true,
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	m, err := svc.IssueProvisional(ctx, validCandidate("next@x.com"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := svc.Verify(ctx, m.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.UserID != "R0000006" {
		t.Fatalf("user id = %q, want R0000006", got.UserID)
	}
	if got.Username != "R0000006" {
		t.Fatalf("username = %q, want the registration number", got.Username)
	}
	if !got.IsVerified {
		t.Fatal("member should be verified")
	}
}

func TestVerifyRepeatIsNoOp(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	m, err := svc.IssueProvisional(ctx, validCandidate("once@x.com"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	first, err := svc.Verify(ctx, m.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	second, err := svc.Verify(ctx, m.ID)
	if err != nil {
		t.Fatalf("repeat verify: %v", err)
	}
	if second.UserID != first.UserID {
		t.Fatalf("repeat verify reallocated: %q then %q", first.UserID, second.UserID)
	}
}

func TestVerifyConcurrentSameMember(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	// 同一会员的并发核验只能发出一个注册号；输方必须拿到胜方的号。
	for round := 0; round < 50; round++ {
		m, err := svc.IssueProvisional(ctx, validCandidate(fmt.Sprintf("race%d@x.com", round)))
		if err != nil {
			t.Fatalf("round %d issue: %v", round, err)
		}

		start := make(chan struct{})
		results := make([]*database.Member, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i], errs[i] = svc.Verify(ctx, m.ID)
			}(i)
		}
		close(start)
		wg.Wait()

		for i := 0; i < 2; i++ {
			if errs[i] != nil {
				t.Fatalf("round %d verify %d: %v", round, i, errs[i])
			}
		}
		if results[0].UserID != results[1].UserID {
			t.Fatalf("round %d: concurrent verify handed out two numbers: %q vs %q",
				round, results[0].UserID, results[1].UserID)
		}
		// 每轮恰好消耗一个序号，输方不得烧号。
		want := fmt.Sprintf("R%07d", round+1)
		if results[0].UserID != want {
			t.Fatalf("round %d: user id = %q, want %q", round, results[0].UserID, want)
		}
	}
}

func TestVerifyUnknownMember(t *testing.T) {
	svc := NewService(newTestDB(t))
	if _, err := svc.Verify(context.Background(), 4242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAllocateNextIgnoresMalformedSuffix(t *testing.T) {
	db := newTestDB(t)

	for _, m := range []database.Member{
		{Email: "a@x.com", Username: "a@x.com", UserID: "R0000003"},
		{Email: "b@x.com", Username: "b@x.com", UserID: "Rxyz"},
		{Email: "c@x.com", Username: "c@x.com", UserID: "deadbeef"},
	} {
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	next, err := allocateNext(db)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if next != 4 {
		t.Fatalf("next = %d, want 4", next)
	}
}
