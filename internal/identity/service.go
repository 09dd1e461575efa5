package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"samaj/internal/auth"
	"samaj/internal/database"
)

var (
	// ErrDuplicateEmail 表示该邮箱已注册。
	ErrDuplicateEmail = errors.New("identity: email already registered")
	// ErrIDGenerationExhausted marks provisional token generation giving up
	// after the retry budget.
	ErrIDGenerationExhausted = errors.New("identity: user id generation exhausted")
	// ErrNotFound marks a lookup for a member that does not exist.
	ErrNotFound = errors.New("identity: member not found")

	// errAlreadyVerified signals inside Verify that a concurrent caller won
	// the promotion; it never escapes the service.
	errAlreadyVerified = errors.New("identity: member already verified")
)

// ValidationError names the first missing or malformed candidate field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("identity: invalid candidate field %q", e.Field)
}

// Candidate carries the registration payload. Email/Name/Phone/DOB are
// required; everything else is optional profile data persisted as-is.
type Candidate struct {
	Email string
	Name  string
	Phone string
	DOB   string // ISO date, e.g. "1990-01-05"

	Gender     string
	Profession string

	Street      string
	SubDistrict string
	District    string
	City        string
	Division    string
	State       string
	Country     string
	PostalCode  string

	ReferredByID *uint
}

const (
	tokenAttempts    = 1000
	allocateAttempts = 5
)

// Service 负责会员身份的签发与核验。
// Provisional → Verified，核验不可逆。
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// IssueProvisional validates the candidate, derives the initial password from
// the date of birth (DDMMYYYY, one-way hashed) and persists a member with a
// random 8-hex-char provisional user id. The username mirrors the email until
// verification rewrites both.
func (s *Service) IssueProvisional(ctx context.Context, c Candidate) (*database.Member, error) {
	// 按 dob → email → name → phone 的顺序报告第一个缺失字段。
	if c.DOB == "" {
		return nil, &ValidationError{Field: "dob"}
	}
	if c.Email == "" {
		return nil, &ValidationError{Field: "email"}
	}
	if c.Name == "" {
		return nil, &ValidationError{Field: "name"}
	}
	if c.Phone == "" {
		return nil, &ValidationError{Field: "phone"}
	}

	dob, err := time.Parse("2006-01-02", c.DOB)
	if err != nil {
		return nil, &ValidationError{Field: "dob"}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Member{}).
		Where("email = ?", c.Email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateEmail
	}

	hash, err := auth.HashPassword(dob.Format("02012006"))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	member := &database.Member{
		Email:        c.Email,
		Username:     c.Email,
		PasswordHash: hash,
		Name:         c.Name,
		Phone:        c.Phone,
		DOB:          &dob,
		Gender:       c.Gender,
		Profession:   c.Profession,
		Street:       c.Street,
		SubDistrict:  c.SubDistrict,
		District:     c.District,
		City:         c.City,
		Division:     c.Division,
		State:        c.State,
		Country:      c.Country,
		PostalCode:   c.PostalCode,
		ReferredByID: c.ReferredByID,

		IsMemberAccount: true,
	}

	// 先查后插仍有竞态，唯一索引兜底：冲突时换号重试。
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token, err := randomToken()
		if err != nil {
			return nil, err
		}
		member.ID = 0
		member.UserID = token

		err = s.db.WithContext(ctx).Create(member).Error
		if err == nil {
			return member, nil
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("create member: %w", err)
		}
		// The violated index may be the email's, not the token's, when two
		// registrations race past the pre-check.
		if err := s.db.WithContext(ctx).Model(&database.Member{}).
			Where("email = ?", c.Email).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if count > 0 {
			return nil, ErrDuplicateEmail
		}
	}
	return nil, ErrIDGenerationExhausted
}

// UpsertMember 是会员申请入口：邮箱已存在时仅更新档案字段，
// 否则走正常的临时注册号签发流程。凭据与注册号不受更新影响。
func (s *Service) UpsertMember(ctx context.Context, c Candidate) (*database.Member, bool, error) {
	if c.Email == "" {
		return nil, false, &ValidationError{Field: "email"}
	}

	var member database.Member
	err := s.db.WithContext(ctx).Where("email = ?", c.Email).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, err := s.IssueProvisional(ctx, c)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load member: %w", err)
	}

	updates := map[string]any{
		"is_member_account": true,
	}
	if c.Name != "" {
		updates["name"] = c.Name
	}
	if c.Phone != "" {
		updates["phone"] = c.Phone
	}
	if c.Gender != "" {
		updates["gender"] = c.Gender
	}
	if c.Profession != "" {
		updates["profession"] = c.Profession
	}
	if c.Street != "" {
		updates["street"] = c.Street
	}
	if c.SubDistrict != "" {
		updates["sub_district"] = c.SubDistrict
	}
	if c.District != "" {
		updates["district"] = c.District
	}
	if c.City != "" {
		updates["city"] = c.City
	}
	if c.Division != "" {
		updates["division"] = c.Division
	}
	if c.State != "" {
		updates["state"] = c.State
	}
	if c.Country != "" {
		updates["country"] = c.Country
	}
	if c.PostalCode != "" {
		updates["postal_code"] = c.PostalCode
	}

	if err := s.db.WithContext(ctx).Model(&member).Updates(updates).Error; err != nil {
		return nil, false, fmt.Errorf("update member: %w", err)
	}
	if err := s.db.WithContext(ctx).First(&member, member.ID).Error; err != nil {
		return nil, false, fmt.Errorf("reload member: %w", err)
	}
	return &member, false, nil
}

// Verify promotes a provisional member to a permanent registration number.
// Repeat calls on an already-verified member are a no-op returning the
// existing record.
func (s *Service) Verify(ctx context.Context, memberID uint) (*database.Member, error) {
	var member database.Member
	if err := s.db.WithContext(ctx).First(&member, memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member.IsVerified {
		return &member, nil
	}

	// 并发核验靠 user_id 唯一索引裁决：冲突方重读重算。
	// 晋升自带 is_verified = false 条件，同一会员的并发核验只有一方写入，
	// 另一方重读胜者的注册号返回。
	var lastErr error
	for attempt := 0; attempt < allocateAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			next, err := allocateNext(tx)
			if err != nil {
				return err
			}
			regNo := fmt.Sprintf("R%07d", next)
			res := tx.Model(&database.Member{}).
				Where("id = ? AND is_verified = ?", memberID, false).
				Updates(map[string]any{
					"user_id":     regNo,
					"username":    regNo,
					"is_verified": true,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errAlreadyVerified
			}
			return nil
		})
		if err == nil || errors.Is(err, errAlreadyVerified) {
			if err := s.db.WithContext(ctx).First(&member, memberID).Error; err != nil {
				return nil, fmt.Errorf("reload member: %w", err)
			}
			return &member, nil
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("verify member: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("verify member: allocation conflict persisted: %w", lastErr)
}

// allocateNext computes the next registration sequence value: one past the
// highest numeric suffix among existing R-prefixed ids, or 1 when none exist.
// Suffixes are parsed in Go so a stray non-numeric id cannot poison the scan.
func allocateNext(tx *gorm.DB) (int, error) {
	var ids []string
	if err := tx.Model(&database.Member{}).
		Where("user_id LIKE ?", "R%").
		Pluck("user_id", &ids).Error; err != nil {
		return 0, fmt.Errorf("scan registration numbers: %w", err)
	}
	max := 0
	for _, id := range ids {
		n, err := strconv.Atoi(id[1:])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// randomToken returns an 8-hex-char provisional user id.
func randomToken() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// isUniqueViolation matches unique-index errors across the postgres driver
// and the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
