package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Member 表示组织中的会员账号。
// UserID 在注册时为 8 位随机编号，核验通过后改写为 R 前缀的正式注册号。
type Member struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;size:255"`
	Username     string `gorm:"uniqueIndex;size:255"`
	PasswordHash string `gorm:"size:255"`
	Name         string `gorm:"size:255"`
	Phone        string `gorm:"size:15"`
	DOB          *time.Time

	UserID string `gorm:"uniqueIndex;size:50"`

	Gender     string `gorm:"size:10"`
	Profession string `gorm:"size:100"`

	PhotoObjectKey string `gorm:"size:512"`
	AadharNumber   string `gorm:"size:12"`
	PanNumber      string `gorm:"size:10"`

	Street      string `gorm:"size:255"`
	SubDistrict string `gorm:"size:100"`
	District    string `gorm:"size:100"`
	City        string `gorm:"size:100"`
	Division    string `gorm:"size:100"`
	State       string `gorm:"size:100"`
	Country     string `gorm:"size:100"`
	PostalCode  string `gorm:"size:20"`

	ReferredByID *uint
	ReferredBy   *Member `gorm:"foreignKey:ReferredByID"`

	IsVerified        bool `gorm:"default:false"`
	IsBlocked         bool `gorm:"default:false"`
	IsVolunteer       bool `gorm:"default:false"`
	IsAdminAccount    bool `gorm:"default:false"`
	IsBusinessAccount bool `gorm:"default:false"`
	IsStaffAccount    bool `gorm:"default:false"`
	IsMemberAccount   bool `gorm:"default:false"`
	IsFieldWorker     bool `gorm:"default:false"`
}

// Payment 记录一次网关收款。金额以最小货币单位（paise）保存。
type Payment struct {
	gorm.Model
	Name       string `gorm:"size:100"`
	Email      string `gorm:"size:255"`
	Phone      string `gorm:"size:15"`
	Amount     int64
	Currency   string `gorm:"size:8;default:INR"`
	PaymentFor string `gorm:"size:255"`
	Status     string `gorm:"size:10;default:PENDING"`
	Notes      string

	OrderID          string `gorm:"uniqueIndex;size:100"`
	GatewayPaymentID string `gorm:"size:100"`
	Method           string `gorm:"size:32"`
	Details          datatypes.JSON
}

// Wing 是志愿者体系的最上层分支。
type Wing struct {
	gorm.Model
	Name        string `gorm:"size:100"`
	Description string
	Levels      []Level `gorm:"constraint:OnDelete:CASCADE"`
}

// Level 归属于某个 Wing。
type Level struct {
	gorm.Model
	Name         string `gorm:"size:100"`
	WingID       uint   `gorm:"index"`
	Designations []Designation `gorm:"constraint:OnDelete:CASCADE"`
}

// Designation 是某一层级下的职务，带职位总数限制。
type Designation struct {
	gorm.Model
	Title          string `gorm:"size:100"`
	LevelID        uint   `gorm:"index"`
	TotalPositions uint
}

// Volunteer 将会员挂接到志愿者体系中的具体职务。
type Volunteer struct {
	gorm.Model
	MemberID      uint   `gorm:"uniqueIndex"`
	Member        Member `gorm:"constraint:OnDelete:CASCADE"`
	PhoneNumber   string `gorm:"uniqueIndex;size:15"`
	WingID        *uint
	LevelID       *uint
	DesignationID *uint
	JoinedDate    time.Time
}

// Category 是商户目录的一级分类。
type Category struct {
	gorm.Model
	Name           string `gorm:"uniqueIndex;size:100"`
	ImageObjectKey string `gorm:"size:512"`
	Description    string
	SubCategories  []SubCategory `gorm:"constraint:OnDelete:CASCADE"`
}

// SubCategory 是分类下的二级分类，(category, name) 唯一。
type SubCategory struct {
	gorm.Model
	CategoryID     uint   `gorm:"uniqueIndex:idx_subcategory_category_name"`
	Name           string `gorm:"uniqueIndex:idx_subcategory_category_name;size:100"`
	ImageObjectKey string `gorm:"size:512"`
	Description    string
}

// Vyapari 表示目录中的商户条目。地址与坐标以 JSONB 存储，
// 以便按 state/district/city 做键值过滤。
type Vyapari struct {
	gorm.Model
	Name             string `gorm:"uniqueIndex;size:255"`
	ShortDescription string
	LongDescription  string
	LogoURL          string `gorm:"size:500"`
	CoverImageURL    string `gorm:"size:500"`
	BusinessType     string `gorm:"size:100"`
	CategoryID       *uint
	Category         *Category `gorm:"constraint:OnDelete:SET NULL"`
	SubCategoryID    *uint
	SubCategory      *SubCategory `gorm:"constraint:OnDelete:SET NULL"`
	Email            *string      `gorm:"uniqueIndex;size:255"`
	Phone            string       `gorm:"size:20"`
	Owner            string       `gorm:"size:255"`
	EmployeeCount    *uint
	Tags             string `gorm:"size:500"`
	InstaURL         string `gorm:"size:500"`
	FacebookURL      string `gorm:"size:500"`
	WebsiteURL       string `gorm:"size:500"`
	Address          datatypes.JSON
	Location         datatypes.JSON
	IsVerified       bool `gorm:"default:false"`
	IsBlocked        bool `gorm:"default:false"`
	ReferredByID     *uint
	ReferredBy       *Member `gorm:"foreignKey:ReferredByID"`
}

// Advertisement 是商户投放的广告位。AdType 决定其展示范围：
// global/state/district/category/subcategory。
type Advertisement struct {
	gorm.Model
	VyapariID uint    `gorm:"index"`
	Vyapari   Vyapari `gorm:"constraint:OnDelete:CASCADE"`
	AdType    string  `gorm:"size:20;index"`
	ImageURL  string  `gorm:"size:500"`
	TargetURL string  `gorm:"size:500"`
	StartsAt  *time.Time
	EndsAt    *time.Time
	IsActive  bool `gorm:"default:true"`
}

// State 与 District 是地址选择用的查找表。
type State struct {
	gorm.Model
	Name      string     `gorm:"uniqueIndex;size:100"`
	Districts []District `gorm:"constraint:OnDelete:CASCADE"`
}

type District struct {
	gorm.Model
	Name    string `gorm:"uniqueIndex:idx_district_state_name;size:100"`
	StateID uint   `gorm:"uniqueIndex:idx_district_state_name"`
}
