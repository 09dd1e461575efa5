package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"samaj/internal/auth"
	"samaj/internal/config"
	"samaj/internal/database"
	"samaj/internal/storage"
)

// admin 是一次性运维工具：创建初始工作人员账号、上传文档模板。
func main() {
	var (
		email         = flag.String("email", "", "初始工作人员邮箱（创建账号时必填）")
		name          = flag.String("name", "Staff", "工作人员姓名")
		idCardTmpl    = flag.String("id-card-template", "", "会员证模板 PDF 路径（可选）")
		certTmpl      = flag.String("certificate-template", "", "证书模板 PDF 路径（可选）")
		welcomeTmpl   = flag.String("welcome-template", "", "欢迎信模板 PDF 路径（可选）")
		uploadOnly    = flag.Bool("upload-only", false, "只上传模板，不创建账号")
		uploadTimeout = flag.Duration("upload-timeout", 30*time.Second, "模板上传超时")
	)
	flag.Parse()

	cfg := config.MustLoad()

	hasTemplates := *idCardTmpl != "" || *certTmpl != "" || *welcomeTmpl != ""
	if hasTemplates {
		if err := uploadTemplates(cfg, *idCardTmpl, *certTmpl, *welcomeTmpl, *uploadTimeout); err != nil {
			log.Fatalf("upload templates: %v", err)
		}
	}
	if *uploadOnly {
		if !hasTemplates {
			log.Fatal("--upload-only set but no template paths given")
		}
		return
	}

	e := strings.ToLower(strings.TrimSpace(*email))
	if e == "" {
		log.Fatal("missing required flag: --email")
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if err := db.AutoMigrate(&database.Member{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	var existing database.Member
	switch err := db.Where("email = ?", e).First(&existing).Error; {
	case err == nil:
		log.Fatalf("member %q already exists", e)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query member: %v", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	token, err := generateRandomPassword(6)
	if err != nil {
		log.Fatalf("generate user id: %v", err)
	}

	member := database.Member{
		Email:          e,
		Username:       e,
		PasswordHash:   hashed,
		Name:           strings.TrimSpace(*name),
		UserID:         "S" + token[:7],
		IsStaffAccount: true,
		IsVerified:     true,
	}
	if err := db.Create(&member).Error; err != nil {
		log.Fatalf("create member: %v", err)
	}

	fmt.Printf("已创建初始工作人员账号：\n")
	fmt.Printf("邮箱: %s\n", e)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
}

func uploadTemplates(cfg *config.Config, idCard, cert, welcome string, timeout time.Duration) error {
	client, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}

	uploads := []struct {
		path string
		key  string
	}{
		{idCard, cfg.Docgen.IDCardTemplateKey},
		{cert, cfg.Docgen.CertificateTemplateKey},
		{welcome, cfg.Docgen.WelcomeTemplateKey},
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, u := range uploads {
		if u.path == "" {
			continue
		}
		file, err := os.Open(u.path)
		if err != nil {
			return fmt.Errorf("open template %q: %w", u.path, err)
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return fmt.Errorf("stat template %q: %w", u.path, err)
		}
		_, err = client.UploadFile(ctx, u.key, file, info.Size(), "application/pdf")
		file.Close()
		if err != nil {
			return fmt.Errorf("upload template %q: %w", u.path, err)
		}
		log.Printf("uploaded %s -> %s", filepath.Base(u.path), u.key)
	}
	return nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
