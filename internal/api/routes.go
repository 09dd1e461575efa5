package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"samaj/internal/api/middleware"
	"samaj/internal/auth"
	"samaj/internal/documents"
	"samaj/internal/identity"
	"samaj/internal/payments"
	"samaj/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
	generator *documents.Generator,
	gateway payments.Gateway,
	clamdAddr string,
) {
	identitySvc := identity.NewService(db)

	memberHandler := NewMemberHandler(db, identitySvc, asynqClient, logger)
	authHandler := NewAuthHandler(db, authService, redisClient, logger)
	documentHandler := NewDocumentHandler(db, generator, asynqClient, logger)
	photoHandler := NewPhotoHandler(db, storageClient, logger, clamdAddr)
	paymentHandler := NewPaymentHandler(db, gateway, logger)
	volunteerHandler := NewVolunteerHandler(db, logger)
	vyapariHandler := NewVyapariHandler(db, logger)
	dashboardHandler := NewDashboardHandler(db, logger)
	wsHandler := NewWsHandler(redisClient, authService, logger, nil)

	authMiddleware := middleware.AuthMiddleware(authService)
	staffOnly := middleware.StaffOnly()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		memberGroup := v1.Group("/members")
		{
			memberGroup.POST("/join", memberHandler.Join)
			memberGroup.POST("/member", authMiddleware, memberHandler.Upsert)
			memberGroup.POST("", authMiddleware, staffOnly, memberHandler.Create)
			memberGroup.GET("", authMiddleware, staffOnly, memberHandler.List)
			memberGroup.GET("/:id", authMiddleware, memberHandler.Detail)
			memberGroup.POST("/:id/verify", authMiddleware, staffOnly, memberHandler.Verify)
			memberGroup.POST("/photo", authMiddleware, photoHandler.Upload)
			memberGroup.GET("/photo", authMiddleware, photoHandler.GetURL)
		}

		documentGroup := v1.Group("/documents")
		documentGroup.Use(authMiddleware)
		{
			documentGroup.POST("/generate", documentHandler.Generate)
		}

		paymentGroup := v1.Group("/payments")
		{
			paymentGroup.POST("/order", paymentHandler.CreateOrder)
			paymentGroup.POST("/verify", paymentHandler.VerifyPayment)
			paymentGroup.GET("", authMiddleware, staffOnly, paymentHandler.List)
		}

		volunteerGroup := v1.Group("/volunteers")
		volunteerGroup.Use(authMiddleware)
		{
			volunteerGroup.GET("/wings", volunteerHandler.ListWings)
			volunteerGroup.POST("/wings", staffOnly, volunteerHandler.CreateWing)
			volunteerGroup.POST("/levels", staffOnly, volunteerHandler.CreateLevels)
			volunteerGroup.GET("/designations", volunteerHandler.ListDesignations)
			volunteerGroup.POST("/designations", staffOnly, volunteerHandler.CreateDesignation)
			volunteerGroup.GET("", volunteerHandler.ListVolunteers)
			volunteerGroup.POST("", staffOnly, volunteerHandler.Enroll)
		}

		vyapariGroup := v1.Group("/vyaparis")
		{
			vyapariGroup.GET("", vyapariHandler.ListVyaparis)
			vyapariGroup.GET("/:id", vyapariHandler.VyapariDetail)
			vyapariGroup.POST("", authMiddleware, vyapariHandler.CreateVyapari)
			vyapariGroup.GET("/categories", vyapariHandler.ListCategories)
			vyapariGroup.POST("/categories", authMiddleware, staffOnly, vyapariHandler.CreateCategory)
			vyapariGroup.POST("/subcategories", authMiddleware, staffOnly, vyapariHandler.CreateSubCategory)
			vyapariGroup.GET("/advertisements", vyapariHandler.ListAdvertisements)
			vyapariGroup.POST("/advertisements", authMiddleware, vyapariHandler.CreateAdvertisement)
		}

		dashboardGroup := v1.Group("/dashboard")
		dashboardGroup.Use(authMiddleware)
		{
			dashboardGroup.GET("/me", dashboardHandler.Me)
			dashboardGroup.GET("/user-count", dashboardHandler.UserCount)
			dashboardGroup.GET("/referrals", dashboardHandler.Referrals)
			dashboardGroup.GET("/referrals/:id", staffOnly, dashboardHandler.ReferralsOf)
			dashboardGroup.GET("/states", dashboardHandler.States)
			dashboardGroup.GET("/districts", dashboardHandler.Districts)
		}
	}
}
