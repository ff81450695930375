package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/littleoaks/admissions-api/api/swagger"
	"github.com/littleoaks/admissions-api/internal/handler"
	"github.com/littleoaks/admissions-api/internal/middleware"
	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/repository"
	"github.com/littleoaks/admissions-api/internal/service"
	"github.com/littleoaks/admissions-api/pkg/cache"
	"github.com/littleoaks/admissions-api/pkg/config"
	"github.com/littleoaks/admissions-api/pkg/database"
	"github.com/littleoaks/admissions-api/pkg/logger"
	corsmiddleware "github.com/littleoaks/admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/littleoaks/admissions-api/pkg/middleware/requestid"
)

// @title Little Oaks Admissions API
// @version 1.0.0
// @description Admissions pipeline: inquiries, waitlist, tours, offers and enrollment conversion
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Analytics.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Analytics.CacheTTL, logr, true)
		}
	}

	userRepo := repository.NewUserRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)
	tourSlotRepo := repository.NewTourSlotRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "admissions-api",
	})
	waitlistService := service.NewWaitlistService(waitlistRepo, validate, logr)
	tourService := service.NewTourService(tourSlotRepo, waitlistRepo, service.TourServiceConfig{
		DefaultCapacity:    cfg.Tours.DefaultCapacity,
		BulkCreateMaxSlots: cfg.Tours.BulkCreateMaxOcc,
	}, validate, logr)
	offerService := service.NewOfferService(waitlistRepo, applicationRepo, db, service.OfferServiceConfig{
		DefaultExpiry: cfg.Admissions.OfferDefaultExpiry,
	}, validate, logr)
	userService := service.NewUserService(userRepo, validate, logr)
	analyticsService := service.NewAnalyticsService(analyticsRepo, cacheService, metricsService, logr)
	waitlistService.SetAnalytics(analyticsService)
	tourService.SetAnalytics(analyticsService)
	offerService.SetAnalytics(analyticsService)
	exportService := service.NewExportService(waitlistRepo, analyticsRepo, nil, nil, logr)

	defaultTenant := cfg.Admissions.DefaultTenantID
	authHandler := handler.NewAuthHandler(authService)
	publicHandler := handler.NewPublicHandler(waitlistService, tourService, defaultTenant, cfg.Tours.PublicBooking)
	waitlistHandler := handler.NewWaitlistHandler(waitlistService, exportService, defaultTenant)
	tourHandler := handler.NewTourHandler(tourService, defaultTenant)
	offerHandler := handler.NewOfferHandler(offerService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, exportService, defaultTenant)
	userHandler := handler.NewUserHandler(userService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	public := api.Group("/public")
	{
		public.POST("/inquiries", publicHandler.SubmitInquiry)
		public.GET("/inquiries/status", publicHandler.InquiryStatus)
		public.GET("/tour-slots", publicHandler.AvailableSlots)
		public.POST("/tour-bookings", publicHandler.BookTour)
	}

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		authed := auth.Group("", middleware.JWT(authService))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	staffRoles := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleAdmissions)
	tourRoles := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleAdmissions, models.RoleTourGuide)

	waitlist := api.Group("/waitlist", middleware.JWT(authService))
	{
		waitlist.GET("", staffRoles, waitlistHandler.List)
		waitlist.POST("", staffRoles, waitlistHandler.Create)
		if cfg.Exports.Enabled {
			waitlist.GET("/export", staffRoles, waitlistHandler.Export)
		}
		waitlist.GET("/:id", staffRoles, waitlistHandler.Get)
		waitlist.PUT("/:id", staffRoles, waitlistHandler.Update)
		waitlist.DELETE("/:id", staffRoles, waitlistHandler.Delete)
		waitlist.POST("/:id/transition", staffRoles,
			middleware.Audit(userRepo, models.AuditActionStageTransition, "waitlist_entry"), waitlistHandler.Transition)
		waitlist.POST("/:id/withdraw", staffRoles,
			middleware.Audit(userRepo, models.AuditActionStageTransition, "waitlist_entry"), waitlistHandler.Withdraw)
		waitlist.POST("/:id/attendance", tourRoles,
			middleware.Audit(userRepo, models.AuditActionStageTransition, "waitlist_entry"), tourHandler.RecordAttendance)
		waitlist.POST("/:id/offer", staffRoles,
			middleware.Audit(userRepo, models.AuditActionOffer, "waitlist_entry"), offerHandler.MakeOffer)
		waitlist.POST("/:id/offer/accept", staffRoles,
			middleware.Audit(userRepo, models.AuditActionOffer, "waitlist_entry"), offerHandler.Accept)
		waitlist.POST("/:id/offer/decline", staffRoles,
			middleware.Audit(userRepo, models.AuditActionOffer, "waitlist_entry"), offerHandler.Decline)
	}

	tours := api.Group("/tour-slots", middleware.JWT(authService))
	{
		tours.GET("", tourRoles, tourHandler.ListSlots)
		tours.POST("", staffRoles,
			middleware.Audit(userRepo, models.AuditActionSlotManagement, "tour_slot"), tourHandler.CreateSlot)
		tours.POST("/bulk", staffRoles,
			middleware.Audit(userRepo, models.AuditActionSlotManagement, "tour_slot"), tourHandler.BulkCreateSlots)
		tours.PUT("/:id", staffRoles,
			middleware.Audit(userRepo, models.AuditActionSlotManagement, "tour_slot"), tourHandler.UpdateSlot)
		tours.DELETE("/:id", staffRoles,
			middleware.Audit(userRepo, models.AuditActionSlotManagement, "tour_slot"), tourHandler.DeleteSlot)
	}

	api.POST("/tour-bookings", middleware.JWT(authService), tourRoles,
		middleware.Audit(userRepo, models.AuditActionTourBooking, "waitlist_entry"), tourHandler.BookTour)

	adminRoles := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	users := api.Group("/users", middleware.JWT(authService))
	{
		users.GET("", adminRoles, userHandler.List)
		users.POST("", adminRoles, userHandler.Create)
		users.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.PUT("/:id", adminRoles, userHandler.Update)
		users.DELETE("/:id", adminRoles, userHandler.Delete)
	}

	analytics := api.Group("/analytics", middleware.JWT(authService), staffRoles)
	{
		analytics.GET("/pipeline", analyticsHandler.Pipeline)
		analytics.GET("/system", analyticsHandler.System)
		if cfg.Exports.Enabled {
			analytics.GET("/pipeline/export", analyticsHandler.Export)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
