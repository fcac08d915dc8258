// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tuneflow-go/internal/config"
	"tuneflow-go/internal/handler"
	"tuneflow-go/internal/middleware"
	"tuneflow-go/internal/model"
	"tuneflow-go/internal/push"
	"tuneflow-go/internal/repository"
	"tuneflow-go/internal/service"
	"tuneflow-go/internal/telegram"
	"tuneflow-go/pkg/database"
	"tuneflow-go/pkg/log"
	"tuneflow-go/pkg/mailer"
	"tuneflow-go/pkg/storage"
	"tuneflow-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)

	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.TuningFile{},
		&model.Modification{},
		&model.AuditLogEntry{},
		&model.Notification{},
	); err != nil {
		log.Fatal("数据库表结构迁移失败", err)
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	fileRepo := repository.NewTuningFileRepository(database.DB)
	auditRepo := repository.NewAuditLogRepository(database.DB)
	notificationRepo := repository.NewNotificationRepository(database.DB, database.RDB)
	modificationRepo := repository.NewModificationRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	mailClient := mailer.New(cfg.Email)

	// 后台任务共享的根上下文，停机时统一取消
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	registry := push.NewRegistry(
		time.Duration(cfg.Push.StaleAfterMinutes)*time.Minute,
		time.Duration(cfg.Push.HeartbeatSeconds)*time.Second,
	)
	go registry.Run(bgCtx)

	// 聊天机器人渠道在路由创建后再注入：路由依赖文件服务，
	// 文件服务依赖通知服务，这条环只能在这里手动拆开
	notifyService := service.NewNotifyService(notificationRepo, userRepo, registry, nil, mailClient)
	fileService := service.NewFileService(fileRepo, auditRepo, notifyService)
	uploadService := service.NewUploadService(modificationRepo, cfg.MinIO)
	userService := service.NewUserService(userRepo, jwtManager)

	// 6. 初始化 Telegram 机器人路由（三个独立身份）
	tgRouter, err := telegram.NewRouter(fileService, userRepo, cfg.Telegram)
	if err != nil {
		log.Fatal("Telegram 路由初始化失败", err)
	}
	notifyService.SetChatNotifier(tgRouter)
	tgRouter.Start(bgCtx)
	if cfg.Server.PublicURL != "" {
		go tgRouter.RegisterWebhooks(bgCtx, cfg.Server.PublicURL)
	} else {
		log.Warnf("未配置 public_url，跳过 Telegram webhook 注册")
	}

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// Telegram webhook 入站端点：每个身份一个路径，处理器内部校验 secret token
	r.POST("/webhook/telegram/:identity", func(c *gin.Context) {
		h, ok := tgRouter.WebhookHandler(telegram.Role(c.Param("identity")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "未知的机器人身份"})
			return
		}
		h.ServeHTTP(c.Writer, c.Request)
	})

	// 8. 注册业务路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
			}
		}

		// Upload 路由组，需要认证
		upload := apiV1.Group("/upload")
		upload.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			upload.POST("/presign", handler.NewUploadHandler(uploadService, fileService).Presign)
			upload.POST("/confirm", handler.NewUploadHandler(uploadService, fileService).Confirm)
			upload.GET("/modifications", handler.NewUploadHandler(uploadService, fileService).ListModifications)
		}

		// 客户文件路由组，需要认证
		files := apiV1.Group("/files")
		files.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			files.GET("", handler.NewFileHandler(fileService, uploadService).ListMyFiles)
			files.GET("/:fileId", handler.NewFileHandler(fileService, uploadService).GetFile)
			files.GET("/:fileId/download", handler.NewFileHandler(fileService, uploadService).Download)
		}

		// 通知路由组，需要认证
		notifications := apiV1.Group("/notifications")
		notifications.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			notifications.GET("", handler.NewNotificationHandler(notificationRepo).List)
			notifications.GET("/unread-count", handler.NewNotificationHandler(notificationRepo).UnreadCount)
			notifications.PUT("/:id/read", handler.NewNotificationHandler(notificationRepo).MarkRead)
			notifications.PUT("/read-all", handler.NewNotificationHandler(notificationRepo).MarkAllRead)
			notifications.DELETE("/:id", handler.NewNotificationHandler(notificationRepo).Delete)
		}

		// 在线推送长连接：EventSource/WebSocket 无法自定义请求头，令牌经 query 校验
		streamHandler := handler.NewStreamHandler(registry, userService, jwtManager)
		apiV1.GET("/notifications/stream", streamHandler.Stream)
		apiV1.GET("/notifications/ws", streamHandler.HandleWS)

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
		{
			adminFiles := admin.Group("/files")
			{
				adminFiles.GET("", handler.NewFileHandler(fileService, uploadService).ListAllFiles)
				adminFiles.GET("/:fileId", handler.NewFileHandler(fileService, uploadService).GetFile)
				adminFiles.PUT("/:fileId/status", handler.NewFileHandler(fileService, uploadService).SetStatus)
				adminFiles.PUT("/:fileId/estimated-time", handler.NewFileHandler(fileService, uploadService).SetEstimatedTime)
				adminFiles.PUT("/:fileId/price", handler.NewFileHandler(fileService, uploadService).SetPrice)
				adminFiles.PUT("/:fileId/payment-status", handler.NewFileHandler(fileService, uploadService).SetPaymentStatus)
				adminFiles.PUT("/:fileId/notes", handler.NewFileHandler(fileService, uploadService).SetAdminNotes)
				adminFiles.POST("/:fileId/modified/presign", handler.NewUploadHandler(uploadService, fileService).PresignModified)
				adminFiles.PUT("/:fileId/modified", handler.NewFileHandler(fileService, uploadService).AttachModified)
				adminFiles.GET("/:fileId/audit", handler.NewFileHandler(fileService, uploadService).AuditTrail)
			}
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 先取消后台任务（推送注册表、机器人消费循环），再关 HTTP 服务
	cancelBg()

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
