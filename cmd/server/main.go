package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hospital_backoffice_go/internal/config"
	"hospital_backoffice_go/internal/handler"
	"hospital_backoffice_go/internal/middleware"
	"hospital_backoffice_go/internal/notify"
	"hospital_backoffice_go/internal/repository"
	"hospital_backoffice_go/internal/service"
	"hospital_backoffice_go/pkg/database"
	"hospital_backoffice_go/pkg/log"
	"hospital_backoffice_go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	config.Init("configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	log.Info("Server started")

	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.RunMigrate(); err != nil {
		log.Fatal("Failed to run migrations", err)
		return
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	jwtManager := token.NewJWTManager(
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessTokenExpireHours)*time.Hour,
		time.Duration(cfg.JWT.RefreshTokenExpireDays)*24*time.Hour,
	)

	// 仓库层
	userRepo := repository.NewUserRepository(database.DB)
	nodeRepo := repository.NewOrganizationNodeRepository(database.DB)
	ruleRepo := repository.NewAllocationRuleRepository(database.DB)
	budgetRepo := repository.NewCostCenterBudgetRepository(database.DB)
	assetRepo := repository.NewAssetRepository(database.DB)
	permRepo := repository.NewPermissionRepository(database.DB)

	// 领域信号通过 websocket hub 推给在线的后台客户端
	hub := notify.NewHub()

	// 服务层
	userService := service.NewUserService(userRepo, nodeRepo, jwtManager)
	hierarchyService := service.NewHierarchyService(nodeRepo)
	depreciationService := service.NewDepreciationService(assetRepo, nodeRepo)
	allocationService := service.NewAllocationService(ruleRepo, nodeRepo, hub)
	budgetService := service.NewBudgetService(budgetRepo, nodeRepo, hub, cfg.Budget.ThresholdPercentage)
	moduleAccessService := service.NewModuleAccessService(permRepo)

	// Handler 层
	userHandler := handler.NewUserHandler(userService)
	orgNodeHandler := handler.NewOrgNodeHandler(hierarchyService)
	allocationHandler := handler.NewAllocationHandler(allocationService)
	budgetHandler := handler.NewBudgetHandler(budgetService)
	assetHandler := handler.NewAssetHandler(depreciationService)
	moduleAccessHandler := handler.NewModuleAccessHandler(moduleAccessService)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	// 公开路由
	api := r.Group("/api/v1")
	api.POST("/auth/register", userHandler.Register)
	api.POST("/auth/login", userHandler.Login)

	// 登录用户路由
	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(jwtManager, userService))
	{
		authed.POST("/auth/logout", userHandler.Logout)
		authed.GET("/users/profile", userHandler.GetProfile)

		authed.GET("/org-nodes", orgNodeHandler.List)
		authed.GET("/org-nodes/tree", orgNodeHandler.GetTree)
		authed.GET("/org-nodes/:id", orgNodeHandler.Get)

		authed.GET("/assets", assetHandler.List)
		authed.GET("/assets/:id", assetHandler.Get)
		authed.GET("/assets/:id/depreciation", assetHandler.Depreciation)
		authed.GET("/assets/:id/schedule", assetHandler.Schedule)
		authed.GET("/assets/:id/movements", assetHandler.Movements)

		authed.GET("/budgets", budgetHandler.ListByCostCenter)
		authed.GET("/budgets/:id", budgetHandler.Get)
		authed.GET("/budgets/:id/revisions", budgetHandler.Revisions)

		// 领域信号推送通道
		authed.GET("/ws/notifications", hub.Serve)
	}

	// 管理员路由
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
	{
		admin.GET("/users", userHandler.ListUsers)
		admin.PUT("/users/:userId/cost-center", userHandler.AssignCostCenter)

		admin.POST("/org-nodes", orgNodeHandler.Create)
		admin.PUT("/org-nodes/:id", orgNodeHandler.Update)
		admin.PUT("/org-nodes/:id/move", orgNodeHandler.Move)
		admin.DELETE("/org-nodes/:id", orgNodeHandler.Delete)

		admin.POST("/allocation-rules", allocationHandler.Create)
		admin.GET("/allocation-rules", allocationHandler.List)
		admin.GET("/allocation-rules/:id", allocationHandler.Get)
		admin.PUT("/allocation-rules/:id", allocationHandler.Update)
		admin.DELETE("/allocation-rules/:id", allocationHandler.Delete)
		admin.POST("/allocation-rules/:id/submit", allocationHandler.Submit)
		admin.POST("/allocation-rules/:id/decide", allocationHandler.Decide)
		admin.POST("/allocation-rules/:id/execute", allocationHandler.Execute)

		admin.POST("/budgets", budgetHandler.Create)
		admin.PUT("/budgets/:id/actual", budgetHandler.RecordActual)
		admin.POST("/budgets/:id/revise", budgetHandler.Revise)

		admin.POST("/assets", assetHandler.Create)
		admin.POST("/assets/:id/move", assetHandler.Move)

		admin.GET("/modules", moduleAccessHandler.ListModules)
		admin.GET("/roles/:roleId/permissions", moduleAccessHandler.RolePermissions)
		admin.PUT("/roles/:roleId/permissions", moduleAccessHandler.SyncModuleAccess)
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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
