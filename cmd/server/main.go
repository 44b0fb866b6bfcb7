// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/HeartSyncMCP/internal/api"
	"github.com/Corphon/HeartSyncMCP/internal/app"
	"github.com/Corphon/HeartSyncMCP/internal/config"
	"github.com/Corphon/HeartSyncMCP/internal/di"
	"github.com/Corphon/HeartSyncMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("starting HeartSync server...")

	// 1. 首先加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. 创建必要的目录
	createDirectories(baseConfig)

	// 3. 初始化配置系统
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("failed to initialize config system: %v", err)
	}

	// 4. 初始化日志
	logFile := filepath.Join(baseConfig.LogDir, "heartsync.log")
	if err := utils.InitLogger(logFile); err != nil {
		log.Printf("warning: failed to initialize log file: %v", err)
	}

	// 5. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(); err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}

	// 6. 健康检查 + 路由
	if err := performHealthCheck(); err != nil {
		log.Printf("warning: service health check: %v", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("failed to set up router: %v", err)
	}

	// 7. 启动服务器
	log.Printf("listening on port %s", baseConfig.Port)

	setupGracefulShutdown(router, baseConfig.Port)
}

// 健康检查函数
func performHealthCheck() error {
	container := di.GetContainer()

	// 检查关键服务是否已注册
	criticalServices := []string{"llm", "profile", "score", "dialogue", "chat"}

	for _, serviceName := range criticalServices {
		if service := container.Get(serviceName); service == nil {
			return fmt.Errorf("critical service not registered: %s", serviceName)
		}
	}

	return nil
}

// 优雅关闭函数
func setupGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// 在新的 goroutine 中启动服务器
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced server shutdown: %v", err)
	}

	log.Println("server stopped")
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "state"),
		cfg.CharactersDir,
		filepath.Dir(cfg.PersonaScriptPath),
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}
}
