// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/Corphon/HeartSyncMCP/internal/config"
	"github.com/Corphon/HeartSyncMCP/internal/di"
	"github.com/Corphon/HeartSyncMCP/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
// Services come from the DI container; the router never creates them.
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	container := di.GetContainer()

	profileService, ok := container.Get("profile").(*services.ProfileService)
	if !ok {
		return nil, fmt.Errorf("profile service not initialized")
	}

	chatService, ok := container.Get("chat").(*services.ChatService)
	if !ok {
		return nil, fmt.Errorf("chat service not initialized")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("llm service not initialized")
	}

	// 回合事件从编排器流向WebSocket客户端
	hub := NewEventHub()
	chatService.SetEventListener(hub.Broadcast)

	handler := NewHandler(profileService, chatService, llmService, hub)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	r.GET("/health", handler.HealthCheck)

	// WebSocket 事件流
	r.GET("/ws/characters/:id", handler.CharacterEvents)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		characters := api.Group("/characters")
		{
			characters.GET("", handler.ListCharacters)
			characters.GET("/:id", handler.GetCharacter)
			characters.GET("/:id/state", handler.GetGameState)
			characters.POST("/:id/reset", handler.ResetGame)
			characters.DELETE("/:id/match", handler.RemoveMatch)

			// 回合提交是唯一触发远程调用的接口，单独限流
			limiter := NewRateLimiter()
			characters.POST("/:id/messages",
				rateLimitMiddleware(limiter, 30, time.Minute),
				handler.SendMessage)
		}

		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}
	}

	return r, nil
}
