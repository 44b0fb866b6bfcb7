// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/Corphon/HeartSyncMCP/internal/config"
	"github.com/Corphon/HeartSyncMCP/internal/di"
	"github.com/Corphon/HeartSyncMCP/internal/services"
	"github.com/Corphon/HeartSyncMCP/internal/storage"

	// 注册LLM提供者
	_ "github.com/Corphon/HeartSyncMCP/internal/llm/providers/openai"
	_ "github.com/Corphon/HeartSyncMCP/internal/llm/providers/openrouter"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 存储在最底层，所有游戏状态都经过它
	store, err := storage.NewFileStore(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	container.Register("storage", store)

	// LLM服务可以在未配置密钥的情况下启动（提交消息时报配置错误）
	llmService := services.NewLLMService()
	container.Register("llm", llmService)

	profileService, err := services.NewProfileService(cfg.CharactersDir)
	if err != nil {
		return fmt.Errorf("failed to initialize profiles: %w", err)
	}
	container.Register("profile", profileService)

	scoreService := services.NewScoreService(store)
	container.Register("score", scoreService)

	dialogueService := services.NewDialogueService(store)
	container.Register("dialogue", dialogueService)

	// 编排器最后创建，依赖以上全部服务
	chatService := services.NewChatService(
		llmService,
		profileService,
		scoreService,
		dialogueService,
		cfg.PersonaScriptPath,
	)
	container.Register("chat", chatService)

	return nil
}
