// internal/api/handlers.go
package api

import (
	"net/http"

	"github.com/Corphon/HeartSyncMCP/internal/config"
	"github.com/Corphon/HeartSyncMCP/internal/services"
	"github.com/Corphon/HeartSyncMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 聚合所有API处理函数及其依赖
type Handler struct {
	ProfileService *services.ProfileService
	ChatService    *services.ChatService
	LLMService     *services.LLMService

	hub      *EventHub
	response *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(profiles *services.ProfileService, chat *services.ChatService, llmService *services.LLMService, hub *EventHub) *Handler {
	return &Handler{
		ProfileService: profiles,
		ChatService:    chat,
		LLMService:     llmService,
		hub:            hub,
		response:       NewResponseHelper(),
	}
}

// HealthCheck 存活检查
func (h *Handler) HealthCheck(c *gin.Context) {
	h.response.Success(c, gin.H{
		"status":        "ok",
		"llm_ready":     h.LLMService.IsReady(),
		"persona_ready": h.ChatService.PersonaReady(),
	})
}

// ListCharacters 返回所有可约会的角色
func (h *Handler) ListCharacters(c *gin.Context) {
	h.response.Success(c, h.ProfileService.ListProfiles())
}

// GetCharacter 返回单个角色配置
func (h *Handler) GetCharacter(c *gin.Context) {
	profile, err := h.ProfileService.GetProfile(c.Param("id"))
	if err != nil {
		h.response.Error(c, http.StatusNotFound, ErrorCharacterNotFound, err.Error())
		return
	}

	h.response.Success(c, profile)
}

// GetGameState 返回角色当前的计数、状态和展示用历史
func (h *Handler) GetGameState(c *gin.Context) {
	state, err := h.ChatService.GetState(c.Param("id"))
	if err != nil {
		h.response.FromAppError(c, err)
		return
	}

	h.response.Success(c, state)
}

// sendMessageRequest 回合提交请求体
type sendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// SendMessage 提交一条用户消息并执行一个回合
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "request body must contain a message", err.Error())
		return
	}

	result, err := h.ChatService.SendMessage(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		h.response.FromAppError(c, err)
		return
	}

	h.response.Success(c, result)
}

// ResetGame 原子重置一个角色的对局
func (h *Handler) ResetGame(c *gin.Context) {
	if err := h.ChatService.Reset(c.Param("id")); err != nil {
		h.response.FromAppError(c, err)
		return
	}

	h.response.Success(c, gin.H{"characterId": c.Param("id")}, "game reset")
}

// RemoveMatch 解除匹配：等同于重置并遗忘该角色的所有本地状态
func (h *Handler) RemoveMatch(c *gin.Context) {
	if err := h.ChatService.Reset(c.Param("id")); err != nil {
		h.response.FromAppError(c, err)
		return
	}

	h.response.Success(c, gin.H{"characterId": c.Param("id")}, "match removed")
}

// GetLLMStatus 返回LLM提供者的就绪状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.response.Success(c, gin.H{
		"provider": h.LLMService.GetProviderName(),
		"ready":    h.LLMService.IsReady(),
		"state":    h.LLMService.GetReadyState(),
		"models":   h.LLMService.GetSupportedModels(),
	})
}

// updateLLMConfigRequest LLM配置更新请求体
type updateLLMConfigRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config" binding:"required"`
}

// UpdateLLMConfig 切换LLM提供者或更新其配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req updateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "request body must contain provider and config", err.Error())
		return
	}

	if err := h.LLMService.UpdateProvider(req.Provider, req.Config); err != nil {
		h.response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, err.Error())
		return
	}

	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		utils.GetLogger().Error("failed to persist LLM config", map[string]interface{}{
			"error": err.Error(),
		})
	}

	h.response.Success(c, gin.H{
		"provider": h.LLMService.GetProviderName(),
		"ready":    h.LLMService.IsReady(),
	})
}

// CharacterEvents 升级到WebSocket并订阅一个角色的回合事件
func (h *Handler) CharacterEvents(c *gin.Context) {
	characterID := c.Param("id")

	if _, err := h.ProfileService.GetProfile(characterID); err != nil {
		h.response.Error(c, http.StatusNotFound, ErrorCharacterNotFound, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := &wsClient{
		conn:        conn,
		characterID: characterID,
		send:        make(chan []byte, 16),
	}

	h.hub.register(client)
	h.hub.serveClient(client)
}
