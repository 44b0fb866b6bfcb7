// internal/services/llm_service.go
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/Corphon/HeartSyncMCP/internal/config"
	"github.com/Corphon/HeartSyncMCP/internal/llm"
	"github.com/Corphon/HeartSyncMCP/internal/utils"
)

// LLMService 包装具体的LLM提供者并跟踪其就绪状态
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	isReady       bool
	readyState    string
}

// ChatCompletionRequest 聊天补全请求
type ChatCompletionRequest struct {
	Model       string                 `json:"model"`
	Messages    []llm.Message          `json:"messages"`
	Temperature float32                `json:"temperature"`
	MaxTokens   int                    `json:"max_tokens"`
	ExtraParams map[string]interface{} `json:"extra_params,omitempty"`
}

// ChatCompletionResponse 聊天补全响应
type ChatCompletionResponse struct {
	ID      string
	Choices []ChatCompletionChoice
	Usage   Usage
}

// ChatCompletionChoice 响应中的一个选择
type ChatCompletionChoice struct {
	Message      llm.Message
	FinishReason string
}

// Usage 用量统计
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NewLLMService 根据当前配置创建LLM服务
// A missing credential is not fatal: the service starts in a not-ready
// state and submission is refused with a configuration error.
func NewLLMService() *LLMService {
	s := &LLMService{}

	cfg := config.GetCurrentConfig()
	if err := s.configure(cfg.LLMProvider, cfg.LLMConfig); err != nil {
		utils.GetLogger().Warn("LLM provider not ready", map[string]interface{}{
			"provider": cfg.LLMProvider,
			"reason":   err.Error(),
		})
	}

	return s
}

// NewLLMServiceWithProvider 用现成的提供者创建服务，测试用
func NewLLMServiceWithProvider(name string, provider llm.Provider) *LLMService {
	return &LLMService{
		provider:     provider,
		providerName: name,
		isReady:      true,
		readyState:   "ready",
	}
}

func (s *LLMService) configure(providerName string, providerConfig map[string]string) error {
	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.isReady = false

	if providerConfig == nil || providerConfig["api_key"] == "" {
		s.readyState = "missing api_key"
		return fmt.Errorf("provider %s: missing api_key", providerName)
	}

	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		s.readyState = err.Error()
		return err
	}

	s.provider = provider
	s.providerName = providerName
	s.isReady = true
	s.readyState = "ready"

	return nil
}

// UpdateProvider 切换提供者或更新其配置
func (s *LLMService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	return s.configure(providerName, providerConfig)
}

// IsReady 检查服务是否可以发起远程调用
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady
}

// GetReadyState 返回就绪状态描述
func (s *LLMService) GetReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if s.readyState == "" {
		return "not configured"
	}
	return s.readyState
}

// GetProviderName 返回当前提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// GetSupportedModels 返回当前提供者支持的模型
func (s *LLMService) GetSupportedModels() []string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if s.provider == nil {
		return []string{}
	}
	return s.provider.GetSupportedModels()
}

// CreateChatCompletion 发起一次聊天补全调用
// The ordered role-tagged message list is passed through to the
// provider untouched.
func (s *LLMService) CreateChatCompletion(ctx context.Context, request ChatCompletionRequest) (ChatCompletionResponse, error) {
	s.providerMutex.RLock()
	provider := s.provider
	providerName := s.providerName
	ready := s.isReady
	s.providerMutex.RUnlock()

	if !ready || provider == nil {
		return ChatCompletionResponse{}, fmt.Errorf("LLM provider not configured")
	}

	req := llm.CompletionRequest{
		Model:       request.Model,
		Messages:    request.Messages,
		Temperature: request.Temperature,
		MaxTokens:   request.MaxTokens,
		ExtraParams: request.ExtraParams,
	}

	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		return ChatCompletionResponse{}, err
	}

	return ChatCompletionResponse{
		ID: resp.ModelName + "-" + providerName,
		Choices: []ChatCompletionChoice{
			{
				Message: llm.Message{
					Role:    "assistant",
					Content: resp.Text,
				},
				FinishReason: resp.FinishReason,
			},
		},
		Usage: Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      resp.TokensUsed,
		},
	}, nil
}
