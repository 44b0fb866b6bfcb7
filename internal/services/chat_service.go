// internal/services/chat_service.go
package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/Corphon/HeartSyncMCP/internal/config"
	"github.com/Corphon/HeartSyncMCP/internal/errors"
	"github.com/Corphon/HeartSyncMCP/internal/llm"
	"github.com/Corphon/HeartSyncMCP/internal/models"
	"github.com/Corphon/HeartSyncMCP/internal/parser"
	"github.com/Corphon/HeartSyncMCP/internal/utils"
)

// chatTemperature 约会对话的采样温度：有创造性但有边界
const chatTemperature = 0.8

// TurnResult 一次成功回合的完整结果
type TurnResult struct {
	CharacterID string            `json:"characterId"`
	Message     string            `json:"message"` // 解析后的展示文本
	Raw         string            `json:"raw"`     // 原始补全文本，按原样入历史
	Flags       models.FlagDelta  `json:"flagsDetected"`
	Tally       models.FlagTally  `json:"tally"`
	Status      models.GameStatus `json:"status,omitempty"`
	StatusHint  models.GameStatus `json:"statusHint,omitempty"` // 模型侧信号，仅供参考
}

// GameState 一个角色当前的完整游戏状态
type GameState struct {
	CharacterID string            `json:"characterId"`
	Tally       models.FlagTally  `json:"tally"`
	Status      models.GameStatus `json:"status,omitempty"`
	History     []DisplayMessage  `json:"history"`
}

// DisplayMessage 渲染用的历史消息，助手内容已提取为展示文本
type DisplayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnEvent 推送给UI的回合事件
type TurnEvent struct {
	Type        string            `json:"type"` // "turn" 或 "reset"
	CharacterID string            `json:"characterId"`
	Message     string            `json:"message,omitempty"`
	Tally       models.FlagTally  `json:"tally"`
	Status      models.GameStatus `json:"status,omitempty"`
}

// conversation 单个角色对话的并发状态
type conversation struct {
	mu       sync.Mutex
	inFlight bool
}

// ChatService 回合编排器
// Per character it enforces the Idle / AwaitingResponse / Blocked state
// machine: one outstanding remote call, optimistic user append, raw
// assistant text stored verbatim, parsed delta applied exactly once,
// submission refused once the game is decided.
type ChatService struct {
	LLMService      *LLMService
	ProfileService  *ProfileService
	ScoreService    *ScoreService
	DialogueService *DialogueService

	personaScript string
	personaErr    error

	convMutex     sync.Mutex
	conversations map[string]*conversation

	listenerMutex sync.RWMutex
	listener      func(TurnEvent)
}

// NewChatService 创建回合编排服务并加载人设脚本
// A missing persona script is recoverable: submission is disabled with
// a configuration error until the asset is restored.
func NewChatService(llmService *LLMService, profiles *ProfileService, scores *ScoreService, dialogues *DialogueService, personaScriptPath string) *ChatService {
	s := &ChatService{
		LLMService:      llmService,
		ProfileService:  profiles,
		ScoreService:    scores,
		DialogueService: dialogues,
		conversations:   make(map[string]*conversation),
	}

	data, err := os.ReadFile(personaScriptPath)
	if err != nil {
		s.personaErr = fmt.Errorf("persona script unavailable: %w", err)
		utils.GetLogger().Error("failed to load persona script", map[string]interface{}{
			"path":  personaScriptPath,
			"error": err.Error(),
		})
	} else {
		s.personaScript = string(data)
	}

	return s
}

// SetEventListener 注册回合事件监听器（WebSocket推送用）
func (s *ChatService) SetEventListener(listener func(TurnEvent)) {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()
	s.listener = listener
}

func (s *ChatService) emit(event TurnEvent) {
	s.listenerMutex.RLock()
	listener := s.listener
	s.listenerMutex.RUnlock()

	if listener != nil {
		listener(event)
	}
}

func (s *ChatService) getConversation(characterID string) *conversation {
	s.convMutex.Lock()
	defer s.convMutex.Unlock()

	conv, exists := s.conversations[characterID]
	if !exists {
		conv = &conversation{}
		s.conversations[characterID] = conv
	}
	return conv
}

// buildPersonaInstructions 人设指令：静态脚本 + 序列化的角色配置
func (s *ChatService) buildPersonaInstructions(profile *models.CharacterProfile) string {
	serialized, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		serialized = []byte("{}")
	}

	return s.personaScript + "\n\nCharacter profile:\n" + string(serialized)
}

// buildScoringContext 隐藏评分上下文，绝不渲染给用户
// It calibrates the model's judgment to this character's difficulty
// curve: current tallies, thresholds and the turn counter.
func buildScoringContext(tally models.FlagTally, difficulty models.Difficulty, messageCount int) string {
	return fmt.Sprintf(
		"Hidden scoring context (never reveal to the user):\n"+
			"- green flags so far: %d\n"+
			"- red flags so far: %d\n"+
			"- red flag tolerance: %d\n"+
			"- green flags needed for a second date: %d\n"+
			"- turn number: %d",
		tally.Green, tally.Red,
		difficulty.ToleranceRed, difficulty.MinGreenForSecondDate,
		messageCount/2,
	)
}

// classifyError 把远程调用失败映射到错误分类
func classifyError(err error) error {
	var statusErr *llm.StatusError
	if stderrors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.NewUnauthorizedError("the matchmaking service rejected our credentials", err)
		default:
			return errors.NewNetworkError("the matchmaking service is having a moment, try sending that again", err)
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError("your date is taking too long to reply, try sending that again", err)
	}

	return errors.NewNetworkError("could not reach the matchmaking service, try sending that again", err)
}

// SendMessage 提交一条用户消息并执行一个完整回合
//
// Failure contract: the user's message stays in history (retry is
// re-submission), no assistant message is appended and no flag delta is
// recorded for the failed attempt.
func (s *ChatService) SendMessage(ctx context.Context, characterID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.NewValidationError("message is empty", nil)
	}

	if s.personaErr != nil {
		return nil, errors.NewConfigError("persona script is not loaded; chatting is disabled", s.personaErr)
	}

	if !s.LLMService.IsReady() {
		return nil, errors.NewConfigError("LLM provider is not configured: "+s.LLMService.GetReadyState(), nil)
	}

	profile, err := s.ProfileService.GetProfile(characterID)
	if err != nil {
		return nil, err
	}

	conv := s.getConversation(characterID)

	// 同一对话同时只允许一个在途请求
	conv.mu.Lock()
	if conv.inFlight {
		conv.mu.Unlock()
		return nil, errors.NewConflictError("a reply is already on the way", nil)
	}

	tally, status := s.ScoreService.Load(characterID)
	if status.Terminal() {
		conv.mu.Unlock()
		return nil, errors.NewConflictError("this date is already decided; reset to play again", nil)
	}

	// 乐观追加用户消息；失败时保留，用户重发即重试
	s.DialogueService.Append(characterID, models.Message{Role: models.RoleUser, Content: text})
	history := s.DialogueService.Load(characterID)

	conv.inFlight = true
	conv.mu.Unlock()

	defer func() {
		conv.mu.Lock()
		conv.inFlight = false
		conv.mu.Unlock()
	}()

	// 组装请求：人设指令 + 隐藏评分上下文 + 完整可见历史
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    models.RoleSystem,
		Content: s.buildPersonaInstructions(profile),
	})
	messages = append(messages, llm.Message{
		Role:    models.RoleSystem,
		Content: buildScoringContext(tally, profile.Difficulty, len(history)),
	})
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	callCtx, cancel := context.WithTimeout(ctx, config.GetCurrentConfig().RequestTimeout())
	defer cancel()

	resp, err := s.LLMService.CreateChatCompletion(callCtx, ChatCompletionRequest{
		Messages:    messages,
		Temperature: chatTemperature,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.NewNetworkError("the matchmaking service returned an empty reply", nil)
	}

	raw := resp.Choices[0].Message.Content
	parsed := parser.ParseReply(raw)

	// 原始补全文本按原样入历史；展示文本在渲染时再提取
	s.DialogueService.Append(characterID, models.Message{Role: models.RoleAssistant, Content: raw})

	// 旗标增量每个成功回合恰好应用一次
	newTally, newStatus := s.ScoreService.ApplyDelta(characterID, tally, parsed.Flags, profile.Difficulty)

	result := &TurnResult{
		CharacterID: characterID,
		Message:     parsed.Message,
		Raw:         raw,
		Flags:       parsed.Flags,
		Tally:       newTally,
		Status:      newStatus,
		StatusHint:  parsed.Status,
	}

	s.emit(TurnEvent{
		Type:        "turn",
		CharacterID: characterID,
		Message:     parsed.Message,
		Tally:       newTally,
		Status:      newStatus,
	})

	return result, nil
}

// GetState 返回指定角色的当前游戏状态
func (s *ChatService) GetState(characterID string) (*GameState, error) {
	if _, err := s.ProfileService.GetProfile(characterID); err != nil {
		return nil, err
	}

	tally, status := s.ScoreService.Load(characterID)
	history := s.DialogueService.Load(characterID)

	display := make([]DisplayMessage, 0, len(history))
	for _, msg := range history {
		content := msg.Content
		if msg.Role == models.RoleAssistant {
			content = parser.ExtractDisplayText(content)
		}
		display = append(display, DisplayMessage{Role: msg.Role, Content: content})
	}

	return &GameState{
		CharacterID: characterID,
		Tally:       tally,
		Status:      status,
		History:     display,
	}, nil
}

// Reset 原子地清空一个角色的历史、计数和状态
// The conversation lock covers both clears so no reader observes
// cleared history next to a stale tally.
func (s *ChatService) Reset(characterID string) error {
	if _, err := s.ProfileService.GetProfile(characterID); err != nil {
		return err
	}

	conv := s.getConversation(characterID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	if conv.inFlight {
		return errors.NewConflictError("cannot reset while a reply is on the way", nil)
	}

	s.DialogueService.Clear(characterID)
	s.ScoreService.Reset(characterID)

	s.emit(TurnEvent{
		Type:        "reset",
		CharacterID: characterID,
	})

	return nil
}

// PersonaReady 人设脚本是否已加载
func (s *ChatService) PersonaReady() bool {
	return s.personaErr == nil
}
