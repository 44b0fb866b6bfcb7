// internal/services/dialogue_service.go
package services

import (
	"encoding/json"
	"sync"

	"github.com/Corphon/HeartSyncMCP/internal/models"
	"github.com/Corphon/HeartSyncMCP/internal/storage"
	"github.com/Corphon/HeartSyncMCP/internal/utils"
)

// historyKey 生成角色对话历史的存储键
func historyKey(characterID string) string {
	return "history:" + characterID
}

// DialogueService 维护每个角色的有序对话历史
// Append-only during play, cleared wholesale on reset. The full
// sequence is rewritten on every append (overwrite semantics).
type DialogueService struct {
	store storage.Store

	mu       sync.Mutex
	sessions map[string][]models.Message
}

// NewDialogueService 创建对话历史服务
func NewDialogueService(store storage.Store) *DialogueService {
	return &DialogueService{
		store:    store,
		sessions: make(map[string][]models.Message),
	}
}

// loadLocked 确保指定角色的历史已在内存中，调用方必须持有s.mu
func (s *DialogueService) loadLocked(characterID string) []models.Message {
	if history, exists := s.sessions[characterID]; exists {
		return history
	}

	history := []models.Message{}
	data, err := s.store.Get(historyKey(characterID))
	if err == nil {
		if err := json.Unmarshal(data, &history); err != nil {
			// 损坏的历史视为空历史，不向调用方报错
			utils.GetLogger().Warn("malformed dialogue history, starting empty", map[string]interface{}{
				"character": characterID,
			})
			history = []models.Message{}
		}
	} else if err != storage.ErrKeyNotFound {
		utils.GetLogger().Warn("failed to read dialogue history", map[string]interface{}{
			"character": characterID,
			"error":     err.Error(),
		})
	}

	s.sessions[characterID] = history
	return history
}

// Load 返回指定角色的对话历史副本，最新消息在末尾
func (s *DialogueService) Load(characterID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.loadLocked(characterID)
	out := make([]models.Message, len(history))
	copy(out, history)
	return out
}

// Append 追加一条消息并持久化完整序列
func (s *DialogueService) Append(characterID string, message models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.loadLocked(characterID), message)
	s.sessions[characterID] = history

	s.persistLocked(characterID, history)
}

func (s *DialogueService) persistLocked(characterID string, history []models.Message) {
	data, err := json.Marshal(history)
	if err != nil {
		utils.GetLogger().Error("failed to serialize dialogue history", map[string]interface{}{
			"character": characterID,
			"error":     err.Error(),
		})
		return
	}

	if err := s.store.Set(historyKey(characterID), data); err != nil {
		// 写失败不上抛；内存中的历史仍然有效
		utils.GetLogger().Error("failed to persist dialogue history", map[string]interface{}{
			"character": characterID,
			"error":     err.Error(),
		})
	}
}

// Clear 清空指定角色的对话历史并删除存档
func (s *DialogueService) Clear(characterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, characterID)

	if err := s.store.Remove(historyKey(characterID)); err != nil {
		utils.GetLogger().Error("failed to remove dialogue history", map[string]interface{}{
			"character": characterID,
			"error":     err.Error(),
		})
	}
}
