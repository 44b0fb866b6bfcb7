// internal/services/score_service.go
package services

import (
	"encoding/json"
	"time"

	"github.com/Corphon/HeartSyncMCP/internal/models"
	"github.com/Corphon/HeartSyncMCP/internal/storage"
	"github.com/Corphon/HeartSyncMCP/internal/utils"
)

// flagsKey 生成角色评分记录的存储键
func flagsKey(characterID string) string {
	return "flags:" + characterID
}

// ScoreService 维护每个角色的旗标计数和终局状态
// Persistence is soft-fail in both directions: unreadable state loads
// as a fresh game, write failures are logged and retried on the next
// write opportunity.
type ScoreService struct {
	store storage.Store
}

// NewScoreService 创建评分服务
func NewScoreService(store storage.Store) *ScoreService {
	return &ScoreService{store: store}
}

// Load 恢复指定角色的计数和状态，无记录时返回零值
func (s *ScoreService) Load(characterID string) (models.FlagTally, models.GameStatus) {
	data, err := s.store.Get(flagsKey(characterID))
	if err != nil {
		if err != storage.ErrKeyNotFound {
			utils.GetLogger().Warn("failed to read score record", map[string]interface{}{
				"character": characterID,
				"error":     err.Error(),
			})
		}
		return models.FlagTally{}, models.StatusInProgress
	}

	var record models.GameRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// 损坏的记录视为没有存档
		utils.GetLogger().Warn("malformed score record, starting fresh", map[string]interface{}{
			"character": characterID,
		})
		return models.FlagTally{}, models.StatusInProgress
	}

	return record.Tally, record.Status
}

// resolveStatus 根据计数和难度推导终局状态
// The loss check runs first: when one delta satisfies both conditions
// at once, the date is lost.
func resolveStatus(tally models.FlagTally, difficulty models.Difficulty) models.GameStatus {
	if tally.Red >= difficulty.ToleranceRed || tally.HardNo {
		return models.StatusGameOver
	}
	if tally.Green >= difficulty.MinGreenForSecondDate {
		return models.StatusGameWon
	}
	return models.StatusInProgress
}

// ApplyDelta 将一次旗标增量合入计数并推导新状态，随后持久化
// Must not be called once status is terminal; the orchestrator blocks
// submission first. Green and Red only grow, HardNo is sticky.
func (s *ScoreService) ApplyDelta(characterID string, tally models.FlagTally, delta models.FlagDelta, difficulty models.Difficulty) (models.FlagTally, models.GameStatus) {
	newTally := models.FlagTally{
		Green:  tally.Green + delta.Green,
		Red:    tally.Red + delta.Red,
		HardNo: tally.HardNo || delta.HardNo,
	}

	newStatus := resolveStatus(newTally, difficulty)

	s.persist(characterID, newTally, newStatus)

	return newTally, newStatus
}

func (s *ScoreService) persist(characterID string, tally models.FlagTally, status models.GameStatus) {
	record := models.GameRecord{
		Tally:     tally,
		Status:    status,
		UpdatedAt: time.Now(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		utils.GetLogger().Error("failed to serialize score record", map[string]interface{}{
			"character": characterID,
			"error":     err.Error(),
		})
		return
	}

	if err := s.store.Set(flagsKey(characterID), data); err != nil {
		// 写失败不上抛；下一次写入机会重试
		utils.GetLogger().Error("failed to persist score record", map[string]interface{}{
			"character": characterID,
			"error":     err.Error(),
		})
	}
}

// Reset 清空指定角色的计数和状态并删除存档
func (s *ScoreService) Reset(characterID string) {
	if err := s.store.Remove(flagsKey(characterID)); err != nil {
		utils.GetLogger().Error("failed to remove score record", map[string]interface{}{
			"character": characterID,
			"error":     err.Error(),
		})
	}
}
