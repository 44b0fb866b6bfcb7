// internal/services/profile_service.go
package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Corphon/HeartSyncMCP/internal/errors"
	"github.com/Corphon/HeartSyncMCP/internal/models"
	"github.com/Corphon/HeartSyncMCP/internal/utils"
	"gopkg.in/yaml.v3"
)

// ProfileService 加载并缓存角色静态配置
// Profiles are immutable content files (.json or .yaml) in a single
// directory, loaded once at startup.
type ProfileService struct {
	dir string

	mu       sync.RWMutex
	profiles map[string]*models.CharacterProfile
}

// NewProfileService 创建角色配置服务并加载所有角色
func NewProfileService(dir string) (*ProfileService, error) {
	s := &ProfileService{
		dir:      dir,
		profiles: make(map[string]*models.CharacterProfile),
	}

	if err := s.loadAll(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *ProfileService) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			// 空目录不是错误；游戏只是没有可约会的角色
			utils.GetLogger().Warn("characters directory does not exist", map[string]interface{}{"dir": s.dir})
			return nil
		}
		return fmt.Errorf("failed to read characters directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		profile, err := loadProfileFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			// 单个损坏的配置文件跳过，不中断启动
			utils.GetLogger().Error("failed to load character profile", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}

		s.profiles[profile.ID] = profile
	}

	return nil
}

func loadProfileFile(path string) (*models.CharacterProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var profile models.CharacterProfile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	return &profile, nil
}

// GetProfile 获取指定ID的角色配置
func (s *ProfileService) GetProfile(characterID string) (*models.CharacterProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, exists := s.profiles[characterID]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("character %q not found", characterID), nil)
	}

	return profile, nil
}

// ListProfiles 返回所有角色配置，按ID排序
func (s *ProfileService) ListProfiles() []*models.CharacterProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]*models.CharacterProfile, 0, len(s.profiles))
	for _, profile := range s.profiles {
		profiles = append(profiles, profile)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].ID < profiles[j].ID
	})

	return profiles
}
