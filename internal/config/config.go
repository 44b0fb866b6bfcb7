// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port              string `json:"port"`
	DataDir           string `json:"data_dir"`
	CharactersDir     string `json:"characters_dir"`
	PersonaScriptPath string `json:"persona_script_path"`
	LogDir            string `json:"log_dir"`
	DebugMode         bool   `json:"debug_mode"`

	// 远程调用超时（秒）。到期按网络类错误处理。
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`
}

// RequestTimeout returns the remote-completion timeout as a duration.
func (c *AppConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Config 存储从环境读取的基础配置
type Config struct {
	Port              string
	OpenAIAPIKey      string
	DataDir           string
	CharactersDir     string
	PersonaScriptPath string
	LogDir            string
	DebugMode         bool
	RequestTimeout    int
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		DataDir:           getEnvPath("DATA_DIR", "data"),
		CharactersDir:     getEnv("CHARACTERS_DIR", filepath.Join("data", "characters")),
		PersonaScriptPath: getEnv("PERSONA_SCRIPT_PATH", filepath.Join("data", "prompts", "persona_script.txt")),
		LogDir:            getEnvPath("LOG_DIR", "logs"),
		DebugMode:         getEnvBool("DEBUG_MODE", true),
		RequestTimeout:    getEnvInt("REQUEST_TIMEOUT_SECONDS", 60),
	}

	// 验证API密钥
	if config.OpenAIAPIKey == "" {
		// 只记录警告，不返回错误；提交消息时会以配置错误拒绝
		log.Println("warning: OPENAI_API_KEY is not set; chat submission will be disabled until configured")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("warning: failed to create directory %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	// 加载基础配置
	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:                  baseConfig.Port,
		DataDir:               baseConfig.DataDir,
		CharactersDir:         baseConfig.CharactersDir,
		PersonaScriptPath:     baseConfig.PersonaScriptPath,
		LogDir:                baseConfig.LogDir,
		DebugMode:             baseConfig.DebugMode,
		RequestTimeoutSeconds: baseConfig.RequestTimeout,
		LLMProvider:           getEnv("LLM_PROVIDER", "openai"),
		LLMConfig: map[string]string{
			"api_key":       baseConfig.OpenAIAPIKey,
			"default_model": getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
		},
	}

	// 尝试从文件加载已保存的配置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 合并配置，保留文件中的LLM设置，但使用最新的基础配置
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.CharactersDir = baseConfig.CharactersDir
				savedConfig.PersonaScriptPath = baseConfig.PersonaScriptPath
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode
				if savedConfig.RequestTimeoutSeconds <= 0 {
					savedConfig.RequestTimeoutSeconds = baseConfig.RequestTimeout
				}

				// 如果文件中没有API密钥，使用环境变量的密钥
				if savedConfig.LLMConfig != nil && savedConfig.LLMConfig["api_key"] == "" {
					savedConfig.LLMConfig["api_key"] = baseConfig.OpenAIAPIKey
				}

				currentConfig = &savedConfig
			}
		}
	}

	// 保存初始配置到文件
	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return &AppConfig{
			Port:                  baseConfig.Port,
			DataDir:               baseConfig.DataDir,
			CharactersDir:         baseConfig.CharactersDir,
			PersonaScriptPath:     baseConfig.PersonaScriptPath,
			LogDir:                baseConfig.LogDir,
			DebugMode:             baseConfig.DebugMode,
			RequestTimeoutSeconds: baseConfig.RequestTimeout,
			LLMProvider:           "openai",
			LLMConfig: map[string]string{
				"api_key": baseConfig.OpenAIAPIKey,
			},
		}
	}

	// 返回配置的副本
	configCopy := *currentConfig
	return &configCopy
}

// UpdateLLMConfig 更新LLM配置
func UpdateLLMConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("config system not initialized")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = config

	return saveConfigLocked()
}

// saveConfigLocked 保存当前配置到文件，调用方必须持有configMutex
func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("no config to save")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
