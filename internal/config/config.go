package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zhouzirui/gemini-chat/backend/internal/model/chat"
)

// Provider 标识文本生成服务的后端。
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderArk    Provider = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Session SessionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Log:     LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
		AI:      ai,
		Session: SessionConfig{Greeting: getEnvOrDefault("CHAT_GREETING", chat.DefaultGreeting)},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level string
}

// SessionConfig 描述会话初始化参数。
type SessionConfig struct {
	Greeting string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	addr, err := NormalizeAddr(port)
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{Addr: addr}, nil
}

// NormalizeAddr turns a bare port into a listen address.
func NormalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if strings.Contains(port, " ") || port == "" {
		return "", errors.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}
	return ":" + port, nil
}

// AIConfig 描述大模型相关配置。生成参数在启动时固定，调用方无法在运行时修改。
type AIConfig struct {
	Provider Provider
	Gemini   GeminiConfig
	Ark      ArkConfig

	Temperature     float32
	TopK            int
	TopP            float32
	MaxOutputTokens int
	Timeout         time.Duration
}

// GeminiConfig 描述 Gemini generateContent 接口。
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ArkConfig 描述火山方舟模型。
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

const (
	DefaultGeminiModel     = "gemini-1.5-flash"
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultTemperature     = float32(0.9)
	DefaultTopK            = 1
	DefaultTopP            = float32(1)
	DefaultMaxOutputTokens = 2048
	DefaultTimeout         = 60 * time.Second
)

// Enabled 表示是否提供了所选后端必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.Gemini.APIKey != "" && c.Gemini.Model != ""
	case ProviderArk:
		return c.Ark.Model != "" && (c.Ark.APIKey != "" || (c.Ark.AccessKey != "" && c.Ark.SecretKey != ""))
	default:
		return false
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := Provider(strings.ToLower(getEnvOrDefault("AI_PROVIDER", string(ProviderGemini))))
	if provider != ProviderGemini && provider != ProviderArk {
		return AIConfig{}, errors.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	cfg := AIConfig{
		Provider: provider,
		Gemini: GeminiConfig{
			APIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:   getEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
			BaseURL: strings.TrimSuffix(getEnvOrDefault("GEMINI_BASE_URL", DefaultGeminiBaseURL), "/"),
		},
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		},
		Temperature:     DefaultTemperature,
		TopK:            DefaultTopK,
		TopP:            DefaultTopP,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Timeout:         DefaultTimeout,
	}

	if temperature, err := parseOptionalFloat32Env("AI_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if temperature != nil {
		cfg.Temperature = *temperature
	}

	if topP, err := parseOptionalFloat32Env("AI_TOP_P"); err != nil {
		return AIConfig{}, err
	} else if topP != nil {
		cfg.TopP = *topP
	}

	if topK, err := parseOptionalIntEnv("AI_TOP_K"); err != nil {
		return AIConfig{}, err
	} else if topK != nil {
		cfg.TopK = *topK
	}

	if maxTokens, err := parseOptionalIntEnv("AI_MAX_OUTPUT_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if maxTokens != nil {
		if *maxTokens < 1 {
			return AIConfig{}, errors.Errorf("invalid AI_MAX_OUTPUT_TOKENS value %d", *maxTokens)
		}
		cfg.MaxOutputTokens = *maxTokens
	}

	if timeout, err := parseOptionalDurationEnv("AI_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if timeout != nil {
		if *timeout <= 0 {
			return AIConfig{}, errors.Errorf("invalid AI_TIMEOUT value %s", *timeout)
		}
		cfg.Timeout = *timeout
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	result := float32(val)
	return &result, nil
}

// parseOptionalDurationEnv accepts Go durations ("45s") or bare seconds ("45").
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		d := time.Duration(seconds) * time.Second
		return &d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return &d, nil
}

// String hides credentials so the config can be logged.
func (c AIConfig) String() string {
	return fmt.Sprintf("provider=%s model=%s temperature=%.2f topK=%d topP=%.2f maxOutputTokens=%d timeout=%s",
		c.Provider, c.model(), c.Temperature, c.TopK, c.TopP, c.MaxOutputTokens, c.Timeout)
}

func (c AIConfig) model() string {
	if c.Provider == ProviderArk {
		return c.Ark.Model
	}
	return c.Gemini.Model
}
