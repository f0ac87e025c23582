package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"RAGBot/internal/config"

	arkModel "github.com/cloudwego/eino-ext/components/model/ark"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

type ChatModelMeta struct {
	Provider string
	Model    string
}

// NewChatModelFromConfig 按 LLM_PROVIDER 创建对话模型。
// groq 走 OpenAI 兼容协议，仅 BaseURL 不同。
func NewChatModelFromConfig(ctx context.Context, conf *config.Config) (model.BaseChatModel, ChatModelMeta, error) {
	if conf == nil {
		return nil, ChatModelMeta{}, fmt.Errorf("nil config")
	}

	cm := conf.AIConfig.ChatModel
	provider := strings.ToLower(strings.TrimSpace(cm.Provider))
	pc := conf.ChatProvider()
	modelName := strings.TrimSpace(pc.Model)

	timeout := 2 * time.Minute
	if cm.TimeoutSeconds > 0 {
		timeout = time.Duration(cm.TimeoutSeconds) * time.Second
	}
	temperature := cm.Temperature
	var maxTokens *int
	if cm.MaxTokens > 0 {
		n := cm.MaxTokens
		maxTokens = &n
	}

	switch provider {
	case config.ProviderGroq, config.ProviderOpenAI:
		apiKey := strings.TrimSpace(pc.APIKey)
		baseURL := strings.TrimSpace(pc.BaseURL)
		if provider == config.ProviderGroq && baseURL == "" {
			baseURL = config.DefaultGroqBaseURL
		}
		if apiKey == "" || modelName == "" {
			return nil, ChatModelMeta{}, fmt.Errorf("%s chat model missing apiKey/model", provider)
		}

		chat, err := openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:      apiKey,
			Model:       modelName,
			BaseURL:     baseURL,
			Timeout:     timeout,
			Temperature: &temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, ChatModelMeta{}, err
		}
		return chat, ChatModelMeta{Provider: provider, Model: modelName}, nil

	case config.ProviderArk:
		apiKey := strings.TrimSpace(pc.APIKey)
		accessKey := strings.TrimSpace(pc.AccessKey)
		secretKey := strings.TrimSpace(pc.SecretKey)
		if apiKey == "" && (accessKey == "" || secretKey == "") {
			return nil, ChatModelMeta{}, fmt.Errorf("ark chat model missing apiKey or accessKey/secretKey")
		}
		if modelName == "" {
			return nil, ChatModelMeta{}, fmt.Errorf("ark chat model missing model")
		}

		// 重试由 RetryingChatModel 统一处理
		retryTimes := 0
		chat, err := arkModel.NewChatModel(ctx, &arkModel.ChatModelConfig{
			APIKey:      apiKey,
			AccessKey:   accessKey,
			SecretKey:   secretKey,
			Model:       modelName,
			BaseURL:     strings.TrimSpace(pc.BaseURL),
			Region:      strings.TrimSpace(pc.Region),
			Timeout:     &timeout,
			RetryTimes:  &retryTimes,
			Temperature: &temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, ChatModelMeta{}, err
		}
		return chat, ChatModelMeta{Provider: provider, Model: modelName}, nil

	default:
		return nil, ChatModelMeta{}, fmt.Errorf("unsupported LLM provider: %q", provider)
	}
}
