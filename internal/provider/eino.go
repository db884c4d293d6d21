package provider

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"longdoc-translator/internal/logger"
	"longdoc-translator/internal/longdoc"
	"longdoc-translator/internal/types"
)

// EinoConfig configures the eino-backed translation provider.
type EinoConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// EinoTranslator drives translation through the eino chat model abstraction.
// It trades the raw HTTP client's control over the wire format for eino's
// provider portability.
type EinoTranslator struct {
	chatModel model.BaseChatModel
	modelName string
}

// NewEinoTranslator builds the underlying chat model eagerly so that
// configuration errors surface at startup rather than on the first block.
func NewEinoTranslator(ctx context.Context, cfg EinoConfig) (*EinoTranslator, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "API key is not configured", nil)
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	chatModelConfig := &openai.ChatModelConfig{
		Model:  modelName,
		APIKey: cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		chatModelConfig.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model", err)
	}

	return &EinoTranslator{chatModel: chatModel, modelName: modelName}, nil
}

// Capability exposes the translator as a pipeline translation capability
func (e *EinoTranslator) Capability() longdoc.TranslateCapability {
	return e.Translate
}

// Translate sends one block of text for translation. It satisfies
// longdoc.TranslateCapability.
func (e *EinoTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	logger.Debug("calling chat model",
		logger.String("model", e.modelName), logger.Int("textLen", len(text)))

	response, err := e.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(buildSystemPrompt(targetLang)),
		schema.UserMessage(text),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", types.NewAppError(types.ErrAPICall, "chat model generation failed", err)
	}

	return strings.TrimSpace(response.Content), nil
}
