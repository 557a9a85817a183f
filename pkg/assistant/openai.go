package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIAssistant struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) Assistant {
	return &openAIAssistant{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		model: model,
	}
}

func (o *openAIAssistant) Name() string { return "openai" }

// Reply implements Assistant.
func (o *openAIAssistant) Reply(ctx context.Context, msgs []Message) (string, error) {
	convertedMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		convertedMsgs = append(convertedMsgs, convertToOpenaiMsg(msg))
	}
	chatCompletion, err := o.client.Chat.Completions.New(
		ctx,
		openai.ChatCompletionNewParams{
			Messages: convertedMsgs,
			Model:    o.model,
		},
	)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(chatCompletion.Choices[0].Message.Content), nil
}

func convertToOpenaiMsg(msg Message) openai.ChatCompletionMessageParamUnion {
	switch msg.MsgRole {
	case ASSISTANT:
		return openai.AssistantMessage(msg.Content)
	case SYSTEM:
		return openai.SystemMessage(msg.Content)
	default:
		return openai.UserMessage(msg.Content)
	}
}
