package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type geminiAssistant struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (Assistant, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &geminiAssistant{client: client, model: model}, nil
}

func (g *geminiAssistant) Name() string { return "gemini" }

// Reply implements Assistant. The system message maps to Gemini's
// SystemInstruction, everything before the last user message becomes
// chat history.
func (g *geminiAssistant) Reply(ctx context.Context, msgs []Message) (string, error) {
	model := g.client.GenerativeModel(g.model)

	var turns []Message
	for _, msg := range msgs {
		if msg.MsgRole == SYSTEM {
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(msg.Content)},
			}
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("no user messages to reply to")
	}

	cs := model.StartChat()
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.MsgRole == ASSISTANT {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		return "", fmt.Errorf("gemini chat failed: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return out, nil
}
