package engine

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIEngine works with OpenAI and any OpenAI-compatible API.
type OpenAIEngine struct {
	client      *openai.Client
	model       string
	maxTokens   int
	transcripts *transcripts
}

// NewOpenAIEngine creates an engine with an optional explicit base URL.
func NewOpenAIEngine(apiKey, baseURL, model string, maxTokens int) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIEngine{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   maxTokens,
		transcripts: newTranscripts(),
	}
}

func (e *OpenAIEngine) OpenConversation(ctx context.Context) (string, error) {
	return e.transcripts.open(), nil
}

func (e *OpenAIEngine) Invoke(ctx context.Context, handle, instruction string) (*Reply, error) {
	turns := e.transcripts.snapshot(handle, instruction)

	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		content := t.content
		// Some providers reject empty string content
		if content == "" {
			content = " "
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.role, Content: content})
	}

	req := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: msgs,
	}
	if e.maxTokens > 0 {
		req.MaxTokens = e.maxTokens
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	e.transcripts.commit(handle, instruction, content)

	return &Reply{
		Content:   content,
		CostUnits: resp.Usage.TotalTokens,
	}, nil
}
