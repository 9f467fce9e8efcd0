package engine

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 4096
)

type AnthropicEngine struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	transcripts *transcripts
}

func NewAnthropicEngine(apiKey, model string, maxTokens int) *AnthropicEngine {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = defaultAnthropicModel
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicEngine{
		client:      &client,
		model:       model,
		maxTokens:   maxTokens,
		transcripts: newTranscripts(),
	}
}

func (e *AnthropicEngine) OpenConversation(ctx context.Context) (string, error) {
	return e.transcripts.open(), nil
}

func (e *AnthropicEngine) Invoke(ctx context.Context, handle, instruction string) (*Reply, error) {
	turns := e.transcripts.snapshot(handle, instruction)

	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.role {
		case "user":
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.content)))
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.content)))
		}
	}

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(e.maxTokens),
		Messages:  msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic message failed: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	e.transcripts.commit(handle, instruction, content)

	return &Reply{
		Content:   content,
		CostUnits: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}
