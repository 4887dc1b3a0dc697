package generate

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAPI is the subset of the go-openai client used by the invoker.
type OpenAIAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// chatCompletion dispatches gpt-* model identifiers to an OpenAI-compatible
// chat completion endpoint.
func (inv *Invoker) chatCompletion(ctx context.Context, model string, req Request) (string, error) {
	if inv.openAI == nil {
		return "", fmt.Errorf("model %s requires an OpenAI client, none configured", model)
	}

	resp, err := inv.openAI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   int(req.MaxTokens),
		Temperature: req.Temperature,
		Stop:        req.StopSequences,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from %s", model)
	}
	return resp.Choices[0].Message.Content, nil
}
