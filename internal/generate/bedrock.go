package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockAPI is the subset of the Bedrock runtime client used by the invoker.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// completionBody is the legacy Claude 2.x invoke-model payload.
type completionBody struct {
	Prompt            string   `json:"prompt"`
	MaxTokensToSample int32    `json:"max_tokens_to_sample"`
	Temperature       float32  `json:"temperature"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
}

type completionResponse struct {
	Completion string `json:"completion"`
}

// humanStop terminates Claude 2.x completions at the next conversation turn.
const humanStop = "\n\nHuman:"

// completion calls InvokeModel with the prompt/completion body and reads the
// answer from the single free-text completion field.
func (inv *Invoker) completion(ctx context.Context, model string, req Request) (string, error) {
	stops := append([]string{humanStop}, req.StopSequences...)
	body, err := json.Marshal(completionBody{
		Prompt:            fmt.Sprintf("\n\nHuman: %s\n\nAssistant:", req.Prompt),
		MaxTokensToSample: req.MaxTokens,
		Temperature:       req.Temperature,
		StopSequences:     stops,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion body: %w", err)
	}

	out, err := inv.bedrock.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", err
	}

	var resp completionResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	return strings.TrimSpace(resp.Completion), nil
}

// converse calls the Converse API and concatenates all text-typed content
// blocks of the returned message.
func (inv *Invoker) converse(ctx context.Context, model string, req Request) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:     aws.Int32(req.MaxTokens),
			Temperature:   aws.Float32(req.Temperature),
			StopSequences: req.StopSequences,
		},
	}

	out, err := inv.bedrock.Converse(ctx, input)
	if err != nil {
		return "", err
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("unexpected converse output type %T", out.Output)
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	return sb.String(), nil
}
