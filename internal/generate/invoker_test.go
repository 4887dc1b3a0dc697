package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBedrock answers per model, recording the order of attempts.
type fakeBedrock struct {
	converseErrs  map[string]error
	converseTexts map[string]string
	invokeErrs    map[string]error
	invokeBodies  map[string][]byte
	attempts      []string
	lastInvoke    *bedrockruntime.InvokeModelInput
}

func (f *fakeBedrock) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	model := *params.ModelId
	f.attempts = append(f.attempts, model)
	if err, ok := f.converseErrs[model]; ok {
		return nil, err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role: types.ConversationRoleAssistant,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: f.converseTexts[model]},
				},
			},
		},
	}, nil
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	model := *params.ModelId
	f.attempts = append(f.attempts, model)
	f.lastInvoke = params
	if err, ok := f.invokeErrs[model]; ok {
		return nil, err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.invokeBodies[model]}, nil
}

// fakeOpenAI answers a single canned chat completion.
type fakeOpenAI struct {
	resp  openai.ChatCompletionResponse
	err   error
	calls int
}

func (f *fakeOpenAI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	return f.resp, f.err
}

func TestClassifyModel(t *testing.T) {
	tests := []struct {
		modelID string
		want    Shape
	}{
		{"gpt-4o-mini", ShapeChatCompletion},
		{"gpt-3.5-turbo", ShapeChatCompletion},
		{"anthropic.claude-v2", ShapeCompletion},
		{"anthropic.claude-v2:1", ShapeCompletion},
		{"anthropic.claude-instant-v1", ShapeCompletion},
		{"anthropic.claude-3-haiku-20240307-v1:0", ShapeConverse},
		{"amazon.titan-text-express-v1", ShapeConverse},
		{"arn:aws:bedrock:us-east-1:123456789012:inference-profile/us.anthropic.claude-3-5-sonnet", ShapeConverse},
		{"", ShapeConverse},
	}

	for _, tt := range tests {
		if got := ClassifyModel(tt.modelID); got != tt.want {
			t.Errorf("ClassifyModel(%q) = %v, want %v", tt.modelID, got, tt.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, true},
		{"model not ready", &smithy.GenericAPIError{Code: "ModelNotReadyException"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, true},
		{"validation", &smithy.GenericAPIError{Code: "ValidationException"}, false},
		{"wrapped throttling", fmt.Errorf("call failed: %w", &smithy.GenericAPIError{Code: "ThrottlingException"}), true},
		{"openai rate limit", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"openai server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, true},
		{"openai bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestGenerateFallsBackOnTransientError(t *testing.T) {
	bedrock := &fakeBedrock{
		converseErrs: map[string]error{
			"primary-model": &smithy.GenericAPIError{Code: "ThrottlingException"},
		},
		converseTexts: map[string]string{
			"fallback-model": "resposta do fallback",
		},
	}
	inv := NewInvoker(bedrock, nil, "primary-model", []string{"fallback-model"}, nil)

	result, err := inv.Generate(context.Background(), Request{Prompt: "olá", MaxTokens: 100})

	require.NoError(t, err)
	assert.Equal(t, "resposta do fallback", result.Text)
	assert.Equal(t, "fallback-model", result.Model, "result must report the model that answered")
	assert.Equal(t, []string{"primary-model", "fallback-model"}, bedrock.attempts)
}

func TestGeneratePermanentErrorAbortsImmediately(t *testing.T) {
	bedrock := &fakeBedrock{
		converseErrs: map[string]error{
			"primary-model": &smithy.GenericAPIError{Code: "ValidationException", Message: "bad request"},
		},
		converseTexts: map[string]string{
			"fallback-model": "nunca usado",
		},
	}
	inv := NewInvoker(bedrock, nil, "primary-model", []string{"fallback-model"}, nil)

	_, err := inv.Generate(context.Background(), Request{Prompt: "olá"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary-model")
	assert.Equal(t, []string{"primary-model"}, bedrock.attempts,
		"a permanent error must not consume fallback attempts")
}

func TestGenerateAllCandidatesExhausted(t *testing.T) {
	bedrock := &fakeBedrock{
		converseErrs: map[string]error{
			"m1": &smithy.GenericAPIError{Code: "ThrottlingException"},
			"m2": &smithy.GenericAPIError{Code: "ModelNotReadyException", Message: "warming up"},
		},
	}
	inv := NewInvoker(bedrock, nil, "m1", []string{"m2"}, nil)

	_, err := inv.Generate(context.Background(), Request{Prompt: "olá"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all candidate models failed")
	assert.Contains(t, err.Error(), "warming up", "last error must be surfaced")
}

func TestCompletionShapeRequestAndResponse(t *testing.T) {
	bedrock := &fakeBedrock{
		invokeBodies: map[string][]byte{
			"anthropic.claude-v2": []byte(`{"completion": "  resposta legada  "}`),
		},
	}
	inv := NewInvoker(bedrock, nil, "anthropic.claude-v2", nil, nil)

	result, err := inv.Generate(context.Background(), Request{
		Prompt:      "qual o status?",
		MaxTokens:   200,
		Temperature: 0.5,
	})

	require.NoError(t, err)
	assert.Equal(t, "resposta legada", result.Text, "completion text must be trimmed")

	require.NotNil(t, bedrock.lastInvoke)
	assert.Equal(t, "application/json", *bedrock.lastInvoke.ContentType)

	var body completionBody
	require.NoError(t, json.Unmarshal(bedrock.lastInvoke.Body, &body))
	assert.Equal(t, "\n\nHuman: qual o status?\n\nAssistant:", body.Prompt)
	assert.Equal(t, int32(200), body.MaxTokensToSample)
	assert.Contains(t, body.StopSequences, humanStop)
}

func TestConverseShapeConcatenatesTextBlocks(t *testing.T) {
	bedrock := &fakeBedrock{
		converseTexts: map[string]string{"anthropic.claude-3-haiku-20240307-v1:0": "parte única"},
	}
	inv := NewInvoker(bedrock, nil, "anthropic.claude-3-haiku-20240307-v1:0", nil, nil)

	result, err := inv.Generate(context.Background(), Request{Prompt: "olá", MaxTokens: 64})

	require.NoError(t, err)
	assert.Equal(t, "parte única", result.Text)
}

func TestChatCompletionShape(t *testing.T) {
	oa := &fakeOpenAI{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "resposta gpt"}},
			},
		},
	}
	inv := NewInvoker(nil, oa, "gpt-4o-mini", nil, nil)

	result, err := inv.Generate(context.Background(), Request{Prompt: "olá", MaxTokens: 64})

	require.NoError(t, err)
	assert.Equal(t, "resposta gpt", result.Text)
	assert.Equal(t, "gpt-4o-mini", result.Model)
	assert.Equal(t, 1, oa.calls)
}

func TestChatCompletionWithoutClientIsPermanent(t *testing.T) {
	bedrock := &fakeBedrock{
		converseTexts: map[string]string{"fallback-model": "nunca usado"},
	}
	inv := NewInvoker(bedrock, nil, "gpt-4o-mini", []string{"fallback-model"}, nil)

	_, err := inv.Generate(context.Background(), Request{Prompt: "olá"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI client")
	assert.Empty(t, bedrock.attempts, "misconfiguration must not trigger fallback")
}

func TestChatCompletionTransientFallsBackToBedrock(t *testing.T) {
	oa := &fakeOpenAI{err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}}
	bedrock := &fakeBedrock{
		converseTexts: map[string]string{"anthropic.claude-3-haiku-20240307-v1:0": "resposta bedrock"},
	}
	inv := NewInvoker(bedrock, oa, "gpt-4o-mini", []string{"anthropic.claude-3-haiku-20240307-v1:0"}, nil)

	result, err := inv.Generate(context.Background(), Request{Prompt: "olá"})

	require.NoError(t, err)
	assert.Equal(t, "resposta bedrock", result.Text)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", result.Model)
}
