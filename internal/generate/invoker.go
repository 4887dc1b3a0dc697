// Copyright 2025 KB Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package generate invokes the external generation backends with model
// fallback on transient failures.
package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Request carries the prompt and sampling parameters for one generation.
type Request struct {
	Prompt        string
	MaxTokens     int32
	Temperature   float32
	StopSequences []string
}

// Result is the generated text plus the model identifier that produced it.
type Result struct {
	Text  string
	Model string
}

// Shape identifies the request/response format a model family speaks.
type Shape int

const (
	// ShapeConverse is the Bedrock Converse API with content-block messages.
	ShapeConverse Shape = iota
	// ShapeCompletion is the legacy prompt/completion body used by Claude 2.x.
	ShapeCompletion
	// ShapeChatCompletion is an OpenAI-compatible chat completion.
	ShapeChatCompletion
)

// ClassifyModel selects the response shape for a model identifier. The set
// of shapes is closed; identifiers that match no known family (including
// Bedrock ARNs and inference profiles) use the Converse API.
func ClassifyModel(modelID string) Shape {
	switch {
	case strings.HasPrefix(modelID, "gpt-"):
		return ShapeChatCompletion
	case strings.Contains(modelID, "claude-v2"), strings.Contains(modelID, "claude-instant"):
		return ShapeCompletion
	default:
		return ShapeConverse
	}
}

// transientCodes are Bedrock error codes worth retrying against another
// model. AccessDenied covers accounts still waiting on model access grants.
var transientCodes = map[string]bool{
	"ThrottlingException":    true,
	"ModelNotReadyException": true,
	"AccessDeniedException":  true,
}

// IsTransient reports whether a generation error justifies falling back to
// the next candidate model. Malformed requests and other permanent failures
// return false: retrying them against more models wastes latency and quota.
func IsTransient(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientCodes[apiErr.ErrorCode()]
	}
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) {
		return oaiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			oaiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}

// Invoker runs generations against a primary model and an ordered fallback
// list. Transient failures advance to the next candidate; anything else
// aborts immediately. No state is shared across requests.
type Invoker struct {
	bedrock   BedrockAPI
	openAI    OpenAIAPI
	primary   string
	fallbacks []string
	logger    *zap.Logger
}

// NewInvoker creates an invoker. openAI may be nil when no gpt-* model is
// configured; dispatching a gpt-* identifier without it is a permanent error.
func NewInvoker(bedrock BedrockAPI, openAI OpenAIAPI, primary string, fallbacks []string, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		bedrock:   bedrock,
		openAI:    openAI,
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Generate tries the primary model and then each fallback in order, stopping
// at the first success. If every candidate fails, the last error is
// surfaced; no synthetic success is invented.
func (inv *Invoker) Generate(ctx context.Context, req Request) (Result, error) {
	candidates := make([]string, 0, 1+len(inv.fallbacks))
	candidates = append(candidates, inv.primary)
	candidates = append(candidates, inv.fallbacks...)

	var lastErr error
	for _, model := range candidates {
		text, err := inv.invoke(ctx, model, req)
		if err == nil {
			inv.logger.Info("Generation succeeded", zap.String("model", model))
			return Result{Text: text, Model: model}, nil
		}

		lastErr = err
		if !IsTransient(err) {
			return Result{}, fmt.Errorf("model %s: %w", model, err)
		}
		inv.logger.Warn("Transient generation failure, trying next model",
			zap.String("model", model),
			zap.Error(err))
	}

	return Result{}, fmt.Errorf("all candidate models failed: %w", lastErr)
}

func (inv *Invoker) invoke(ctx context.Context, model string, req Request) (string, error) {
	switch ClassifyModel(model) {
	case ShapeChatCompletion:
		return inv.chatCompletion(ctx, model, req)
	case ShapeCompletion:
		return inv.completion(ctx, model, req)
	default:
		return inv.converse(ctx, model, req)
	}
}
