// Package chat orchestrates one request end to end: retrieval, context
// assembly, generation and response normalization.
package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/kb-assistant/internal/answer"
	"github.com/your-org/kb-assistant/internal/generate"
	"github.com/your-org/kb-assistant/internal/intent"
	"github.com/your-org/kb-assistant/internal/prompt"
	"github.com/your-org/kb-assistant/internal/search"
)

// Empty-context policies for markdown answers.
const (
	// PolicyNotFound answers with a fixed message when retrieval found nothing.
	PolicyNotFound = "not_found"
	// PolicyGenerate invokes the model even without knowledge-base context.
	PolicyGenerate = "generate"
)

// DefaultNotFoundMessage is the fixed markdown answer under PolicyNotFound.
const DefaultNotFoundMessage = "Não encontrei informações sobre isso na base de conhecimento."

// untitledSource labels hits whose document carries no title.
const untitledSource = "Fonte sem título"

// Citation pairs a source URI with the relevance score the search backend
// reported, derived 1:1 from a retrieval hit.
type Citation struct {
	URI   string   `json:"uri"`
	Score *float64 `json:"score"`
}

// Reply is the outcome of handling one message. Structured is set for JSON
// artifact answers; otherwise Answer and Citations carry the markdown reply.
type Reply struct {
	Answer     string
	Citations  []Citation
	Structured *answer.Structured
}

// Retriever fetches knowledge-base hits for a message.
type Retriever interface {
	Retrieve(ctx context.Context, message string, limit int) ([]search.Hit, error)
}

// Generator produces text from a prompt, reporting the model used.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (generate.Result, error)
}

// Options tunes per-request behavior of the service.
type Options struct {
	TopK            int
	MaxContextChars int
	TextMaxTokens   int32
	TextTemperature float32
	JSONMaxTokens   int32
	JSONTemperature float32
	OnEmptyContext  string
	NotFoundMessage string
}

// Service handles chat messages. It holds no mutable state and is safe to
// invoke from concurrent requests.
type Service struct {
	retriever Retriever
	generator Generator
	detector  *intent.Detector
	opts      Options
	logger    *zap.Logger
}

// NewService wires the pipeline. Zero-valued options fall back to defaults.
func NewService(retriever Retriever, generator Generator, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.OnEmptyContext == "" {
		opts.OnEmptyContext = PolicyNotFound
	}
	if opts.NotFoundMessage == "" {
		opts.NotFoundMessage = DefaultNotFoundMessage
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		detector:  intent.NewDetector(),
		opts:      opts,
		logger:    logger,
	}
}

// Handle runs the full pipeline for one user message. Retrieval failures
// degrade to an empty context; only generation failures after fallback
// exhaustion are returned as errors.
func (s *Service) Handle(ctx context.Context, message string) (Reply, error) {
	hits, err := s.retriever.Retrieve(ctx, message, s.opts.TopK)
	if err != nil {
		s.logger.Warn("Retrieval failed, continuing without context", zap.Error(err))
		hits = nil
	}

	excerpts := make([]string, len(hits))
	for i, hit := range hits {
		excerpts[i] = hit.Excerpt
	}
	contextText := prompt.BuildContext(excerpts, s.opts.MaxContextChars)

	if s.detector.WantsStructured(message) {
		return s.handleStructured(ctx, message, contextText, hits)
	}
	return s.handleMarkdown(ctx, message, contextText, hits)
}

func (s *Service) handleMarkdown(ctx context.Context, message, contextText string, hits []search.Hit) (Reply, error) {
	if len(hits) == 0 && s.opts.OnEmptyContext == PolicyNotFound {
		s.logger.Info("No knowledge-base hits, answering with not-found message")
		return Reply{Answer: s.opts.NotFoundMessage, Citations: []Citation{}}, nil
	}

	result, err := s.generator.Generate(ctx, generate.Request{
		Prompt:      prompt.BuildMarkdownPrompt(message, contextText),
		MaxTokens:   s.opts.TextMaxTokens,
		Temperature: s.opts.TextTemperature,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("generation failed: %w", err)
	}

	md := prompt.AppendSourcesIfMissing(result.Text, sourcesOf(hits))

	s.logger.Info("Chat answered",
		zap.String("mode", "markdown"),
		zap.String("model", result.Model),
		zap.Int("citations", len(hits)))

	return Reply{Answer: md, Citations: citationsOf(hits)}, nil
}

// handleStructured always invokes generation: the structured instruction
// tells the model to produce coherent content with empty sources when the
// knowledge base returned nothing.
func (s *Service) handleStructured(ctx context.Context, message, contextText string, hits []search.Hit) (Reply, error) {
	result, err := s.generator.Generate(ctx, generate.Request{
		Prompt:      prompt.BuildStructuredPrompt(message, contextText),
		MaxTokens:   s.opts.JSONMaxTokens,
		Temperature: s.opts.JSONTemperature,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("generation failed: %w", err)
	}

	structured := answer.ParseStructured(result.Text)
	structured.Sources = answer.MergeSources(structured.Sources, sourcesOf(hits))

	s.logger.Info("Chat answered",
		zap.String("mode", "structured"),
		zap.String("model", result.Model),
		zap.Int("sources", len(structured.Sources)))

	return Reply{Structured: &structured}, nil
}

// sourcesOf derives the deduplicated (title, url) source list from hits.
func sourcesOf(hits []search.Hit) []answer.Source {
	seen := make(map[answer.Source]bool, len(hits))
	sources := make([]answer.Source, 0, len(hits))
	for _, hit := range hits {
		title := hit.Title
		if title == "" {
			title = untitledSource
		}
		src := answer.Source{Title: title, URL: hit.URI}
		if seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}
	return sources
}

func citationsOf(hits []search.Hit) []Citation {
	citations := make([]Citation, len(hits))
	for i, hit := range hits {
		citations[i] = Citation{URI: hit.URI, Score: hit.Score}
	}
	return citations
}
