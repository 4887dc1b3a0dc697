// Package search retrieves knowledge-base excerpts from an AWS Kendra index.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kendra"
	"github.com/aws/aws-sdk-go-v2/service/kendra/types"
	"go.uber.org/zap"

	"github.com/your-org/kb-assistant/internal/query"
)

// ErrSearchUnavailable reports that every search call failed. Callers that
// prefer graceful degradation treat it as zero hits.
var ErrSearchUnavailable = errors.New("search backend unavailable")

// DedupPrefixLen is the number of excerpt bytes combined with the source
// identifier to form the deduplication key.
const DedupPrefixLen = 80

// QueryAPI is the subset of the Kendra client used by the retriever.
type QueryAPI interface {
	Query(ctx context.Context, params *kendra.QueryInput, optFns ...func(*kendra.Options)) (*kendra.QueryOutput, error)
}

// Hit is a single retrieved excerpt with its source document. Hits are
// immutable and discarded after the request.
type Hit struct {
	DocumentID string
	URI        string
	Title      string
	Excerpt    string
	Score      *float64
}

// Retriever queries a Kendra index once per expanded query variant,
// collecting deduplicated hits up to a limit.
type Retriever struct {
	api     QueryAPI
	indexID string
	logger  *zap.Logger
}

// NewRetriever creates a retriever for the given index. An empty index ID is
// allowed and yields zero hits, so the service can run without a KB.
func NewRetriever(api QueryAPI, indexID string, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{api: api, indexID: indexID, logger: logger}
}

type dedupKey struct {
	source string
	prefix string
}

// Retrieve collects up to limit hits for the message. A failed call for one
// query variant is logged and skipped; ErrSearchUnavailable is returned only
// when every attempted variant failed, so callers can tell "no hits" from
// "backend unreachable".
func (r *Retriever) Retrieve(ctx context.Context, message string, limit int) ([]Hit, error) {
	if r.indexID == "" || limit <= 0 {
		return nil, nil
	}

	variants := query.Expand(message)
	hits := make([]Hit, 0, limit)
	seen := make(map[dedupKey]bool)

	var attempted, failed int
	var lastErr error

	for _, variant := range variants {
		if len(hits) >= limit {
			break
		}
		attempted++

		out, err := r.api.Query(ctx, &kendra.QueryInput{
			IndexId:   aws.String(r.indexID),
			QueryText: aws.String(variant),
			PageSize:  aws.Int32(int32(limit)),
		})
		if err != nil {
			failed++
			lastErr = err
			r.logger.Warn("Kendra query failed, skipping variant",
				zap.String("variant", variant),
				zap.Error(err))
			continue
		}

		for _, item := range out.ResultItems {
			if len(hits) >= limit {
				break
			}
			hit, ok := hitFromItem(item)
			if !ok {
				continue
			}
			key := dedupKey{source: sourceKeyOf(hit), prefix: truncate(hit.Excerpt, DedupPrefixLen)}
			if seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, hit)
		}
	}

	if failed == attempted && failed > 0 {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, lastErr)
	}

	r.logger.Debug("Retrieval completed",
		zap.Int("variants", len(variants)),
		zap.Int("attempted", attempted),
		zap.Int("failed", failed),
		zap.Int("hits", len(hits)))

	return hits, nil
}

// hitFromItem converts a Kendra result item into a Hit. Items outside the
// type allow-list or without an extractable excerpt are dropped.
func hitFromItem(item types.QueryResultItem) (Hit, bool) {
	switch item.Type {
	case types.QueryResultTypeAnswer, types.QueryResultTypeDocument:
	default:
		return Hit{}, false
	}

	excerpt := extractExcerpt(item)
	if strings.TrimSpace(excerpt) == "" {
		return Hit{}, false
	}

	hit := Hit{
		DocumentID: aws.ToString(item.DocumentId),
		URI:        aws.ToString(item.DocumentURI),
		Excerpt:    excerpt,
		Score:      scoreOf(item.ScoreAttributes),
	}
	if item.DocumentTitle != nil {
		hit.Title = aws.ToString(item.DocumentTitle.Text)
	}
	if hit.URI == "" {
		hit.URI = documentURIAttribute(item.DocumentAttributes)
	}
	return hit, true
}

// extractExcerpt pulls text from the primary excerpt field, falling back to
// the first text-valued additional attribute (e.g. Kendra answer text).
func extractExcerpt(item types.QueryResultItem) string {
	if item.DocumentExcerpt != nil {
		if text := aws.ToString(item.DocumentExcerpt.Text); text != "" {
			return text
		}
	}
	for _, attr := range item.AdditionalAttributes {
		if attr.Value == nil || attr.Value.TextWithHighlightsValue == nil {
			continue
		}
		if text := aws.ToString(attr.Value.TextWithHighlightsValue.Text); text != "" {
			return text
		}
	}
	return ""
}

// documentURIAttribute looks up a source URI carried as a document attribute.
func documentURIAttribute(attrs []types.DocumentAttribute) string {
	for _, attr := range attrs {
		key := aws.ToString(attr.Key)
		if key != "_source_uri" && key != "DocumentURI" {
			continue
		}
		if attr.Value != nil {
			return aws.ToString(attr.Value.StringValue)
		}
	}
	return ""
}

// scoreOf maps Kendra's confidence buckets onto an optional numeric score.
func scoreOf(attrs *types.ScoreAttributes) *float64 {
	if attrs == nil {
		return nil
	}
	var score float64
	switch attrs.ScoreConfidence {
	case types.ScoreConfidenceVeryHigh:
		score = 1.0
	case types.ScoreConfidenceHigh:
		score = 0.75
	case types.ScoreConfidenceMedium:
		score = 0.5
	case types.ScoreConfidenceLow:
		score = 0.25
	default:
		return nil
	}
	return &score
}

func sourceKeyOf(hit Hit) string {
	if hit.URI != "" {
		return hit.URI
	}
	return hit.DocumentID
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
