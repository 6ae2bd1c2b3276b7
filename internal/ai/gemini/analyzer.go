package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/company-scout/internal/ai"
	"github.com/spigell/company-scout/internal/company"
	"github.com/spigell/company-scout/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	defaultLanguage     = "English"

	analysesKey = "analyses"
)

// Analyzer evaluates batches of companies with a content generator.
type Analyzer struct {
	generator contentGenerator
	language  string
	logger    *zap.Logger
	maxLogLen int
}

func NewAnalyzer(generator contentGenerator, language string, maxLogLength int, logger *zap.Logger) *Analyzer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	if language = strings.TrimSpace(language); language == "" {
		language = defaultLanguage
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Analyzer{
		generator: generator,
		language:  language,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Analyze renders the batch prompt, invokes the generator and parses the
// returned scores. A response that cannot be parsed is requested once more
// before the failure is reported.
func (a *Analyzer) Analyze(ctx context.Context, batch []*company.Company, job string, batchNum int) (*ai.Analysis, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("batch %d is empty", batchNum)
	}

	job = strings.TrimSpace(job)
	if job == "" {
		return nil, fmt.Errorf("job title is required")
	}

	system := fmt.Sprintf("You are a technical recruiter specializing in %s positions.", job)
	prompt := buildPrompt(batch, job, a.language)

	a.logger.Debug("gemini batch analysis request",
		zap.Int("batch", batchNum),
		zap.Int("companies", len(batch)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
	)

	var (
		raw    string
		scores []ai.ScoredCompany
		err    error
	)

	// One extra request for a malformed response only. Transport-level
	// retries belong to the generator.
	for attempt := 1; attempt <= 2; attempt++ {
		raw, err = a.generator.GenerateContent(ctx, system, prompt)
		if err != nil {
			return nil, err
		}

		a.logger.Debug("gemini batch analysis response",
			zap.Int("batch", batchNum),
			zap.Int("response_length", utf8.RuneCountInString(raw)),
			zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
		)

		scores, err = parseResponse(raw)
		if err == nil {
			break
		}

		if attempt == 1 {
			a.logger.Warn("unparseable model response, requesting batch again",
				zap.Int("batch", batchNum),
				zap.Error(err),
			)
		}
	}

	if err != nil {
		return nil, err
	}

	a.validate(scores, len(batch), batchNum)

	return &ai.Analysis{Scores: scores, Raw: raw}, nil
}

// validate clamps out-of-range scores and reports count mismatches. The model
// output is best-effort, so both conditions are tolerated.
func (a *Analyzer) validate(scores []ai.ScoredCompany, expected, batchNum int) {
	for i := range scores {
		if scores[i].Score < 0 || scores[i].Score > 100 {
			a.logger.Warn("score out of range, clamping",
				zap.Int("batch", batchNum),
				zap.String("company", scores[i].CompanyName),
				zap.Float64("score", scores[i].Score),
			)
			scores[i].Score = clamp(scores[i].Score)
		}
	}

	if len(scores) != expected {
		a.logger.Warn("result count does not match batch size",
			zap.Int("batch", batchNum),
			zap.Int("expected", expected),
			zap.Int("got", len(scores)),
		)
	}
}

func buildPrompt(batch []*company.Company, job, language string) string {
	var companies strings.Builder
	for i, c := range batch {
		if i > 0 {
			companies.WriteString("\n\n")
		}
		companies.WriteString(fmt.Sprintf("Company %d: %s\n%s", i+1, c.Name, c.About))
	}

	prompt := strings.ReplaceAll(promptTemplate, "{{JOB}}", job)
	prompt = strings.ReplaceAll(prompt, "{{LANGUAGE}}", language)
	prompt = strings.ReplaceAll(prompt, "{{COMPANIES}}", companies.String())
	return prompt
}

func parseResponse(raw string) ([]ai.ScoredCompany, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	analyses, ok := data[analysesKey]
	if !ok {
		return nil, fmt.Errorf("gemini response has no %q key", analysesKey)
	}

	// The model is loose with types (scores come back as strings at times),
	// so decode weakly instead of unmarshalling strictly.
	var scores []ai.ScoredCompany
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &scores,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	if err := decoder.Decode(analyses); err != nil {
		return nil, fmt.Errorf("decode analyses: %w", err)
	}

	return scores, nil
}

// extractJSON returns the inner text of the first ```json fenced block,
// regardless of surrounding prose. Input without a complete fenced block is
// returned unchanged and assumed to already be JSON.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "```json")
	if start == -1 {
		return raw
	}

	inner := raw[start+len("```json"):]
	inner = strings.TrimPrefix(inner, "\n")

	end := strings.Index(inner, "```")
	if end == -1 {
		return raw
	}

	return strings.TrimSpace(inner[:end])
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
