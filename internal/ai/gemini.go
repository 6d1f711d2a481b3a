package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/traitlab/traitlab/internal/services"
	"github.com/traitlab/traitlab/internal/utils"
)

// GeminiConfig carries the settings for the Gemini analyzer.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// ConfigFromEnv reads GEMINI_API_KEY and GEMINI_MODEL. An empty APIKey means
// the analyzer is disabled.
func ConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey: utils.SafeEnv("GEMINI_API_KEY", ""),
		Model:  utils.SafeEnv("GEMINI_MODEL", "gemini-2.0-flash"),
	}
}

const promptHeader = `You are a psychologist reviewing answers to a psychological test.
Based on the responses below, write a short analysis of the respondent's
psychological traits in plain prose. If the responses are too sparse or
contradictory to analyze, reply with exactly: ERROR: <one-line reason>.`

type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

func NewGeminiAnalyzer(ctx context.Context, cfg GeminiConfig) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: model}, nil
}

func (a *GeminiAnalyzer) Analyze(ctx context.Context, req services.AnalysisRequest) (*services.AnalysisResult, error) {
	prompt := fmt.Sprintf("%s\n\nTime taken: %d seconds\n\n%s", promptHeader, req.TimeTakenSeconds, req.Responses)
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return nil, classifyGenAIError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, services.NewAnalysisError(services.AnalysisMalformed, "empty model response")
	}
	// The model signals an analysis it could not produce with an explicit
	// ERROR: line; that is a result, not a transport failure.
	if rest, ok := strings.CutPrefix(text, "ERROR:"); ok {
		return &services.AnalysisResult{ErrorMessage: strings.TrimSpace(rest)}, nil
	}
	return &services.AnalysisResult{PsychologicalTraits: text}, nil
}

func classifyGenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.NewAnalysisError(services.AnalysisTimeout, err.Error())
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 503:
			return services.NewAnalysisError(services.AnalysisOverloaded, apiErr.Message)
		}
		return services.NewAnalysisError(services.AnalysisFailed, apiErr.Message)
	}
	return services.NewAnalysisError(services.AnalysisFailed, err.Error())
}

// Disabled returns an analyzer that always reports unavailability. Used when
// no API key is configured so submissions fall through to manual review.
func Disabled() services.Analyzer {
	return disabledAnalyzer{}
}

type disabledAnalyzer struct{}

func (disabledAnalyzer) Analyze(context.Context, services.AnalysisRequest) (*services.AnalysisResult, error) {
	return nil, services.NewAnalysisError(services.AnalysisUnavailable, "no api key configured")
}

var _ services.Analyzer = (*GeminiAnalyzer)(nil)
