package ai

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/traitlab/traitlab/internal/services"
)

func kindOf(t *testing.T, err error) services.AnalysisErrorKind {
	t.Helper()
	var ae *services.AnalysisError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AnalysisError, got %v", err)
	}
	return ae.Kind
}

func TestClassifyGenAIError(t *testing.T) {
	if got := kindOf(t, classifyGenAIError(context.DeadlineExceeded)); got != services.AnalysisTimeout {
		t.Fatalf("deadline kind = %q", got)
	}
	if got := kindOf(t, classifyGenAIError(genai.APIError{Code: 429, Message: "quota"})); got != services.AnalysisOverloaded {
		t.Fatalf("429 kind = %q", got)
	}
	if got := kindOf(t, classifyGenAIError(genai.APIError{Code: 503, Message: "overloaded"})); got != services.AnalysisOverloaded {
		t.Fatalf("503 kind = %q", got)
	}
	if got := kindOf(t, classifyGenAIError(genai.APIError{Code: 400, Message: "bad request"})); got != services.AnalysisFailed {
		t.Fatalf("400 kind = %q", got)
	}
	if got := kindOf(t, classifyGenAIError(errors.New("dial tcp"))); got != services.AnalysisFailed {
		t.Fatalf("plain error kind = %q", got)
	}
}

func TestDisabledAnalyzer(t *testing.T) {
	_, err := Disabled().Analyze(context.Background(), services.AnalysisRequest{})
	if got := kindOf(t, err); got != services.AnalysisUnavailable {
		t.Fatalf("disabled kind = %q", got)
	}
}

func TestNewGeminiAnalyzerRequiresKey(t *testing.T) {
	if _, err := NewGeminiAnalyzer(context.Background(), GeminiConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
