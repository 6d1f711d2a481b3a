package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type analysisStubStore struct {
	sub        *Submission
	questions  []*PromptQuestion
	claimOK    bool
	claimErr   error
	written    bool
	completeOK bool
	writeErr   error
	toStatus   string
	traits     string
	aiError    string
}

func (s *analysisStubStore) GetSubmission(id string) (*Submission, error) {
	if s.sub != nil && s.sub.ID == id {
		cp := *s.sub
		return &cp, nil
	}
	return nil, nil
}

func (s *analysisStubStore) ListPromptQuestions(testID string) ([]*PromptQuestion, error) {
	return s.questions, nil
}

func (s *analysisStubStore) ClaimAnalysis(id string, now, staleBefore time.Time) (bool, error) {
	return s.claimOK, s.claimErr
}

func (s *analysisStubStore) CompleteAnalysis(id, fromStatus, toStatus, traits, aiError string) (bool, error) {
	if s.writeErr != nil {
		return false, s.writeErr
	}
	s.written = true
	s.toStatus, s.traits, s.aiError = toStatus, traits, aiError
	if s.completeOK && s.sub != nil {
		s.sub.Status, s.sub.Traits, s.sub.AIError = toStatus, traits, aiError
	}
	return s.completeOK, nil
}

type stubAnalyzer struct {
	calls  int
	result *AnalysisResult
	err    error
	gotReq AnalysisRequest
}

func (a *stubAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	a.calls++
	a.gotReq = req
	return a.result, a.err
}

func pendingSubmission() *Submission {
	return &Submission{
		ID:     "S1",
		TestID: "T1",
		Status: StatusPendingAI,
		Answers: []UserAnswer{
			{QuestionID: "Q1", Value: json.RawMessage(`"blue"`)},
			{QuestionID: "Q2", Value: json.RawMessage(`4`)},
		},
		TimeTaken: 75,
	}
}

func TestEnsureAnalyzedSuccess(t *testing.T) {
	store := &analysisStubStore{
		sub:     pendingSubmission(),
		claimOK: true, completeOK: true,
		questions: []*PromptQuestion{
			{ID: "Q1", Text: "Favourite colour?"},
			{ID: "Q2", Text: "Calm under pressure?"},
			{ID: "Q3", Text: "Skipped one"},
		},
	}
	analyzer := &stubAnalyzer{result: &AnalysisResult{PsychologicalTraits: "Calm and deliberate."}}
	svc := NewAnalysisService(store, analyzer)

	sub, err := svc.EnsureAnalyzed(context.Background(), "S1")
	if err != nil {
		t.Fatalf("EnsureAnalyzed returned error: %v", err)
	}
	if sub.Status != StatusAICompleted {
		t.Fatalf("status = %q, want %q", sub.Status, StatusAICompleted)
	}
	if sub.Traits != "Calm and deliberate." || sub.AIError != "" {
		t.Fatalf("unexpected outcome: %+v", sub)
	}
	if store.toStatus != StatusAICompleted {
		t.Fatalf("persisted status = %q", store.toStatus)
	}
	if analyzer.gotReq.TimeTakenSeconds != 75 {
		t.Fatalf("time taken passed = %d, want 75", analyzer.gotReq.TimeTakenSeconds)
	}
	want := "Q: Favourite colour?\nA: blue\n\nQ: Calm under pressure?\nA: 4"
	if analyzer.gotReq.Responses != want {
		t.Fatalf("prompt text = %q, want %q", analyzer.gotReq.Responses, want)
	}
}

func TestEnsureAnalyzedClassifiesFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		frag string
	}{
		{"timeout", NewAnalysisError(AnalysisTimeout, "deadline"), "timed out"},
		{"overloaded", NewAnalysisError(AnalysisOverloaded, "503"), "overloaded"},
		{"unavailable", NewAnalysisError(AnalysisUnavailable, "no key"), "not available"},
		{"malformed", NewAnalysisError(AnalysisMalformed, "empty candidates"), "missing the expected analysis"},
		{"ctx deadline", context.DeadlineExceeded, "timed out"},
		{"plain", errors.New("boom"), "AI analysis failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &analysisStubStore{sub: pendingSubmission(), claimOK: true, completeOK: true}
			analyzer := &stubAnalyzer{err: tc.err}
			svc := NewAnalysisService(store, analyzer)

			sub, err := svc.EnsureAnalyzed(context.Background(), "S1")
			if err != nil {
				t.Fatalf("EnsureAnalyzed returned error: %v", err)
			}
			if sub.Status != StatusAIFailedPendingManual {
				t.Fatalf("status = %q, want failed-pending-manual", sub.Status)
			}
			if !strings.Contains(sub.AIError, tc.frag) {
				t.Fatalf("ai error %q missing %q", sub.AIError, tc.frag)
			}
			if sub.Traits != "" {
				t.Fatalf("traits set on failure: %q", sub.Traits)
			}
		})
	}
}

func TestEnsureAnalyzedErrorPayload(t *testing.T) {
	store := &analysisStubStore{sub: pendingSubmission(), claimOK: true, completeOK: true}
	analyzer := &stubAnalyzer{result: &AnalysisResult{ErrorMessage: "Responses were inconsistent."}}
	svc := NewAnalysisService(store, analyzer)

	sub, err := svc.EnsureAnalyzed(context.Background(), "S1")
	if err != nil {
		t.Fatalf("EnsureAnalyzed returned error: %v", err)
	}
	if sub.Status != StatusAIFailedPendingManual || sub.AIError != "Responses were inconsistent." {
		t.Fatalf("explicit error payload not honoured: %+v", sub)
	}
}

func TestEnsureAnalyzedIdempotent(t *testing.T) {
	done := pendingSubmission()
	done.Status = StatusAICompleted
	done.Traits = "Settled."
	store := &analysisStubStore{sub: done}
	analyzer := &stubAnalyzer{}
	svc := NewAnalysisService(store, analyzer)

	for i := 0; i < 3; i++ {
		sub, err := svc.EnsureAnalyzed(context.Background(), "S1")
		if err != nil {
			t.Fatalf("EnsureAnalyzed returned error: %v", err)
		}
		if sub.Traits != "Settled." {
			t.Fatalf("stored traits changed: %+v", sub)
		}
	}
	if analyzer.calls != 0 {
		t.Fatalf("analyzer invoked %d times for completed submission", analyzer.calls)
	}
}

func TestEnsureAnalyzedClaimDenied(t *testing.T) {
	store := &analysisStubStore{sub: pendingSubmission(), claimOK: false}
	analyzer := &stubAnalyzer{}
	svc := NewAnalysisService(store, analyzer)

	sub, err := svc.EnsureAnalyzed(context.Background(), "S1")
	if err != nil {
		t.Fatalf("EnsureAnalyzed returned error: %v", err)
	}
	if analyzer.calls != 0 {
		t.Fatalf("claim loser must not invoke the analyzer")
	}
	if sub.Status != StatusPendingAI {
		t.Fatalf("claim loser must see the row as-is, got %q", sub.Status)
	}
}

func TestEnsureAnalyzedPersistFailureStillReturnsOutcome(t *testing.T) {
	store := &analysisStubStore{sub: pendingSubmission(), claimOK: true, writeErr: errors.New("disk full")}
	analyzer := &stubAnalyzer{result: &AnalysisResult{PsychologicalTraits: "Curious."}}
	svc := NewAnalysisService(store, analyzer)

	sub, err := svc.EnsureAnalyzed(context.Background(), "S1")
	if err != nil {
		t.Fatalf("EnsureAnalyzed returned error: %v", err)
	}
	if sub.Status != StatusAICompleted || sub.Traits != "Curious." {
		t.Fatalf("in-memory outcome not returned: %+v", sub)
	}
	if store.sub.Status != StatusPendingAI {
		t.Fatalf("row must stay pending for a later retry, got %q", store.sub.Status)
	}
}

func TestEnsureAnalyzedMissingSubmission(t *testing.T) {
	svc := NewAnalysisService(&analysisStubStore{}, &stubAnalyzer{})
	_, err := svc.EnsureAnalyzed(context.Background(), "nope")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnswerValueString(t *testing.T) {
	if got := AnswerValueString(json.RawMessage(`"text"`)); got != "text" {
		t.Fatalf("string answer = %q", got)
	}
	if got := AnswerValueString(json.RawMessage(`4`)); got != "4" {
		t.Fatalf("int answer = %q", got)
	}
	if got := AnswerValueString(json.RawMessage(`3.5`)); got != "3.5" {
		t.Fatalf("float answer = %q", got)
	}
}
