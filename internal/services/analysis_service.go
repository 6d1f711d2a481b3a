package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// AnalysisErrorKind enumerates collaborator failure classes. The client
// wrapper returns these instead of message text the caller would have to
// string-match.
type AnalysisErrorKind string

const (
	AnalysisOverloaded  AnalysisErrorKind = "overloaded"
	AnalysisTimeout     AnalysisErrorKind = "timeout"
	AnalysisUnavailable AnalysisErrorKind = "unavailable"
	AnalysisMalformed   AnalysisErrorKind = "malformed"
	AnalysisFailed      AnalysisErrorKind = "failed"
)

type AnalysisError struct {
	Kind    AnalysisErrorKind
	Message string
}

func (e *AnalysisError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

func NewAnalysisError(kind AnalysisErrorKind, msg string) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: msg}
}

// AnalysisRequest is the collaborator contract input: the joined Q&A text and
// the elapsed seconds.
type AnalysisRequest struct {
	Responses        string
	TimeTakenSeconds int
}

// AnalysisResult is the collaborator contract output. A response that carries
// ErrorMessage instead of traits counts as a failed analysis even though the
// call itself succeeded.
type AnalysisResult struct {
	PsychologicalTraits string
	ErrorMessage        string
}

type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}

// PromptQuestion carries the question text needed to assemble the prompt.
type PromptQuestion struct {
	ID   string
	Text string
}

type AnalysisStore interface {
	GetSubmission(id string) (*Submission, error)
	ListPromptQuestions(testID string) ([]*PromptQuestion, error)
	// ClaimAnalysis marks a pending_ai submission as being analyzed. It
	// returns false when the submission is not pending or another caller
	// holds an unexpired claim.
	ClaimAnalysis(id string, now, staleBefore time.Time) (bool, error)
	// CompleteAnalysis writes the outcome conditionally on the current
	// status still being fromStatus, clearing any claim. Returns false when
	// the guard fails.
	CompleteAnalysis(id, fromStatus, toStatus, traits, aiError string) (bool, error)
}

type AnalysisService struct {
	store    AnalysisStore
	analyzer Analyzer
	now      func() time.Time
	claimTTL time.Duration
	timeout  time.Duration
}

func NewAnalysisService(store AnalysisStore, analyzer Analyzer) *AnalysisService {
	return &AnalysisService{
		store:    store,
		analyzer: analyzer,
		now:      func() time.Time { return time.Now().UTC() },
		claimTTL: 2 * time.Minute,
		timeout:  30 * time.Second,
	}
}

// EnsureAnalyzed runs the Analyze transition for a pending_ai submission and
// returns the submission in its resulting state. Submissions in any other
// status are returned untouched and the collaborator is not invoked. The
// claim step keeps concurrent results-page loads from invoking the
// collaborator twice; claim losers see the row as it currently stands.
func (s *AnalysisService) EnsureAnalyzed(ctx context.Context, id string) (*Submission, error) {
	sub, err := s.store.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, NewNotFoundError("submission not found")
	}
	if sub.Status != StatusPendingAI {
		return sub, nil
	}

	now := s.now()
	claimed, err := s.store.ClaimAnalysis(id, now, now.Add(-s.claimTTL))
	if err != nil {
		return nil, err
	}
	if !claimed {
		return sub, nil
	}

	questions, err := s.store.ListPromptQuestions(sub.TestID)
	if err != nil {
		return nil, err
	}
	req := AnalysisRequest{
		Responses:        BuildResponsesText(questions, sub.Answers),
		TimeTakenSeconds: sub.TimeTaken,
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, aerr := s.analyzer.Analyze(ctx, req)

	toStatus := StatusAICompleted
	traits := ""
	aiMsg := ""
	switch {
	case aerr != nil:
		toStatus = StatusAIFailedPendingManual
		aiMsg = classifyAnalysisFailure(aerr)
	case res == nil || strings.TrimSpace(res.PsychologicalTraits) == "":
		toStatus = StatusAIFailedPendingManual
		if res != nil && res.ErrorMessage != "" {
			aiMsg = res.ErrorMessage
		} else {
			aiMsg = "The AI response was missing the expected analysis. Please review manually."
		}
	case res.ErrorMessage != "":
		toStatus = StatusAIFailedPendingManual
		aiMsg = res.ErrorMessage
	default:
		traits = strings.TrimSpace(res.PsychologicalTraits)
	}

	ok, werr := s.store.CompleteAnalysis(id, StatusPendingAI, toStatus, traits, aiMsg)
	if werr != nil {
		// The respondent still reaches a results view: hand back an
		// in-memory copy of the outcome and leave the row for a later
		// retry once the claim expires.
		log.Printf("analysis: persist outcome for submission %s: %v", id, werr)
		cp := *sub
		cp.Status, cp.Traits, cp.AIError = toStatus, traits, aiMsg
		return &cp, nil
	}
	if !ok {
		// Lost the write race; trust whatever landed.
		cur, gerr := s.store.GetSubmission(id)
		if gerr == nil && cur != nil {
			return cur, nil
		}
	}
	cp := *sub
	cp.Status, cp.Traits, cp.AIError = toStatus, traits, aiMsg
	return &cp, nil
}

// BuildResponsesText joins question text and answer values in question order.
// Unanswered questions are skipped.
func BuildResponsesText(questions []*PromptQuestion, answers []UserAnswer) string {
	byID := make(map[string]json.RawMessage, len(answers))
	for _, a := range answers {
		if _, dup := byID[a.QuestionID]; !dup {
			byID[a.QuestionID] = a.Value
		}
	}
	var b strings.Builder
	for _, q := range questions {
		v, ok := byID[q.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", q.Text, AnswerValueString(v))
	}
	return strings.TrimSpace(b.String())
}

// AnswerValueString renders a JSON scalar answer as plain text.
func AnswerValueString(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatFloat(num, 'f', -1, 64)
	}
	return strings.Trim(string(raw), "\"")
}

func classifyAnalysisFailure(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case AnalysisOverloaded:
			return "The AI model is currently overloaded. Please review manually or retry later."
		case AnalysisTimeout:
			return "The AI analysis timed out. Please review manually."
		case AnalysisUnavailable:
			return "AI analysis is not available. Please review manually."
		case AnalysisMalformed:
			return "The AI response was missing the expected analysis. Please review manually."
		}
		if ae.Message != "" {
			return "AI analysis failed: " + ae.Message
		}
		return "AI analysis failed."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The AI analysis timed out. Please review manually."
	}
	return "AI analysis failed: " + err.Error()
}
