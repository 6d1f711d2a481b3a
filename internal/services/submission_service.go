package services

import (
	"encoding/json"
	"math"
	"net/mail"
	"strings"
	"time"
)

// UserAnswer carries the answered value for one question. Value is a JSON
// scalar (string or number) kept verbatim so numeric rating answers and free
// text round-trip without coercion.
type UserAnswer struct {
	QuestionID string
	Value      json.RawMessage
}

type Submission struct {
	ID          string
	TestID      string
	FullName    string
	Email       string
	Answers     []UserAnswer
	TimeTaken   int
	StartedAt   time.Time
	SubmittedAt time.Time
	Status      string
	Traits      string
	AIError     string
	ManualNotes string
}

// PlayableTest captures the fields Start needs from the catalog.
type PlayableTest struct {
	ID        string
	Published bool
}

type SubmissionStore interface {
	GetPlayableTest(id string) (*PlayableTest, error)
	ListQuestionIDs(testID string) ([]string, error)
	InsertSubmission(s *Submission) (*Submission, error)
	GetSubmission(id string) (*Submission, error)
	UpdateSubmission(s *Submission) error
}

type StartRequest struct {
	TestID   string
	FullName string
	Email    string
	// IsAdmin flags a respondent carrying valid admin credentials; admins are
	// kept out of respondent data.
	IsAdmin bool
}

type FinishRequest struct {
	SubmissionID string
	Answers      []UserAnswer
	// ElapsedSeconds is the player's own wall-clock measurement. When absent
	// the server derives it from StartedAt.
	ElapsedSeconds *int
}

type SubmissionService struct {
	store SubmissionStore
	now   func() time.Time
	idGen func() string
}

func NewSubmissionService(store SubmissionStore) *SubmissionService {
	return &SubmissionService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

// Start creates an identity-only submission with no answers and no analysis
// status. Store rejections (e.g. access-policy violations) are surfaced to the
// caller as-is so the respondent sees a descriptive error before the test
// begins.
func (s *SubmissionService) Start(req StartRequest) (*Submission, error) {
	if req.IsAdmin {
		return nil, NewForbiddenError("log out of the admin account before taking a test")
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, NewInvalidError("full name required")
	}
	email := strings.TrimSpace(req.Email)
	if !validEmail(email) {
		return nil, NewInvalidError("a valid email address is required")
	}
	t, err := s.store.GetPlayableTest(req.TestID)
	if err != nil {
		return nil, err
	}
	if t == nil || !t.Published {
		return nil, NewNotFoundError("test not found")
	}
	sub := &Submission{
		ID:        s.idGen(),
		TestID:    t.ID,
		FullName:  fullName,
		Email:     email,
		Answers:   []UserAnswer{},
		StartedAt: s.now(),
	}
	stored, err := s.store.InsertSubmission(sub)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		sub = stored
	}
	return sub, nil
}

// Finish records the final answer list and elapsed time and moves the
// submission to pending_ai. Unanswered questions get no entry; answers for
// unknown questions are dropped; the first answer per question wins.
func (s *SubmissionService) Finish(req FinishRequest) (*Submission, error) {
	sub, err := s.store.GetSubmission(req.SubmissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, NewNotFoundError("submission not found")
	}
	if sub.Status != "" {
		return nil, NewConflictError("submission already finalized")
	}

	ids, err := s.store.ListQuestionIDs(sub.TestID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	answers := make([]UserAnswer, 0, len(req.Answers))
	seen := map[string]bool{}
	for _, a := range req.Answers {
		if !known[a.QuestionID] || seen[a.QuestionID] || len(a.Value) == 0 {
			continue
		}
		seen[a.QuestionID] = true
		answers = append(answers, a)
	}

	now := s.now()
	elapsed := int(math.Round(now.Sub(sub.StartedAt).Seconds()))
	if req.ElapsedSeconds != nil && *req.ElapsedSeconds >= 0 {
		elapsed = *req.ElapsedSeconds
	}

	sub.Answers = answers
	sub.TimeTaken = elapsed
	sub.SubmittedAt = now
	sub.Status = StatusPendingAI
	if err := s.store.UpdateSubmission(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubmissionService) Get(id string) (*Submission, error) {
	sub, err := s.store.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, NewNotFoundError("submission not found")
	}
	return sub, nil
}

func validEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
