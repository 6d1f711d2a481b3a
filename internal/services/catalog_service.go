package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorBadGateway   ErrorCode = "bad_gateway"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewBadGatewayError(msg string) error { return &ServiceError{Code: ErrorBadGateway, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Question types supported by the test player.
const (
	QuestionMultipleChoice = "multiple-choice"
	QuestionRatingScale    = "rating-scale"
	QuestionOpenEnded      = "open-ended"
)

// Per-question countdown durations handed to the player. Open-ended questions
// get more time than choice questions.
const (
	OpenEndedTimeLimitSeconds = 120
	ChoiceTimeLimitSeconds    = 30
)

// TimeLimitSeconds returns the countdown duration for a question type.
func TimeLimitSeconds(questionType string) int {
	if questionType == QuestionOpenEnded {
		return OpenEndedTimeLimitSeconds
	}
	return ChoiceTimeLimitSeconds
}

type Test struct {
	ID          string
	TenantID    string
	Title       string
	Description string
	IsPublished bool
}

type QuestionOption struct {
	ID   string
	Text string
}

type Question struct {
	ID       string
	TestID   string
	Text     string
	Type     string
	Options  []QuestionOption
	ScaleMin int
	ScaleMax int
	MinLabel string
	MaxLabel string
	Position int
}

// TestPatch carries partial updates for a test; nil fields are left untouched.
type TestPatch struct {
	Title       *string
	Description *string
	IsPublished *bool
}

type CatalogStore interface {
	InsertTest(t *Test) (*Test, error)
	GetTest(id string) (*Test, error)
	UpdateTest(t *Test) error
	DeleteTest(id string) error
	ListTestsByTenant(tid string) ([]*Test, error)
	ListPublishedTests() ([]*Test, error)

	InsertQuestion(q *Question) (*Question, error)
	GetQuestion(id string) (*Question, error)
	UpdateQuestion(q *Question) error
	DeleteQuestion(id string) error
	ListQuestions(testID string) ([]*Question, error)
	ReorderQuestions(testID string, order []string) (bool, error)

	AddAudit(entry *AuditEntry) error
}

type CatalogService struct {
	store CatalogStore
	now   func() time.Time
	idGen func(n int) string
}

func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: shortID,
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

func (s *CatalogService) CreateTest(tenantID, title, description string) (*Test, error) {
	if tenantID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, NewInvalidError("title required")
	}
	t := &Test{
		ID:          s.idGen(8),
		TenantID:    tenantID,
		Title:       title,
		Description: strings.TrimSpace(description),
	}
	created, err := s.store.InsertTest(t)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return t, nil
	}
	return created, nil
}

func (s *CatalogService) UpdateTest(tenantID, id string, patch TestPatch) (*Test, error) {
	t, err := s.ownedTest(tenantID, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, NewInvalidError("title required")
		}
		t.Title = title
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.IsPublished != nil {
		t.IsPublished = *patch.IsPublished
	}
	if err := s.store.UpdateTest(t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTest removes a test together with its questions and their options.
func (s *CatalogService) DeleteTest(tenantID, id, actor string) error {
	if _, err := s.ownedTest(tenantID, id); err != nil {
		return err
	}
	if err := s.store.DeleteTest(id); err != nil {
		return err
	}
	return s.store.AddAudit(&AuditEntry{Time: s.now(), Actor: actor, Action: "delete_test", Target: id})
}

func (s *CatalogService) ListTests(tenantID string) ([]*Test, error) {
	if tenantID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	return s.store.ListTestsByTenant(tenantID)
}

func (s *CatalogService) GetAuthoredTest(tenantID, id string) (*Test, []*Question, error) {
	t, err := s.ownedTest(tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	qs, err := s.store.ListQuestions(id)
	if err != nil {
		return nil, nil, err
	}
	return t, qs, nil
}

// ListPublished returns the public catalog.
func (s *CatalogService) ListPublished() ([]*Test, error) {
	return s.store.ListPublishedTests()
}

// PublishedTest returns a published test and its questions for the player.
// Unpublished and unknown tests are indistinguishable to respondents.
func (s *CatalogService) PublishedTest(id string) (*Test, []*Question, error) {
	t, err := s.store.GetTest(id)
	if err != nil {
		return nil, nil, err
	}
	if t == nil || !t.IsPublished {
		return nil, nil, NewNotFoundError("test not found")
	}
	qs, err := s.store.ListQuestions(id)
	if err != nil {
		return nil, nil, err
	}
	return t, qs, nil
}

func (s *CatalogService) AddQuestion(tenantID string, q *Question) (*Question, error) {
	if q == nil {
		return nil, NewInvalidError("question required")
	}
	if _, err := s.ownedTest(tenantID, q.TestID); err != nil {
		return nil, err
	}
	if err := s.normalizeQuestion(q); err != nil {
		return nil, err
	}
	if q.ID == "" {
		q.ID = s.idGen(8)
	}
	created, err := s.store.InsertQuestion(q)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return q, nil
	}
	return created, nil
}

func (s *CatalogService) UpdateQuestion(tenantID string, q *Question) (*Question, error) {
	if q == nil || q.ID == "" {
		return nil, NewInvalidError("question required")
	}
	existing, err := s.store.GetQuestion(q.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, NewNotFoundError("question not found")
	}
	if _, err := s.ownedTest(tenantID, existing.TestID); err != nil {
		return nil, err
	}
	// The owning test and position are not editable through this path.
	q.TestID = existing.TestID
	q.Position = existing.Position
	if err := s.normalizeQuestion(q); err != nil {
		return nil, err
	}
	if err := s.store.UpdateQuestion(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *CatalogService) DeleteQuestion(tenantID, id string) error {
	existing, err := s.store.GetQuestion(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return NewNotFoundError("question not found")
	}
	if _, err := s.ownedTest(tenantID, existing.TestID); err != nil {
		return err
	}
	return s.store.DeleteQuestion(id)
}

func (s *CatalogService) ReorderQuestions(tenantID, testID string, order []string) (int, error) {
	if len(order) == 0 {
		return 0, NewInvalidError("order required")
	}
	if _, err := s.ownedTest(tenantID, testID); err != nil {
		return 0, err
	}
	ok, err := s.store.ReorderQuestions(testID, order)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, NewInvalidError("reorder failed")
	}
	return len(order), nil
}

func (s *CatalogService) ownedTest(tenantID, id string) (*Test, error) {
	if tenantID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidError("test id required")
	}
	t, err := s.store.GetTest(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, NewNotFoundError("test not found")
	}
	if t.TenantID != tenantID {
		return nil, NewForbiddenError("forbidden")
	}
	return t, nil
}

// normalizeQuestion enforces the per-type invariants before any write:
// multiple-choice needs at least two options, rating scales need min < max.
func (s *CatalogService) normalizeQuestion(q *Question) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return NewInvalidError("question text required")
	}
	switch q.Type {
	case QuestionMultipleChoice:
		opts := make([]QuestionOption, 0, len(q.Options))
		for _, opt := range q.Options {
			text := strings.TrimSpace(opt.Text)
			if text == "" {
				continue
			}
			if opt.ID == "" {
				opt.ID = s.idGen(8)
			}
			opt.Text = text
			opts = append(opts, opt)
		}
		if len(opts) < 2 {
			return NewInvalidError("multiple-choice questions require at least 2 options")
		}
		q.Options = opts
		q.ScaleMin, q.ScaleMax = 0, 0
		q.MinLabel, q.MaxLabel = "", ""
	case QuestionRatingScale:
		if q.ScaleMin == 0 && q.ScaleMax == 0 {
			q.ScaleMin, q.ScaleMax = 1, 5
		}
		if q.ScaleMin >= q.ScaleMax {
			return NewInvalidError("rating-scale questions require scaleMin < scaleMax")
		}
		q.Options = nil
	case QuestionOpenEnded:
		q.Options = nil
		q.ScaleMin, q.ScaleMax = 0, 0
		q.MinLabel, q.MaxLabel = "", ""
	default:
		return NewInvalidError("unknown question type: " + q.Type)
	}
	return nil
}
