package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type submissionStubStore struct {
	test        *PlayableTest
	questionIDs []string
	subs        map[string]*Submission
	insertErr   error
}

func newSubmissionStubStore() *submissionStubStore {
	return &submissionStubStore{subs: map[string]*Submission{}}
}

func (s *submissionStubStore) GetPlayableTest(id string) (*PlayableTest, error) {
	if s.test != nil && s.test.ID == id {
		cp := *s.test
		return &cp, nil
	}
	return nil, nil
}

func (s *submissionStubStore) ListQuestionIDs(testID string) ([]string, error) {
	return s.questionIDs, nil
}

func (s *submissionStubStore) InsertSubmission(sub *Submission) (*Submission, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	cp := *sub
	s.subs[sub.ID] = &cp
	return &cp, nil
}

func (s *submissionStubStore) GetSubmission(id string) (*Submission, error) {
	if sub, ok := s.subs[id]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, nil
}

func (s *submissionStubStore) UpdateSubmission(sub *Submission) error {
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func newTestSubmissionService(store *submissionStubStore) *SubmissionService {
	svc := NewSubmissionService(store)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	svc.idGen = func() string { return "SUB123456789" }
	return svc
}

func TestStartCreatesEmptySubmission(t *testing.T) {
	store := newSubmissionStubStore()
	store.test = &PlayableTest{ID: "T1", Published: true}
	svc := newTestSubmissionService(store)

	sub, err := svc.Start(StartRequest{TestID: "T1", FullName: "  Jane Doe ", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if sub.ID != "SUB123456789" {
		t.Fatalf("submission id = %q", sub.ID)
	}
	if sub.FullName != "Jane Doe" {
		t.Fatalf("full name = %q, want trimmed", sub.FullName)
	}
	if len(sub.Answers) != 0 || sub.Answers == nil {
		t.Fatalf("new submission must carry an empty answer list: %+v", sub.Answers)
	}
	if sub.Status != "" {
		t.Fatalf("status = %q, want empty until finish", sub.Status)
	}
	if !sub.StartedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("started at = %v", sub.StartedAt)
	}
}

func TestStartRejectsAdmin(t *testing.T) {
	store := newSubmissionStubStore()
	store.test = &PlayableTest{ID: "T1", Published: true}
	svc := newTestSubmissionService(store)

	_, err := svc.Start(StartRequest{TestID: "T1", FullName: "Admin", Email: "a@example.com", IsAdmin: true})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorForbidden {
		t.Fatalf("expected forbidden error for admin respondent, got %v", err)
	}
	if len(store.subs) != 0 {
		t.Fatalf("submission created despite rejection")
	}
}

func TestStartValidatesIdentity(t *testing.T) {
	store := newSubmissionStubStore()
	store.test = &PlayableTest{ID: "T1", Published: true}
	svc := newTestSubmissionService(store)

	if _, err := svc.Start(StartRequest{TestID: "T1", FullName: "  ", Email: "a@example.com"}); err == nil {
		t.Fatalf("expected error for blank name")
	}
	for _, email := range []string{"", "not-an-email", "two words@example.com", "a@b@c"} {
		if _, err := svc.Start(StartRequest{TestID: "T1", FullName: "Jane", Email: email}); err == nil {
			t.Fatalf("expected error for email %q", email)
		}
	}
}

func TestStartUnpublishedTest(t *testing.T) {
	store := newSubmissionStubStore()
	store.test = &PlayableTest{ID: "T1", Published: false}
	svc := newTestSubmissionService(store)

	_, err := svc.Start(StartRequest{TestID: "T1", FullName: "Jane", Email: "jane@example.com"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not found for unpublished test, got %v", err)
	}
}

func TestStartSurfacesStoreRejection(t *testing.T) {
	store := newSubmissionStubStore()
	store.test = &PlayableTest{ID: "T1", Published: true}
	store.insertErr = errors.New("this address has reached the submission limit")
	svc := newTestSubmissionService(store)

	_, err := svc.Start(StartRequest{TestID: "T1", FullName: "Jane", Email: "jane@example.com"})
	if !errors.Is(err, store.insertErr) {
		t.Fatalf("store rejection not surfaced: %v", err)
	}
}

func TestFinishFiltersAnswers(t *testing.T) {
	store := newSubmissionStubStore()
	store.questionIDs = []string{"Q1", "Q2", "Q3"}
	started := time.Date(2026, 3, 1, 11, 58, 30, 0, time.UTC)
	store.subs["S1"] = &Submission{ID: "S1", TestID: "T1", StartedAt: started}
	svc := newTestSubmissionService(store)

	sub, err := svc.Finish(FinishRequest{
		SubmissionID: "S1",
		Answers: []UserAnswer{
			{QuestionID: "Q1", Value: json.RawMessage(`"first"`)},
			{QuestionID: "Q1", Value: json.RawMessage(`"second"`)},
			{QuestionID: "ghost", Value: json.RawMessage(`"x"`)},
			{QuestionID: "Q3", Value: nil},
			{QuestionID: "Q2", Value: json.RawMessage(`4`)},
		},
	})
	if err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}
	if len(sub.Answers) != 2 {
		t.Fatalf("answers kept = %d, want 2", len(sub.Answers))
	}
	if string(sub.Answers[0].Value) != `"first"` {
		t.Fatalf("first answer must win: %s", sub.Answers[0].Value)
	}
	if sub.Status != StatusPendingAI {
		t.Fatalf("status = %q, want %q", sub.Status, StatusPendingAI)
	}
	if sub.TimeTaken != 90 {
		t.Fatalf("time taken = %d, want 90", sub.TimeTaken)
	}
	if stored := store.subs["S1"]; stored.Status != StatusPendingAI {
		t.Fatalf("finish not persisted: %+v", stored)
	}
}

func TestFinishClientElapsedWins(t *testing.T) {
	store := newSubmissionStubStore()
	store.subs["S1"] = &Submission{ID: "S1", TestID: "T1", StartedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)}
	svc := newTestSubmissionService(store)

	elapsed := 42
	sub, err := svc.Finish(FinishRequest{SubmissionID: "S1", ElapsedSeconds: &elapsed})
	if err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}
	if sub.TimeTaken != 42 {
		t.Fatalf("time taken = %d, want client-reported 42", sub.TimeTaken)
	}

	negative := -5
	store.subs["S2"] = &Submission{ID: "S2", TestID: "T1", StartedAt: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC)}
	sub, err = svc.Finish(FinishRequest{SubmissionID: "S2", ElapsedSeconds: &negative})
	if err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}
	if sub.TimeTaken != 60 {
		t.Fatalf("negative client value must fall back to server clock: %d", sub.TimeTaken)
	}
}

func TestFinishTwiceConflicts(t *testing.T) {
	store := newSubmissionStubStore()
	store.subs["S1"] = &Submission{ID: "S1", TestID: "T1", StartedAt: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC)}
	svc := newTestSubmissionService(store)

	if _, err := svc.Finish(FinishRequest{SubmissionID: "S1"}); err != nil {
		t.Fatalf("first finish returned error: %v", err)
	}
	_, err := svc.Finish(FinishRequest{SubmissionID: "S1"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("expected conflict on second finish, got %v", err)
	}
}

func TestGetMissingSubmission(t *testing.T) {
	svc := newTestSubmissionService(newSubmissionStubStore())
	_, err := svc.Get("nope")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
