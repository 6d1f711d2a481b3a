package api

import (
	"github.com/traitlab/traitlab/internal/services"
)

type submissionStoreAdapter struct {
	store Store
}

func newSubmissionStoreAdapter(store Store) services.SubmissionStore {
	return &submissionStoreAdapter{store: store}
}

func toServiceSubmission(sub *Submission) *services.Submission {
	if sub == nil {
		return nil
	}
	answers := make([]services.UserAnswer, 0, len(sub.Answers))
	for _, a := range sub.Answers {
		answers = append(answers, services.UserAnswer{QuestionID: a.QuestionID, Value: a.Value})
	}
	out := &services.Submission{
		ID:          sub.ID,
		TestID:      sub.TestID,
		FullName:    sub.FullName,
		Email:       sub.Email,
		Answers:     answers,
		TimeTaken:   sub.TimeTaken,
		StartedAt:   sub.StartedAt,
		Status:      sub.Status,
		Traits:      sub.Traits,
		AIError:     sub.AIError,
		ManualNotes: sub.ManualNotes,
	}
	if sub.SubmittedAt != nil {
		out.SubmittedAt = *sub.SubmittedAt
	}
	return out
}

func fromServiceSubmission(sub *services.Submission) *Submission {
	answers := make([]UserAnswer, 0, len(sub.Answers))
	for _, a := range sub.Answers {
		answers = append(answers, UserAnswer{QuestionID: a.QuestionID, Value: a.Value})
	}
	out := &Submission{
		ID:          sub.ID,
		TestID:      sub.TestID,
		FullName:    sub.FullName,
		Email:       sub.Email,
		Answers:     answers,
		TimeTaken:   sub.TimeTaken,
		StartedAt:   sub.StartedAt,
		Status:      sub.Status,
		Traits:      sub.Traits,
		AIError:     sub.AIError,
		ManualNotes: sub.ManualNotes,
	}
	if !sub.SubmittedAt.IsZero() {
		t := sub.SubmittedAt
		out.SubmittedAt = &t
	}
	return out
}

func (a *submissionStoreAdapter) GetPlayableTest(id string) (*services.PlayableTest, error) {
	t := a.store.GetTest(id)
	if t == nil {
		return nil, nil
	}
	return &services.PlayableTest{ID: t.ID, Published: t.IsPublished}, nil
}

func (a *submissionStoreAdapter) ListQuestionIDs(testID string) ([]string, error) {
	qs := a.store.ListQuestions(testID)
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.ID)
	}
	return ids, nil
}

func (a *submissionStoreAdapter) InsertSubmission(sub *services.Submission) (*services.Submission, error) {
	if err := a.store.InsertSubmission(fromServiceSubmission(sub)); err != nil {
		return nil, err
	}
	return sub, nil
}

func (a *submissionStoreAdapter) GetSubmission(id string) (*services.Submission, error) {
	return toServiceSubmission(a.store.GetSubmission(id)), nil
}

func (a *submissionStoreAdapter) UpdateSubmission(sub *services.Submission) error {
	if !a.store.UpdateSubmission(fromServiceSubmission(sub)) {
		return services.NewNotFoundError("submission not found")
	}
	return nil
}

var _ services.SubmissionStore = (*submissionStoreAdapter)(nil)
