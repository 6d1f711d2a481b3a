package api

import (
	"time"

	"github.com/traitlab/traitlab/internal/services"
)

type analysisStoreAdapter struct {
	store Store
}

func newAnalysisStoreAdapter(store Store) services.AnalysisStore {
	return &analysisStoreAdapter{store: store}
}

func (a *analysisStoreAdapter) GetSubmission(id string) (*services.Submission, error) {
	return toServiceSubmission(a.store.GetSubmission(id)), nil
}

func (a *analysisStoreAdapter) ListPromptQuestions(testID string) ([]*services.PromptQuestion, error) {
	qs := a.store.ListQuestions(testID)
	out := make([]*services.PromptQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, &services.PromptQuestion{ID: q.ID, Text: q.Text})
	}
	return out, nil
}

func (a *analysisStoreAdapter) ClaimAnalysis(id string, now, staleBefore time.Time) (bool, error) {
	return a.store.ClaimAnalysis(id, now, staleBefore), nil
}

func (a *analysisStoreAdapter) CompleteAnalysis(id, fromStatus, toStatus, traits, aiError string) (bool, error) {
	return a.store.CompleteAnalysis(id, fromStatus, toStatus, traits, aiError), nil
}

var _ services.AnalysisStore = (*analysisStoreAdapter)(nil)
