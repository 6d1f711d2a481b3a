package api

import (
	"github.com/traitlab/traitlab/internal/services"
)

type catalogStoreAdapter struct {
	store Store
}

func newCatalogStoreAdapter(store Store) services.CatalogStore {
	return &catalogStoreAdapter{store: store}
}

func toServiceTest(t *Test) *services.Test {
	if t == nil {
		return nil
	}
	return &services.Test{ID: t.ID, TenantID: t.TenantID, Title: t.Title, Description: t.Description, IsPublished: t.IsPublished}
}

func fromServiceTest(t *services.Test) *Test {
	return &Test{ID: t.ID, TenantID: t.TenantID, Title: t.Title, Description: t.Description, IsPublished: t.IsPublished}
}

func toServiceQuestion(q *Question) *services.Question {
	if q == nil {
		return nil
	}
	opts := make([]services.QuestionOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, services.QuestionOption{ID: o.ID, Text: o.Text})
	}
	return &services.Question{
		ID: q.ID, TestID: q.TestID, Text: q.Text, Type: q.Type,
		Options: opts, ScaleMin: q.ScaleMin, ScaleMax: q.ScaleMax,
		MinLabel: q.MinLabel, MaxLabel: q.MaxLabel, Position: q.Position,
	}
}

func fromServiceQuestion(q *services.Question) *Question {
	opts := make([]QuestionOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, QuestionOption{ID: o.ID, Text: o.Text})
	}
	return &Question{
		ID: q.ID, TestID: q.TestID, Text: q.Text, Type: q.Type,
		Options: opts, ScaleMin: q.ScaleMin, ScaleMax: q.ScaleMax,
		MinLabel: q.MinLabel, MaxLabel: q.MaxLabel, Position: q.Position,
	}
}

func toServiceTests(ts []*Test) []*services.Test {
	out := make([]*services.Test, 0, len(ts))
	for _, t := range ts {
		out = append(out, toServiceTest(t))
	}
	return out
}

func toServiceQuestions(qs []*Question) []*services.Question {
	out := make([]*services.Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, toServiceQuestion(q))
	}
	return out
}

func (a *catalogStoreAdapter) InsertTest(t *services.Test) (*services.Test, error) {
	if err := a.store.InsertTest(fromServiceTest(t)); err != nil {
		return nil, err
	}
	return t, nil
}

func (a *catalogStoreAdapter) GetTest(id string) (*services.Test, error) {
	return toServiceTest(a.store.GetTest(id)), nil
}

func (a *catalogStoreAdapter) UpdateTest(t *services.Test) error {
	if !a.store.UpdateTest(fromServiceTest(t)) {
		return services.NewNotFoundError("test not found")
	}
	return nil
}

func (a *catalogStoreAdapter) DeleteTest(id string) error {
	if !a.store.DeleteTest(id) {
		return services.NewNotFoundError("test not found")
	}
	return nil
}

func (a *catalogStoreAdapter) ListTestsByTenant(tid string) ([]*services.Test, error) {
	return toServiceTests(a.store.ListTestsByTenant(tid)), nil
}

func (a *catalogStoreAdapter) ListPublishedTests() ([]*services.Test, error) {
	return toServiceTests(a.store.ListPublishedTests()), nil
}

func (a *catalogStoreAdapter) InsertQuestion(q *services.Question) (*services.Question, error) {
	stored := fromServiceQuestion(q)
	if err := a.store.InsertQuestion(stored); err != nil {
		return nil, err
	}
	// The store assigns the tail position on insert.
	return toServiceQuestion(a.store.GetQuestion(stored.ID)), nil
}

func (a *catalogStoreAdapter) GetQuestion(id string) (*services.Question, error) {
	return toServiceQuestion(a.store.GetQuestion(id)), nil
}

func (a *catalogStoreAdapter) UpdateQuestion(q *services.Question) error {
	if !a.store.UpdateQuestion(fromServiceQuestion(q)) {
		return services.NewNotFoundError("question not found")
	}
	return nil
}

func (a *catalogStoreAdapter) DeleteQuestion(id string) error {
	if !a.store.DeleteQuestion(id) {
		return services.NewNotFoundError("question not found")
	}
	return nil
}

func (a *catalogStoreAdapter) ListQuestions(testID string) ([]*services.Question, error) {
	return toServiceQuestions(a.store.ListQuestions(testID)), nil
}

func (a *catalogStoreAdapter) ReorderQuestions(testID string, order []string) (bool, error) {
	return a.store.ReorderQuestions(testID, order), nil
}

func (a *catalogStoreAdapter) AddAudit(entry *services.AuditEntry) error {
	a.store.AddAudit(AuditEntry{Time: entry.Time, Actor: entry.Actor, Action: entry.Action, Target: entry.Target, Note: entry.Note})
	return nil
}

var _ services.CatalogStore = (*catalogStoreAdapter)(nil)
