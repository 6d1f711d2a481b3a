package api

import (
	"github.com/traitlab/traitlab/internal/services"
)

type reviewStoreAdapter struct {
	store Store
}

func newReviewStoreAdapter(store Store) services.ReviewStore {
	return &reviewStoreAdapter{store: store}
}

func (a *reviewStoreAdapter) GetSubmission(id string) (*services.Submission, error) {
	return toServiceSubmission(a.store.GetSubmission(id)), nil
}

func (a *reviewStoreAdapter) SetReview(id, status, notes string) (bool, error) {
	return a.store.SetReview(id, status, notes), nil
}

func (a *reviewStoreAdapter) GetTestTitle(testID string) (string, error) {
	if t := a.store.GetTest(testID); t != nil {
		return t.Title, nil
	}
	return "", nil
}

func (a *reviewStoreAdapter) InsertNotification(rec *services.NotificationRecord) error {
	if rec == nil {
		return services.NewInvalidError("notification required")
	}
	a.store.InsertNotification(&Notification{
		ID:           rec.ID,
		SubmissionID: rec.SubmissionID,
		Recipient:    rec.Recipient,
		Subject:      rec.Subject,
		Body:         rec.Body,
		SentAt:       rec.SentAt,
	})
	return nil
}

func (a *reviewStoreAdapter) AddAudit(entry *services.AuditEntry) error {
	a.store.AddAudit(AuditEntry{Time: entry.Time, Actor: entry.Actor, Action: entry.Action, Target: entry.Target, Note: entry.Note})
	return nil
}

var _ services.ReviewStore = (*reviewStoreAdapter)(nil)
