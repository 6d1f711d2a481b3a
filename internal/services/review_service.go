package services

import (
	"fmt"
	"strings"
	"time"
)

// NotificationRecord keeps an audit trail of respondent notifications. The
// sender itself may only simulate delivery but the record is persisted either
// way.
type NotificationRecord struct {
	ID           string
	SubmissionID string
	Recipient    string
	Subject      string
	Body         string
	SentAt       time.Time
}

type NotificationSender interface {
	Send(rec *NotificationRecord) error
}

type ReviewStore interface {
	GetSubmission(id string) (*Submission, error)
	// SetReview conditionally updates the analysis fields of a finalized
	// submission. Returns false when the submission has vanished.
	SetReview(id, status, notes string) (bool, error)
	GetTestTitle(testID string) (string, error)
	InsertNotification(rec *NotificationRecord) error
	AddAudit(entry *AuditEntry) error
}

type ReviewService struct {
	store  ReviewStore
	sender NotificationSender
	now    func() time.Time
	idGen  func() string
}

func NewReviewService(store ReviewStore, sender NotificationSender) *ReviewService {
	return &ReviewService{
		store:  store,
		sender: sender,
		now:    func() time.Time { return time.Now().UTC() },
		idGen:  func() string { return shortID(12) },
	}
}

// Review records a manual analysis outcome, or resets the submission to
// pending_ai so the automated pass can run again. Resetting clears any stale
// analysis claim so a later results-page load can re-claim immediately.
func (s *ReviewService) Review(actor, id, status, notes string) (*Submission, error) {
	if !ValidAnalysisStatus(status) {
		return nil, NewInvalidError(fmt.Sprintf("unknown analysis status %q", status))
	}
	sub, err := s.store.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status == "" {
		return nil, NewNotFoundError("submission not found")
	}

	if status == StatusPendingAI {
		notes = ""
	}
	ok, err := s.store.SetReview(id, status, notes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotFoundError("submission no longer exists")
	}

	if err := s.store.AddAudit(&AuditEntry{
		Time:   s.now(),
		Actor:  actor,
		Action: "review_submission",
		Target: id,
		Note:   "status=" + status,
	}); err != nil {
		return nil, err
	}

	sub, err = s.store.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, NewNotFoundError("submission no longer exists")
	}
	return sub, nil
}

// Notify sends the manual-analysis summary to the respondent. It refuses with
// distinct messages when the notes are missing and when the submission is not
// in manual_review_completed, so the admin UI can say exactly what to fix.
func (s *ReviewService) Notify(actor, id string) (*NotificationRecord, error) {
	sub, err := s.store.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status == "" {
		return nil, NewNotFoundError("submission not found")
	}
	if sub.Status != StatusManualReviewCompleted {
		return nil, NewInvalidError(fmt.Sprintf("notification requires a completed manual review; submission is %s", sub.Status))
	}
	if strings.TrimSpace(sub.ManualNotes) == "" {
		return nil, NewInvalidError("manual analysis notes are required before sending a notification")
	}

	title, err := s.store.GetTestTitle(sub.TestID)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = "your test"
	}

	rec := &NotificationRecord{
		ID:           s.idGen(),
		SubmissionID: sub.ID,
		Recipient:    sub.Email,
		Subject:      fmt.Sprintf("Your results for %s are ready", title),
		Body:         sub.ManualNotes,
		SentAt:       s.now(),
	}
	if err := s.sender.Send(rec); err != nil {
		return nil, NewBadGatewayError("failed to send notification: " + err.Error())
	}
	if err := s.store.InsertNotification(rec); err != nil {
		return nil, err
	}
	if err := s.store.AddAudit(&AuditEntry{
		Time:   s.now(),
		Actor:  actor,
		Action: "notify_respondent",
		Target: id,
		Note:   "recipient=" + sub.Email,
	}); err != nil {
		return nil, err
	}
	return rec, nil
}
