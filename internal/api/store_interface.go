package api

import "time"

// Store is the persistence surface the router needs. Reads return nil when
// the row is missing; conditional writes report success as a bool. The SQLite
// implementation lives in internal/db.
type Store interface {
	InsertTest(t *Test) error
	GetTest(id string) *Test
	UpdateTest(t *Test) bool
	DeleteTest(id string) bool
	ListTestsByTenant(tid string) []*Test
	ListPublishedTests() []*Test

	InsertQuestion(q *Question) error
	GetQuestion(id string) *Question
	UpdateQuestion(q *Question) bool
	DeleteQuestion(id string) bool
	ListQuestions(testID string) []*Question
	ReorderQuestions(testID string, order []string) bool

	InsertSubmission(sub *Submission) error
	GetSubmission(id string) *Submission
	UpdateSubmission(sub *Submission) bool
	ListSubmissions(testID string) []*Submission
	ClaimAnalysis(id string, now, staleBefore time.Time) bool
	CompleteAnalysis(id, fromStatus, toStatus, traits, aiError string) bool
	SetReview(id, status, notes string) bool

	InsertNotification(n *Notification)
	ListNotifications(submissionID string) []*Notification

	AddAudit(e AuditEntry)
	ListAudit() []AuditEntry

	AddTenant(t *Tenant)
	AddAdmin(u *AdminUser)
	FindAdminByEmail(email string) *AdminUser
}

var _ Store = (*memoryStore)(nil)
