package services

import "time"

// Analysis lifecycle statuses for a test submission. The empty string is the
// implicit "started, not yet finished" state and never appears after Finish.
const (
	StatusPendingAI             = "pending_ai"
	StatusAICompleted           = "ai_completed"
	StatusAIFailedPendingManual = "ai_failed_pending_manual"
	StatusManualReviewCompleted = "manual_review_completed"
)

// ValidAnalysisStatus reports whether s is one of the four reviewable statuses.
func ValidAnalysisStatus(s string) bool {
	switch s {
	case StatusPendingAI, StatusAICompleted, StatusAIFailedPendingManual, StatusManualReviewCompleted:
		return true
	}
	return false
}

type AuditEntry struct {
	Time   time.Time
	Actor  string
	Action string
	Target string
	Note   string
}
