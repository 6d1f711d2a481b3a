package api

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type Test struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	IsPublished bool   `json:"isPublished"`
}

type QuestionOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID       string           `json:"id"`
	TestID   string           `json:"testId"`
	Text     string           `json:"text"`
	Type     string           `json:"type"`
	Options  []QuestionOption `json:"options,omitempty"`
	ScaleMin int              `json:"scaleMin,omitempty"`
	ScaleMax int              `json:"scaleMax,omitempty"`
	MinLabel string           `json:"minLabel,omitempty"`
	MaxLabel string           `json:"maxLabel,omitempty"`
	Position int              `json:"position"`
}

type UserAnswer struct {
	QuestionID string          `json:"questionId"`
	Value      json.RawMessage `json:"value"`
}

type Submission struct {
	ID          string       `json:"id"`
	TestID      string       `json:"testId"`
	FullName    string       `json:"fullName"`
	Email       string       `json:"email"`
	Answers     []UserAnswer `json:"answers"`
	TimeTaken   int          `json:"timeTaken"`
	StartedAt   time.Time    `json:"startedAt"`
	SubmittedAt *time.Time   `json:"submittedAt,omitempty"`
	Status      string       `json:"analysisStatus,omitempty"`
	Traits      string       `json:"psychologicalTraits,omitempty"`
	AIError     string       `json:"aiError,omitempty"`
	ManualNotes string       `json:"manualAnalysisNotes,omitempty"`
	// ClaimedAt guards the AI analysis step; never exposed over the wire.
	ClaimedAt *time.Time `json:"-"`
}

type Notification struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submissionId"`
	Recipient    string    `json:"recipient"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	SentAt       time.Time `json:"sentAt"`
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target,omitempty"`
	Note   string    `json:"note,omitempty"`
}

type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AdminUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"-"`
	TenantID  string    `json:"tenantId"`
	CreatedAt time.Time `json:"createdAt"`
}

type memoryStore struct {
	mu            sync.RWMutex
	tests         map[string]*Test
	questions     map[string]*Question
	submissions   map[string]*Submission
	notifications []*Notification
	audit         []AuditEntry
	tenants       map[string]*Tenant
	adminsByEmail map[string]*AdminUser
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tests:         map[string]*Test{},
		questions:     map[string]*Question{},
		submissions:   map[string]*Submission{},
		tenants:       map[string]*Tenant{},
		adminsByEmail: map[string]*AdminUser{},
	}
}

// NewMemoryStore returns an in-memory Store for tests and dev runs without a
// database file.
func NewMemoryStore() Store { return newMemoryStore() }

func (s *memoryStore) InsertTest(t *Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tests[t.ID] = &cp
	return nil
}

func (s *memoryStore) GetTest(id string) *Test {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tests[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

func (s *memoryStore) UpdateTest(t *Test) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[t.ID]; !ok {
		return false
	}
	cp := *t
	s.tests[t.ID] = &cp
	return true
}

func (s *memoryStore) DeleteTest(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[id]; !ok {
		return false
	}
	delete(s.tests, id)
	for qid, q := range s.questions {
		if q.TestID == id {
			delete(s.questions, qid)
		}
	}
	for sid, sub := range s.submissions {
		if sub.TestID == id {
			delete(s.submissions, sid)
		}
	}
	return true
}

func (s *memoryStore) ListTestsByTenant(tid string) []*Test {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Test{}
	for _, t := range s.tests {
		if t.TenantID == tid {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryStore) ListPublishedTests() []*Test {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Test{}
	for _, t := range s.tests {
		if t.IsPublished {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryStore) InsertQuestion(q *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	if cp.Position == 0 {
		// append at the end of the test
		max := -1
		for _, other := range s.questions {
			if other.TestID == q.TestID && other.Position > max {
				max = other.Position
			}
		}
		cp.Position = max + 1
	}
	s.questions[q.ID] = &cp
	return nil
}

func (s *memoryStore) GetQuestion(id string) *Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.questions[id]; ok {
		cp := *q
		return &cp
	}
	return nil
}

func (s *memoryStore) UpdateQuestion(q *Question) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return false
	}
	cp := *q
	s.questions[q.ID] = &cp
	return true
}

func (s *memoryStore) DeleteQuestion(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return false
	}
	delete(s.questions, id)
	return true
}

func (s *memoryStore) ListQuestions(testID string) []*Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Question{}
	for _, q := range s.questions {
		if q.TestID == testID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position == out[j].Position {
			return out[i].ID < out[j].ID
		}
		return out[i].Position < out[j].Position
	})
	return out
}

func (s *memoryStore) ReorderQuestions(testID string, order []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range order {
		q, ok := s.questions[id]
		if !ok || q.TestID != testID {
			return false
		}
	}
	for pos, id := range order {
		s.questions[id].Position = pos
	}
	return true
}

func (s *memoryStore) InsertSubmission(sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.submissions[sub.ID] = &cp
	return nil
}

func (s *memoryStore) GetSubmission(id string) *Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub, ok := s.submissions[id]; ok {
		cp := *sub
		return &cp
	}
	return nil
}

func (s *memoryStore) UpdateSubmission(sub *Submission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.submissions[sub.ID]
	if !ok {
		return false
	}
	cp := *sub
	cp.ClaimedAt = cur.ClaimedAt
	s.submissions[sub.ID] = &cp
	return true
}

func (s *memoryStore) ListSubmissions(testID string) []*Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Submission{}
	for _, sub := range s.submissions {
		if testID == "" || sub.TestID == testID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// ClaimAnalysis succeeds only for a pending submission whose claim is absent
// or older than staleBefore.
func (s *memoryStore) ClaimAnalysis(id string, now, staleBefore time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok || sub.Status != "pending_ai" {
		return false
	}
	if sub.ClaimedAt != nil && sub.ClaimedAt.After(staleBefore) {
		return false
	}
	t := now
	sub.ClaimedAt = &t
	return true
}

// CompleteAnalysis writes the analysis outcome only when the status still
// matches fromStatus, clearing the claim either way it succeeds.
func (s *memoryStore) CompleteAnalysis(id, fromStatus, toStatus, traits, aiError string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok || sub.Status != fromStatus {
		return false
	}
	sub.Status = toStatus
	sub.Traits = traits
	sub.AIError = aiError
	sub.ClaimedAt = nil
	return true
}

func (s *memoryStore) SetReview(id, status, notes string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok || sub.Status == "" {
		return false
	}
	sub.Status = status
	sub.ManualNotes = notes
	sub.ClaimedAt = nil
	if status == "pending_ai" {
		sub.Traits = ""
		sub.AIError = ""
	}
	return true
}

func (s *memoryStore) InsertNotification(n *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications = append(s.notifications, &cp)
}

func (s *memoryStore) ListNotifications(submissionID string) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Notification{}
	for _, n := range s.notifications {
		if submissionID == "" || n.SubmissionID == submissionID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

func (s *memoryStore) AddAudit(e AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

func (s *memoryStore) ListAudit() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditEntry(nil), s.audit...)
}

func (s *memoryStore) AddTenant(t *Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tenants[t.ID] = &cp
}

func (s *memoryStore) AddAdmin(u *AdminUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.adminsByEmail[u.Email] = &cp
}

func (s *memoryStore) FindAdminByEmail(email string) *AdminUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.adminsByEmail[email]; ok {
		cp := *u
		return &cp
	}
	return nil
}
