package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/traitlab/traitlab/internal/api"
)

// SQLiteStore implements api.Store on a single sqlite database. Reads follow
// the store contract of nil-on-missing; unexpected driver errors are logged.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sqlite store: %s: %v", prefix, err)
	}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		log.Printf("sqlite store: parse time %q: %v", s, err)
		return time.Time{}
	}
	return t
}

func toNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func fromNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("sqlite store: encode json: %v", err)
		return "[]"
	}
	return string(b)
}

func decodeOptions(raw string) []api.QuestionOption {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []api.QuestionOption
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("sqlite store: decode options: %v", err)
		return nil
	}
	return out
}

func decodeAnswers(raw string) []api.UserAnswer {
	out := []api.UserAnswer{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("sqlite store: decode answers: %v", err)
		return []api.UserAnswer{}
	}
	return out
}

func (s *SQLiteStore) InsertTest(t *api.Test) error {
	_, err := s.db.Exec(
		`INSERT INTO tests (id, tenant_id, title, description, is_published) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.Title, t.Description, boolToInt64(t.IsPublished),
	)
	return err
}

func (s *SQLiteStore) scanTest(row *sql.Row) *api.Test {
	var t api.Test
	var published int64
	err := row.Scan(&t.ID, &t.TenantID, &t.Title, &t.Description, &published)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.logErr("scan test", err)
		return nil
	}
	t.IsPublished = int64ToBool(published)
	return &t
}

func (s *SQLiteStore) GetTest(id string) *api.Test {
	row := s.db.QueryRow(`SELECT id, tenant_id, title, description, is_published FROM tests WHERE id = ?`, id)
	return s.scanTest(row)
}

func (s *SQLiteStore) UpdateTest(t *api.Test) bool {
	res, err := s.db.Exec(
		`UPDATE tests SET tenant_id = ?, title = ?, description = ?, is_published = ? WHERE id = ?`,
		t.TenantID, t.Title, t.Description, boolToInt64(t.IsPublished), t.ID,
	)
	if err != nil {
		s.logErr("update test", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) DeleteTest(id string) bool {
	res, err := s.db.Exec(`DELETE FROM tests WHERE id = ?`, id)
	if err != nil {
		s.logErr("delete test", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) listTests(query string, args ...any) []*api.Test {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.logErr("list tests", err)
		return nil
	}
	defer rows.Close()
	out := []*api.Test{}
	for rows.Next() {
		var t api.Test
		var published int64
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Title, &t.Description, &published); err != nil {
			s.logErr("scan test row", err)
			continue
		}
		t.IsPublished = int64ToBool(published)
		out = append(out, &t)
	}
	s.logErr("iterate tests", rows.Err())
	return out
}

func (s *SQLiteStore) ListTestsByTenant(tid string) []*api.Test {
	return s.listTests(`SELECT id, tenant_id, title, description, is_published FROM tests WHERE tenant_id = ? ORDER BY id`, tid)
}

func (s *SQLiteStore) ListPublishedTests() []*api.Test {
	return s.listTests(`SELECT id, tenant_id, title, description, is_published FROM tests WHERE is_published = 1 ORDER BY id`)
}

func (s *SQLiteStore) InsertQuestion(q *api.Question) error {
	pos := q.Position
	if pos == 0 {
		row := s.db.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM questions WHERE test_id = ?`, q.TestID)
		if err := row.Scan(&pos); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO questions (id, test_id, text, type, options, scale_min, scale_max, min_label, max_label, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.TestID, q.Text, q.Type, encodeJSON(q.Options), q.ScaleMin, q.ScaleMax, q.MinLabel, q.MaxLabel, pos,
	)
	return err
}

func (s *SQLiteStore) GetQuestion(id string) *api.Question {
	row := s.db.QueryRow(
		`SELECT id, test_id, text, type, options, scale_min, scale_max, min_label, max_label, position FROM questions WHERE id = ?`, id)
	var q api.Question
	var options string
	err := row.Scan(&q.ID, &q.TestID, &q.Text, &q.Type, &options, &q.ScaleMin, &q.ScaleMax, &q.MinLabel, &q.MaxLabel, &q.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.logErr("scan question", err)
		return nil
	}
	q.Options = decodeOptions(options)
	return &q
}

func (s *SQLiteStore) UpdateQuestion(q *api.Question) bool {
	res, err := s.db.Exec(
		`UPDATE questions SET text = ?, type = ?, options = ?, scale_min = ?, scale_max = ?, min_label = ?, max_label = ?, position = ? WHERE id = ?`,
		q.Text, q.Type, encodeJSON(q.Options), q.ScaleMin, q.ScaleMax, q.MinLabel, q.MaxLabel, q.Position, q.ID,
	)
	if err != nil {
		s.logErr("update question", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) DeleteQuestion(id string) bool {
	res, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		s.logErr("delete question", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) ListQuestions(testID string) []*api.Question {
	rows, err := s.db.Query(
		`SELECT id, test_id, text, type, options, scale_min, scale_max, min_label, max_label, position
		 FROM questions WHERE test_id = ? ORDER BY position, id`, testID)
	if err != nil {
		s.logErr("list questions", err)
		return nil
	}
	defer rows.Close()
	out := []*api.Question{}
	for rows.Next() {
		var q api.Question
		var options string
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Type, &options, &q.ScaleMin, &q.ScaleMax, &q.MinLabel, &q.MaxLabel, &q.Position); err != nil {
			s.logErr("scan question row", err)
			continue
		}
		q.Options = decodeOptions(options)
		out = append(out, &q)
	}
	s.logErr("iterate questions", rows.Err())
	return out
}

func (s *SQLiteStore) ReorderQuestions(testID string, order []string) bool {
	tx, err := s.db.Begin()
	if err != nil {
		s.logErr("begin reorder", err)
		return false
	}
	defer func() { _ = tx.Rollback() }()
	for pos, id := range order {
		res, err := tx.Exec(`UPDATE questions SET position = ? WHERE id = ? AND test_id = ?`, pos, id, testID)
		if err != nil {
			s.logErr("reorder question", err)
			return false
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false
		}
	}
	if err := tx.Commit(); err != nil {
		s.logErr("commit reorder", err)
		return false
	}
	return true
}

func (s *SQLiteStore) InsertSubmission(sub *api.Submission) error {
	_, err := s.db.Exec(
		`INSERT INTO submissions (id, test_id, full_name, email, answers, time_taken, started_at, submitted_at, analysis_status, traits, ai_error, manual_notes, analysis_claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.TestID, sub.FullName, sub.Email, encodeJSON(sub.Answers), sub.TimeTaken,
		formatTime(sub.StartedAt), toNullTime(sub.SubmittedAt), sub.Status, sub.Traits, sub.AIError, sub.ManualNotes, toNullTime(sub.ClaimedAt),
	)
	return err
}

const submissionColumns = `id, test_id, full_name, email, answers, time_taken, started_at, submitted_at, analysis_status, traits, ai_error, manual_notes, analysis_claimed_at`

func scanSubmission(scan func(dest ...any) error) (*api.Submission, error) {
	var sub api.Submission
	var answers, startedAt string
	var submittedAt, claimedAt sql.NullString
	err := scan(&sub.ID, &sub.TestID, &sub.FullName, &sub.Email, &answers, &sub.TimeTaken,
		&startedAt, &submittedAt, &sub.Status, &sub.Traits, &sub.AIError, &sub.ManualNotes, &claimedAt)
	if err != nil {
		return nil, err
	}
	sub.Answers = decodeAnswers(answers)
	sub.StartedAt = parseTime(startedAt)
	sub.SubmittedAt = fromNullTime(submittedAt)
	sub.ClaimedAt = fromNullTime(claimedAt)
	return &sub, nil
}

func (s *SQLiteStore) GetSubmission(id string) *api.Submission {
	row := s.db.QueryRow(`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.logErr("scan submission", err)
		return nil
	}
	return sub
}

func (s *SQLiteStore) UpdateSubmission(sub *api.Submission) bool {
	res, err := s.db.Exec(
		`UPDATE submissions SET full_name = ?, email = ?, answers = ?, time_taken = ?, submitted_at = ?, analysis_status = ?, traits = ?, ai_error = ?, manual_notes = ? WHERE id = ?`,
		sub.FullName, sub.Email, encodeJSON(sub.Answers), sub.TimeTaken, toNullTime(sub.SubmittedAt),
		sub.Status, sub.Traits, sub.AIError, sub.ManualNotes, sub.ID,
	)
	if err != nil {
		s.logErr("update submission", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) ListSubmissions(testID string) []*api.Submission {
	query := `SELECT ` + submissionColumns + ` FROM submissions ORDER BY started_at`
	args := []any{}
	if testID != "" {
		query = `SELECT ` + submissionColumns + ` FROM submissions WHERE test_id = ? ORDER BY started_at`
		args = append(args, testID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.logErr("list submissions", err)
		return nil
	}
	defer rows.Close()
	out := []*api.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows.Scan)
		if err != nil {
			s.logErr("scan submission row", err)
			continue
		}
		out = append(out, sub)
	}
	s.logErr("iterate submissions", rows.Err())
	return out
}

// ClaimAnalysis marks a pending submission as being analyzed. The conditional
// update makes concurrent claimers race on the database row, not in memory.
func (s *SQLiteStore) ClaimAnalysis(id string, now, staleBefore time.Time) bool {
	res, err := s.db.Exec(
		`UPDATE submissions SET analysis_claimed_at = ?
		 WHERE id = ? AND analysis_status = 'pending_ai'
		   AND (analysis_claimed_at IS NULL OR analysis_claimed_at < ?)`,
		formatTime(now), id, formatTime(staleBefore),
	)
	if err != nil {
		s.logErr("claim analysis", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) CompleteAnalysis(id, fromStatus, toStatus, traits, aiError string) bool {
	res, err := s.db.Exec(
		`UPDATE submissions SET analysis_status = ?, traits = ?, ai_error = ?, analysis_claimed_at = NULL
		 WHERE id = ? AND analysis_status = ?`,
		toStatus, traits, aiError, id, fromStatus,
	)
	if err != nil {
		s.logErr("complete analysis", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) SetReview(id, status, notes string) bool {
	query := `UPDATE submissions SET analysis_status = ?, manual_notes = ?, analysis_claimed_at = NULL WHERE id = ? AND analysis_status != ''`
	if status == "pending_ai" {
		query = `UPDATE submissions SET analysis_status = ?, manual_notes = ?, analysis_claimed_at = NULL, traits = '', ai_error = '' WHERE id = ? AND analysis_status != ''`
	}
	res, err := s.db.Exec(query, status, notes, id)
	if err != nil {
		s.logErr("set review", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) InsertNotification(n *api.Notification) {
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, submission_id, recipient, subject, body, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.SubmissionID, n.Recipient, n.Subject, n.Body, formatTime(n.SentAt),
	)
	s.logErr("insert notification", err)
}

func (s *SQLiteStore) ListNotifications(submissionID string) []*api.Notification {
	query := `SELECT id, submission_id, recipient, subject, body, sent_at FROM notifications ORDER BY sent_at`
	args := []any{}
	if submissionID != "" {
		query = `SELECT id, submission_id, recipient, subject, body, sent_at FROM notifications WHERE submission_id = ? ORDER BY sent_at`
		args = append(args, submissionID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.logErr("list notifications", err)
		return nil
	}
	defer rows.Close()
	out := []*api.Notification{}
	for rows.Next() {
		var n api.Notification
		var sentAt string
		if err := rows.Scan(&n.ID, &n.SubmissionID, &n.Recipient, &n.Subject, &n.Body, &sentAt); err != nil {
			s.logErr("scan notification", err)
			continue
		}
		n.SentAt = parseTime(sentAt)
		out = append(out, &n)
	}
	s.logErr("iterate notifications", rows.Err())
	return out
}

func (s *SQLiteStore) AddAudit(e api.AuditEntry) {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (ts, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		formatTime(e.Time), e.Actor, e.Action, e.Target, e.Note,
	)
	s.logErr("add audit", err)
}

func (s *SQLiteStore) ListAudit() []api.AuditEntry {
	rows, err := s.db.Query(`SELECT ts, actor, action, target, note FROM audit_log ORDER BY ts`)
	if err != nil {
		s.logErr("list audit", err)
		return nil
	}
	defer rows.Close()
	out := []api.AuditEntry{}
	for rows.Next() {
		var e api.AuditEntry
		var ts string
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			s.logErr("scan audit", err)
			continue
		}
		e.Time = parseTime(ts)
		out = append(out, e)
	}
	s.logErr("iterate audit", rows.Err())
	return out
}

func (s *SQLiteStore) AddTenant(t *api.Tenant) {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO tenants (id, name) VALUES (?, ?)`, t.ID, t.Name)
	s.logErr("add tenant", err)
}

func (s *SQLiteStore) AddAdmin(u *api.AdminUser) {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO admins (id, email, pass_hash, tenant_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, u.TenantID, formatTime(u.CreatedAt),
	)
	s.logErr("add admin", err)
}

func (s *SQLiteStore) FindAdminByEmail(email string) *api.AdminUser {
	row := s.db.QueryRow(`SELECT id, email, pass_hash, tenant_id, created_at FROM admins WHERE email = ?`, email)
	var u api.AdminUser
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.PassHash, &u.TenantID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.logErr("scan admin", err)
		return nil
	}
	u.CreatedAt = parseTime(createdAt)
	return &u
}

var _ api.Store = (*SQLiteStore)(nil)
