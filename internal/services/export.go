package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"time"
)

// ExportAnswersCSV renders a long-format CSV: one row per (submission, answer),
// ordered by the supplied question order so columns line up across tools.
func ExportAnswersCSV(questions []*Question, subs []*Submission) ([]byte, error) {
	order := make(map[string]int, len(questions))
	text := make(map[string]string, len(questions))
	for i, q := range questions {
		order[q.ID] = i
		text[q.ID] = q.Text
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"submission_id", "full_name", "email", "question_id", "question_text", "answer", "submitted_at"})
	for _, sub := range subs {
		answers := append([]UserAnswer(nil), sub.Answers...)
		sort.SliceStable(answers, func(i, j int) bool {
			return order[answers[i].QuestionID] < order[answers[j].QuestionID]
		})
		submitted := ""
		if !sub.SubmittedAt.IsZero() {
			submitted = sub.SubmittedAt.UTC().Format(time.RFC3339)
		}
		for _, a := range answers {
			rec := []string{
				sub.ID,
				sub.FullName,
				sub.Email,
				a.QuestionID,
				text[a.QuestionID],
				AnswerValueString(a.Value),
				submitted,
			}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportSummaryCSV renders one row per submission with the analysis outcome.
func ExportSummaryCSV(subs []*Submission) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"submission_id", "full_name", "email", "time_taken_seconds", "analysis_status", "psychological_traits", "ai_error", "manual_analysis_notes", "submitted_at"})
	for _, sub := range subs {
		submitted := ""
		if !sub.SubmittedAt.IsZero() {
			submitted = sub.SubmittedAt.UTC().Format(time.RFC3339)
		}
		rec := []string{
			sub.ID,
			sub.FullName,
			sub.Email,
			itoa(sub.TimeTaken),
			sub.Status,
			sub.Traits,
			sub.AIError,
			sub.ManualNotes,
			submitted,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func itoa(i int) string {
	// local small int->string; answer times fit easily
	if i == 0 {
		return "0"
	}
	neg := false
	if i < 0 {
		neg = true
		i = -i
	}
	var b [20]byte
	bp := len(b)
	for i > 0 {
		bp--
		b[bp] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		bp--
		b[bp] = '-'
	}
	return string(b[bp:])
}
