package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestExportAnswersCSV(t *testing.T) {
	questions := []*Question{
		{ID: "Q1", Text: "Favourite colour?"},
		{ID: "Q2", Text: "Rate your focus"},
	}
	subs := []*Submission{
		{
			ID:       "S1",
			FullName: "Jane Doe",
			Email:    "jane@example.com",
			Answers: []UserAnswer{
				{QuestionID: "Q2", Value: json.RawMessage(`4`)},
				{QuestionID: "Q1", Value: json.RawMessage(`"blue"`)},
			},
			SubmittedAt: time.Date(2026, 3, 1, 12, 2, 0, 0, time.UTC),
		},
	}

	out, err := ExportAnswersCSV(questions, subs)
	if err != nil {
		t.Fatalf("ExportAnswersCSV returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows", len(lines))
	}
	if lines[0] != "submission_id,full_name,email,question_id,question_text,answer,submitted_at" {
		t.Fatalf("header = %q", lines[0])
	}
	// Answers come out in question order even when submitted out of order.
	if !strings.Contains(lines[1], "Q1") || !strings.Contains(lines[1], "blue") {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "Q2") || !strings.Contains(lines[2], ",4,") {
		t.Fatalf("row 2 = %q", lines[2])
	}
}

func TestExportSummaryCSV(t *testing.T) {
	subs := []*Submission{
		{
			ID:          "S1",
			FullName:    "Jane Doe",
			Email:       "jane@example.com",
			TimeTaken:   90,
			Status:      StatusAICompleted,
			Traits:      "Calm, thoughtful",
			SubmittedAt: time.Date(2026, 3, 1, 12, 2, 0, 0, time.UTC),
		},
		{
			ID:       "S2",
			FullName: "Sam Roe",
			Email:    "sam@example.com",
			Status:   StatusAIFailedPendingManual,
			AIError:  "The AI analysis timed out. Please review manually.",
		},
	}

	out, err := ExportSummaryCSV(subs)
	if err != nil {
		t.Fatalf("ExportSummaryCSV returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[1], "S1,Jane Doe,jane@example.com,90,"+StatusAICompleted) {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[1], `"Calm, thoughtful"`) {
		t.Fatalf("comma value not quoted: %q", lines[1])
	}
	if !strings.Contains(lines[2], StatusAIFailedPendingManual) {
		t.Fatalf("row 2 = %q", lines[2])
	}
}
