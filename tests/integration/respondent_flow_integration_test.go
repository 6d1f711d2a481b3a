//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("TRAITLAB_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

func TestAuthoringAndRespondentJourney(t *testing.T) {
	client := &http.Client{Timeout: 60 * time.Second}
	base := baseURL()

	adminEmail := fmt.Sprintf("integration_%d@example.com", time.Now().UnixNano())
	password := "Secret123!"

	var registerResp struct {
		Token    string `json:"token"`
		TenantID string `json:"tenantId"`
	}
	doPost(t, client, base+"/api/auth/register", "", map[string]any{
		"email":         adminEmail,
		"password":      password,
		"workspaceName": fmt.Sprintf("Workspace %d", time.Now().UnixNano()),
	}, &registerResp)
	if registerResp.Token == "" || registerResp.TenantID == "" {
		t.Fatalf("unexpected register response: %+v", registerResp)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	doPost(t, client, base+"/api/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": password,
	}, &loginResp)
	token := loginResp.Token
	if token == "" {
		t.Fatalf("login did not return token")
	}

	var createTestResp struct {
		ID string `json:"id"`
	}
	doPost(t, client, base+"/api/admin/tests", token, map[string]string{
		"title":       "Integration Screen",
		"description": "integration test fixture",
	}, &createTestResp)
	if createTestResp.ID == "" {
		t.Fatalf("expected test id in response")
	}

	var questionResp struct {
		ID string `json:"id"`
	}
	doPost(t, client, base+"/api/admin/tests/"+createTestResp.ID+"/questions", token, map[string]any{
		"text": "Pick the statement that fits you best",
		"type": "multiple-choice",
		"options": []map[string]string{
			{"text": "I plan ahead"},
			{"text": "I improvise"},
		},
	}, &questionResp)
	if questionResp.ID == "" {
		t.Fatalf("expected question id in response")
	}

	publishBody, _ := json.Marshal(map[string]bool{"isPublished": true})
	req, err := http.NewRequest(http.MethodPut, base+"/api/admin/tests/"+createTestResp.ID, bytes.NewReader(publishBody))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status %d", resp.StatusCode)
	}

	var startResp struct {
		ID string `json:"id"`
	}
	doPost(t, client, base+"/api/tests/"+createTestResp.ID+"/submissions", "", map[string]string{
		"fullName": "Integration Respondent",
		"email":    fmt.Sprintf("respondent_%d@example.com", time.Now().UnixNano()),
	}, &startResp)
	if startResp.ID == "" {
		t.Fatalf("expected submission id from start")
	}

	var finishResp struct {
		Status string `json:"analysisStatus"`
	}
	doPost(t, client, base+"/api/submissions/"+startResp.ID+"/finish", "", map[string]any{
		"answers": []map[string]any{
			{"questionId": questionResp.ID, "value": "I plan ahead"},
		},
	}, &finishResp)
	if finishResp.Status != "pending_ai" {
		t.Fatalf("finish status = %q, want pending_ai", finishResp.Status)
	}

	// The results view runs the analysis; without an API key the server
	// routes the submission to manual review instead.
	resultsReq, err := http.NewRequest(http.MethodGet, base+"/api/submissions/"+startResp.ID, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resultsResp, err := client.Do(resultsReq)
	if err != nil {
		t.Fatalf("results request failed: %v", err)
	}
	defer resultsResp.Body.Close()
	if resultsResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resultsResp.Body)
		t.Fatalf("results status %d body %s", resultsResp.StatusCode, string(body))
	}
	var results struct {
		Status string `json:"analysisStatus"`
	}
	if err := json.NewDecoder(resultsResp.Body).Decode(&results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	switch results.Status {
	case "ai_completed", "ai_failed_pending_manual":
	default:
		t.Fatalf("results status = %q", results.Status)
	}
}

func doPost(t *testing.T, client *http.Client, url, token string, body any, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http post %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
