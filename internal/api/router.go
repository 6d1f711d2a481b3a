package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/traitlab/traitlab/internal/middleware"
	"github.com/traitlab/traitlab/internal/services"
)

type Router struct {
	store       Store
	auth        *services.AuthService
	catalog     *services.CatalogService
	submissions *services.SubmissionService
	analysis    *services.AnalysisService
	review      *services.ReviewService
}

func NewRouter(store Store, analyzer services.Analyzer) *Router {
	return &Router{
		store:       store,
		auth:        services.NewAuthService(newAdminStoreAdapter(store), middleware.SignToken),
		catalog:     services.NewCatalogService(newCatalogStoreAdapter(store)),
		submissions: services.NewSubmissionService(newSubmissionStoreAdapter(store)),
		analysis:    services.NewAnalysisService(newAnalysisStoreAdapter(store), analyzer),
		review:      services.NewReviewService(newReviewStoreAdapter(store), consoleSender{}),
	}
}

// consoleSender logs outgoing notifications instead of delivering them; the
// record is still persisted by the review service.
type consoleSender struct{}

func (consoleSender) Send(rec *services.NotificationRecord) error {
	log.Printf("[notification] to=%s subject=%q", rec.Recipient, rec.Subject)
	return nil
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister) // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)       // POST

	mux.HandleFunc("/api/tests", rt.handlePublicTests)             // GET
	mux.HandleFunc("/api/tests/", rt.handleTestScoped)             // GET /api/tests/{id}, POST /api/tests/{id}/submissions
	mux.HandleFunc("/api/submissions/", rt.handleSubmissionScoped) // GET /api/submissions/{id}, POST /api/submissions/{id}/finish

	mux.HandleFunc("/api/admin/tests", rt.handleAdminTests)                       // GET, POST
	mux.HandleFunc("/api/admin/tests/", rt.handleAdminTestScoped)                 // GET/PUT/DELETE {id}, POST {id}/questions[/reorder]
	mux.HandleFunc("/api/admin/questions/", rt.handleAdminQuestionScoped)         // PUT/DELETE {id}
	mux.HandleFunc("/api/admin/submissions", rt.handleAdminSubmissions)           // GET
	mux.HandleFunc("/api/admin/submissions/export", rt.handleAdminExport)         // GET
	mux.HandleFunc("/api/admin/submissions/", rt.handleAdminSubmissionScoped)     // POST {id}/review, POST {id}/notify
	mux.HandleFunc("/api/admin/audit", rt.handleAdminAudit)                       // GET
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch se.Code {
	case services.ErrorInvalid:
		status = http.StatusBadRequest
	case services.ErrorUnauthorized:
		status = http.StatusUnauthorized
	case services.ErrorForbidden:
		status = http.StatusForbidden
	case services.ErrorNotFound:
		status = http.StatusNotFound
	case services.ErrorConflict:
		status = http.StatusConflict
	case services.ErrorBadGateway:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": se.Message})
}

func (rt *Router) requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tid, ok := middleware.TenantIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", false
	}
	return tid, true
}

func actorFromContext(r *http.Request) string {
	if c, ok := middleware.ClaimsFromContext(r.Context()); ok {
		return c.Email
	}
	return ""
}

// POST /api/auth/register — {email, password, workspaceName}
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email         string `json:"email"`
		Password      string `json:"password"`
		WorkspaceName string `json:"workspaceName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password, req.WorkspaceName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": res.Token, "tenantId": res.TenantID, "userId": res.UserID})
}

// POST /api/auth/login — {email, password}
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": res.Token, "tenantId": res.TenantID, "userId": res.UserID})
}

// GET /api/tests — the public catalog of published tests
func (rt *Router) handlePublicTests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tests, err := rt.catalog.ListPublished()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	type publicTest struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
	}
	out := make([]publicTest, 0, len(tests))
	for _, t := range tests {
		out = append(out, publicTest{ID: t.ID, Title: t.Title, Description: t.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

// playerQuestion is the respondent view of a question, including the
// per-question countdown.
type playerQuestion struct {
	Question
	TimeLimitSeconds int `json:"timeLimitSeconds"`
}

// GET /api/tests/{id} — player payload
// POST /api/tests/{id}/submissions — start a submission
func (rt *Router) handleTestScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tests/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		rt.handlePlayerTest(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "submissions" && r.Method == http.MethodPost:
		rt.handleStart(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handlePlayerTest(w http.ResponseWriter, r *http.Request, id string) {
	t, qs, err := rt.catalog.PublishedTest(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]playerQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, playerQuestion{Question: *fromServiceQuestion(q), TimeLimitSeconds: services.TimeLimitSeconds(q.Type)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"questions":   out,
	})
}

func (rt *Router) handleStart(w http.ResponseWriter, r *http.Request, testID string) {
	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, isAdmin := middleware.TenantIDFromContext(r.Context())
	sub, err := rt.submissions.Start(services.StartRequest{
		TestID:   testID,
		FullName: req.FullName,
		Email:    req.Email,
		IsAdmin:  isAdmin,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromServiceSubmission(sub))
}

// GET /api/submissions/{id} — results view; runs the AI analysis on first load
// POST /api/submissions/{id}/finish — finalize answers
func (rt *Router) handleSubmissionScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		sub, err := rt.analysis.EnsureAnalyzed(r.Context(), parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fromServiceSubmission(sub))
	case len(parts) == 2 && parts[1] == "finish" && r.Method == http.MethodPost:
		rt.handleFinish(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handleFinish(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Answers   []UserAnswer `json:"answers"`
		TimeTaken *int         `json:"timeTaken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	answers := make([]services.UserAnswer, 0, len(req.Answers))
	for _, a := range req.Answers {
		answers = append(answers, services.UserAnswer{QuestionID: a.QuestionID, Value: a.Value})
	}
	sub, err := rt.submissions.Finish(services.FinishRequest{
		SubmissionID:   id,
		Answers:        answers,
		ElapsedSeconds: req.TimeTaken,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromServiceSubmission(sub))
}

// GET /api/admin/tests — authored tests
// POST /api/admin/tests — create
func (rt *Router) handleAdminTests(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.requireTenant(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		tests, err := rt.catalog.ListTests(tid)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		out := make([]*Test, 0, len(tests))
		for _, t := range tests {
			out = append(out, fromServiceTest(t))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		t, err := rt.catalog.CreateTest(tid, req.Title, req.Description)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, fromServiceTest(t))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /api/admin/tests/{id}, /api/admin/tests/{id}/questions[,/reorder]
func (rt *Router) handleAdminTestScoped(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.requireTenant(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/tests/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		rt.handleAdminTest(w, r, tid, id)
	case len(parts) == 2 && parts[1] == "questions" && r.Method == http.MethodPost:
		rt.handleAddQuestion(w, r, tid, id)
	case len(parts) == 3 && parts[1] == "questions" && parts[2] == "reorder" && r.Method == http.MethodPost:
		rt.handleReorderQuestions(w, r, tid, id)
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handleAdminTest(w http.ResponseWriter, r *http.Request, tid, id string) {
	switch r.Method {
	case http.MethodGet:
		t, qs, err := rt.catalog.GetAuthoredTest(tid, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		out := make([]*Question, 0, len(qs))
		for _, q := range qs {
			out = append(out, fromServiceQuestion(q))
		}
		writeJSON(w, http.StatusOK, map[string]any{"test": fromServiceTest(t), "questions": out})
	case http.MethodPut:
		var req struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
			IsPublished *bool   `json:"isPublished"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		t, err := rt.catalog.UpdateTest(tid, id, services.TestPatch{Title: req.Title, Description: req.Description, IsPublished: req.IsPublished})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fromServiceTest(t))
	case http.MethodDelete:
		if err := rt.catalog.DeleteTest(tid, id, actorFromContext(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handleAddQuestion(w http.ResponseWriter, r *http.Request, tid, testID string) {
	var req Question
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.TestID = testID
	q, err := rt.catalog.AddQuestion(tid, toServiceQuestion(&req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromServiceQuestion(q))
}

func (rt *Router) handleReorderQuestions(w http.ResponseWriter, r *http.Request, tid, testID string) {
	var req struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, err := rt.catalog.ReorderQuestions(tid, testID, req.Order)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": n})
}

// PUT/DELETE /api/admin/questions/{id}
func (rt *Router) handleAdminQuestionScoped(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.requireTenant(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/questions/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req Question
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.ID = id
		q, err := rt.catalog.UpdateQuestion(tid, toServiceQuestion(&req))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fromServiceQuestion(q))
	case http.MethodDelete:
		if err := rt.catalog.DeleteQuestion(tid, id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/admin/submissions?test_id=...
func (rt *Router) handleAdminSubmissions(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.requireTenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subs, err := rt.tenantSubmissions(tid, r.URL.Query().Get("test_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (rt *Router) tenantSubmissions(tid, testID string) ([]*Submission, error) {
	if testID != "" {
		t := rt.store.GetTest(testID)
		if t == nil || t.TenantID != tid {
			return nil, services.NewNotFoundError("test not found")
		}
		return rt.store.ListSubmissions(testID), nil
	}
	owned := map[string]bool{}
	for _, t := range rt.store.ListTestsByTenant(tid) {
		owned[t.ID] = true
	}
	all := rt.store.ListSubmissions("")
	out := []*Submission{}
	for _, sub := range all {
		if owned[sub.TestID] {
			out = append(out, sub)
		}
	}
	return out, nil
}

// GET /api/admin/submissions/export?test_id=...&format=answers|summary
func (rt *Router) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.requireTenant(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	testID := r.URL.Query().Get("test_id")
	if testID == "" {
		http.Error(w, "test_id required", http.StatusBadRequest)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "summary"
	}
	stored, err := rt.tenantSubmissions(tid, testID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	subs := make([]*services.Submission, 0, len(stored))
	for _, sub := range stored {
		subs = append(subs, toServiceSubmission(sub))
	}

	var b []byte
	switch format {
	case "answers":
		questions := toServiceQuestions(rt.store.ListQuestions(testID))
		b, err = services.ExportAnswersCSV(questions, subs)
	case "summary":
		b, err = services.ExportSummaryCSV(subs)
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+format+".csv")
	_, _ = w.Write(b)
}

// POST /api/admin/submissions/{id}/review — {analysisStatus, manualAnalysisNotes}
// POST /api/admin/submissions/{id}/notify
func (rt *Router) handleAdminSubmissionScoped(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.requireTenant(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/submissions/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := rt.checkSubmissionOwner(tid, id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rt.store.GetSubmission(id))
		return
	}
	if len(parts) != 2 || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := rt.checkSubmissionOwner(tid, id); err != nil {
		writeServiceError(w, err)
		return
	}
	switch parts[1] {
	case "review":
		var req struct {
			AnalysisStatus      string `json:"analysisStatus"`
			ManualAnalysisNotes string `json:"manualAnalysisNotes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sub, err := rt.review.Review(actorFromContext(r), id, req.AnalysisStatus, req.ManualAnalysisNotes)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fromServiceSubmission(sub))
	case "notify":
		rec, err := rt.review.Notify(actorFromContext(r), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, &Notification{
			ID:           rec.ID,
			SubmissionID: rec.SubmissionID,
			Recipient:    rec.Recipient,
			Subject:      rec.Subject,
			Body:         rec.Body,
			SentAt:       rec.SentAt,
		})
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) checkSubmissionOwner(tid, id string) error {
	sub := rt.store.GetSubmission(id)
	if sub == nil {
		return services.NewNotFoundError("submission not found")
	}
	t := rt.store.GetTest(sub.TestID)
	if t == nil || t.TenantID != tid {
		return services.NewNotFoundError("submission not found")
	}
	return nil
}

// GET /api/admin/audit
func (rt *Router) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := rt.requireTenant(w, r); !ok {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, rt.store.ListAudit())
}
