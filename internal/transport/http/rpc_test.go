package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tryout-service/internal/app"
	"tryout-service/internal/domain"
	"tryout-service/internal/infra/memory"
)

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type testServer struct {
	server *httptest.Server
	auth   *Authenticator
	store  *memory.Store
	feed   *AnnouncementFeed

	packageID int64
	subtestID int64
}

func newTestServer(t *testing.T, windowEnd time.Time) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	pkg := &domain.Package{
		Name:    "UTBK March",
		Type:    domain.PackageTryout,
		TOStart: windowEnd.Add(-24 * time.Hour),
		TOEnd:   windowEnd,
	}
	if err := store.CreatePackage(ctx, pkg); err != nil {
		t.Fatalf("create package: %v", err)
	}
	st := &domain.Subtest{PackageID: pkg.ID, Type: "geography", Duration: 30}
	if err := store.CreateSubtest(ctx, st); err != nil {
		t.Fatalf("create subtest: %v", err)
	}
	correct := int64(1)
	score := 10
	q := &domain.Question{
		SubtestID:           st.ID,
		Index:               1,
		Content:             "Capital of France?",
		Type:                domain.QuestionChoice,
		Score:               &score,
		CorrectAnswerChoice: &correct,
		Answers: []*domain.Answer{
			{Index: 1, Content: "Paris"},
			{Index: 2, Content: "Lyon"},
		},
	}
	if err := store.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("create question: %v", err)
	}

	auth := NewAuthenticator("test-secret")
	feed := NewAnnouncementFeed(auth)
	announcements := app.NewAnnouncementService(store).WithFeed(feed)
	quiz := app.NewQuizService(store, store, store, store, store, app.Options{})
	handler := NewRPCHandler(quiz, announcements, auth)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/ws/announcements", feed.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testServer{
		server:    server,
		auth:      auth,
		store:     store,
		feed:      feed,
		packageID: pkg.ID,
		subtestID: st.ID,
	}
}

func (ts *testServer) token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	token, err := ts.auth.IssueToken(domain.Actor{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (ts *testServer) call(t *testing.T, token, proc string, body any) (int, rpcEnvelope) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.server.URL+"/rpc/"+proc, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("call %s: %v", proc, err)
	}
	defer resp.Body.Close()

	var envelope rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, envelope
}

func TestRPCRequiresToken(t *testing.T) {
	ts := newTestServer(t, time.Now().Add(time.Hour))

	status, envelope := ts.call(t, "", "quiz.getAnnouncement", struct{}{})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if envelope.Error == nil || envelope.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %+v", envelope.Error)
	}
}

func TestRPCRejectsGet(t *testing.T) {
	ts := newTestServer(t, time.Now().Add(time.Hour))

	resp, err := http.Get(ts.server.URL + "/rpc/quiz.getAnnouncement")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestRPCEnforcesElevatedTier(t *testing.T) {
	ts := newTestServer(t, time.Now().Add(time.Hour))

	status, envelope := ts.call(t, ts.token(t, "u1", domain.RoleUser), "quiz.upsertAnnouncement", map[string]any{
		"title":   "Maintenance",
		"content": "Tonight",
	})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if envelope.Error == nil || envelope.Error.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %+v", envelope.Error)
	}

	status, _ = ts.call(t, ts.token(t, "t1", domain.RoleTeacher), "quiz.upsertAnnouncement", map[string]any{
		"title":   "Maintenance",
		"content": "Tonight",
	})
	if status != http.StatusOK {
		t.Fatalf("expected teacher to pass, got %d", status)
	}
}

func TestRPCValidatesShape(t *testing.T) {
	ts := newTestServer(t, time.Now().Add(time.Hour))
	token := ts.token(t, "u1", domain.RoleUser)

	// subtestId missing entirely.
	status, envelope := ts.call(t, token, "quiz.createSession", map[string]any{
		"packageId": ts.packageID,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if envelope.Error == nil || envelope.Error.Code != "BAD_REQUEST" {
		t.Fatalf("expected BAD_REQUEST, got %+v", envelope.Error)
	}
}

func TestSaveAnswerRequiresAValue(t *testing.T) {
	ts := newTestServer(t, time.Now().Add(time.Hour))
	token := ts.token(t, "u1", domain.RoleUser)

	status, _ := ts.call(t, token, "quiz.createSession", map[string]any{
		"packageId": ts.packageID,
		"subtestId": ts.subtestID,
	})
	if status != http.StatusOK {
		t.Fatalf("create session: status %d", status)
	}

	status, envelope := ts.call(t, token, "quiz.saveAnswer", map[string]any{
		"packageId":     ts.packageID,
		"quizSessionId": 1,
		"questionId":    1,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if envelope.Error == nil || envelope.Error.Code != "BAD_REQUEST" {
		t.Fatalf("expected BAD_REQUEST, got %+v", envelope.Error)
	}
}

func TestQuizFlowOverRPC(t *testing.T) {
	ts := newTestServer(t, time.Now().Add(time.Hour))
	token := ts.token(t, "u1", domain.RoleUser)

	status, envelope := ts.call(t, token, "quiz.createSession", map[string]any{
		"packageId": ts.packageID,
		"subtestId": ts.subtestID,
	})
	if status != http.StatusOK {
		t.Fatalf("create session: status %d, err %+v", status, envelope.Error)
	}
	var session domain.QuizSession
	if err := json.Unmarshal(envelope.Result, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.ID == 0 || session.Duration != 30 {
		t.Fatalf("unexpected session %+v", session)
	}

	// The window is still open, so the answer key must be redacted.
	status, envelope = ts.call(t, token, "quiz.getQuestionsBySubtest", map[string]any{
		"subtestId": ts.subtestID,
	})
	if status != http.StatusOK {
		t.Fatalf("get questions: status %d", status)
	}
	var questions []*domain.Question
	if err := json.Unmarshal(envelope.Result, &questions); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	if questions[0].CorrectAnswerChoice != nil || questions[0].Score != nil {
		t.Fatalf("expected a redacted question, got %+v", questions[0])
	}

	status, envelope = ts.call(t, token, "quiz.saveAnswer", map[string]any{
		"packageId":     ts.packageID,
		"quizSessionId": session.ID,
		"questionId":    questions[0].ID,
		"answerChoice":  1,
	})
	if status != http.StatusOK {
		t.Fatalf("save answer: status %d, err %+v", status, envelope.Error)
	}

	status, envelope = ts.call(t, token, "quiz.getSessionDetails", map[string]any{
		"quizSessionId": session.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("session details: status %d", status)
	}
	var details domain.SessionDetails
	if err := json.Unmarshal(envelope.Result, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Session == nil || len(details.Session.Answers) != 1 {
		t.Fatalf("expected the stored answer in the details, got %+v", details.Session)
	}
}

func TestSessionDetailsHideOtherUsers(t *testing.T) {
	ts := newTestServer(t, time.Now().Add(time.Hour))
	owner := ts.token(t, "u1", domain.RoleUser)
	stranger := ts.token(t, "u2", domain.RoleUser)

	status, envelope := ts.call(t, owner, "quiz.createSession", map[string]any{
		"packageId": ts.packageID,
		"subtestId": ts.subtestID,
	})
	if status != http.StatusOK {
		t.Fatalf("create session: status %d", status)
	}
	var session domain.QuizSession
	if err := json.Unmarshal(envelope.Result, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	status, envelope = ts.call(t, stranger, "quiz.getSessionDetails", map[string]any{
		"quizSessionId": session.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 with a null result, got %d", status)
	}
	if string(envelope.Result) != "null" {
		t.Fatalf("expected null for another user's session, got %s", envelope.Result)
	}
}

func TestAnnouncementRoundTrip(t *testing.T) {
	ts := newTestServer(t, time.Now().Add(time.Hour))
	admin := ts.token(t, "a1", domain.RoleAdmin)
	user := ts.token(t, "u1", domain.RoleUser)

	status, envelope := ts.call(t, user, "quiz.getAnnouncement", struct{}{})
	if status != http.StatusOK {
		t.Fatalf("get announcement: status %d", status)
	}
	if string(envelope.Result) != "null" {
		t.Fatalf("expected null before any upsert, got %s", envelope.Result)
	}

	status, _ = ts.call(t, admin, "quiz.upsertAnnouncement", map[string]any{
		"title":   "Schedule change",
		"content": "The tryout moves to Saturday.",
	})
	if status != http.StatusOK {
		t.Fatalf("upsert: status %d", status)
	}

	status, envelope = ts.call(t, user, "quiz.getAnnouncement", struct{}{})
	if status != http.StatusOK {
		t.Fatalf("get announcement: status %d", status)
	}
	var ann domain.Announcement
	if err := json.Unmarshal(envelope.Result, &ann); err != nil {
		t.Fatalf("decode announcement: %v", err)
	}
	if ann.Title != "Schedule change" {
		t.Fatalf("unexpected announcement %+v", ann)
	}
}
