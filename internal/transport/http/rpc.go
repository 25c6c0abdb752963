package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"tryout-service/internal/app"
	"tryout-service/internal/domain"
)

// RPCHandler exposes the quiz use cases as typed procedures under /rpc/.
// Every procedure validates its input shape before the handler body runs;
// not-found and denied lookups answer {"result": null} so callers cannot
// tell absence from denial.
type RPCHandler struct {
	quiz          *app.QuizService
	announcements *app.AnnouncementService
	auth          *Authenticator
	validate      *validator.Validate
}

func NewRPCHandler(quiz *app.QuizService, announcements *app.AnnouncementService, auth *Authenticator) *RPCHandler {
	return &RPCHandler{
		quiz:          quiz,
		announcements: announcements,
		auth:          auth,
		validate:      validator.New(),
	}
}

// Register mounts every procedure on the mux.
func (h *RPCHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/rpc/quiz.getAnnouncement", procedure(h, false, h.getAnnouncement))
	mux.HandleFunc("/rpc/quiz.upsertAnnouncement", procedure(h, true, h.upsertAnnouncement))
	mux.HandleFunc("/rpc/quiz.getPackageWithSubtest", procedure(h, false, h.getPackageWithSubtest))
	mux.HandleFunc("/rpc/quiz.getSession", procedure(h, false, h.getSession))
	mux.HandleFunc("/rpc/quiz.createSession", procedure(h, false, h.createSession))
	mux.HandleFunc("/rpc/quiz.getQuestionsBySubtest", procedure(h, false, h.getQuestionsBySubtest))
	mux.HandleFunc("/rpc/quiz.getSessionDetails", procedure(h, false, h.getSessionDetails))
	mux.HandleFunc("/rpc/quiz.saveAnswer", procedure(h, false, h.saveAnswer))
	mux.HandleFunc("/rpc/quiz.submitQuiz", procedure(h, false, h.submitQuiz))
	mux.HandleFunc("/rpc/quiz.getDrillSubtest", procedure(h, false, h.getDrillSubtest))
	mux.HandleFunc("/rpc/quiz.createPackage", procedure(h, true, h.createPackage))
	mux.HandleFunc("/rpc/quiz.createSubtest", procedure(h, true, h.createSubtest))
	mux.HandleFunc("/rpc/quiz.createQuestion", procedure(h, true, h.createQuestion))
	mux.HandleFunc("/rpc/quiz.deleteQuestion", procedure(h, true, h.deleteQuestion))
	mux.HandleFunc("/rpc/answer.getAnswer", procedure(h, false, h.getAnswer))
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// procedure wraps one RPC: method check, authentication, tier enforcement,
// decode, shape validation, then the handler body.
func procedure[Req any](h *RPCHandler, elevatedOnly bool, fn func(ctx context.Context, actor domain.Actor, req Req) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
			return
		}

		actor, err := h.auth.ActorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token")
			return
		}
		if elevatedOnly && !actor.Elevated() {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "teacher or admin role required")
			return
		}

		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}

		result, err := fn(r.Context(), actor, req)
		if err != nil {
			if errors.Is(err, domain.ErrAnswerMissing) ||
				errors.Is(err, domain.ErrSubtestNotFound) ||
				errors.Is(err, domain.ErrPackageNotFound) ||
				errors.Is(err, domain.ErrQuestionNotFound) {
				writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
				return
			}
			log.Printf("rpc %s failed: %v", r.URL.Path, err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal error")
			return
		}
		writeResult(w, result)
	}
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": rpcError{Code: code, Message: message}})
}

type emptyRequest struct{}

func (h *RPCHandler) getAnnouncement(ctx context.Context, _ domain.Actor, _ emptyRequest) (any, error) {
	return h.announcements.Announcement(ctx)
}

type upsertAnnouncementRequest struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
	URL     string `json:"url" validate:"omitempty,url"`
}

func (h *RPCHandler) upsertAnnouncement(ctx context.Context, _ domain.Actor, req upsertAnnouncementRequest) (any, error) {
	return h.announcements.SetAnnouncement(ctx, req.Title, req.Content, req.URL)
}

type packageRequest struct {
	PackageID int64 `json:"packageId" validate:"required,gt=0"`
}

func (h *RPCHandler) getPackageWithSubtest(ctx context.Context, actor domain.Actor, req packageRequest) (any, error) {
	return h.quiz.PackageScores(ctx, req.PackageID, actor)
}

func (h *RPCHandler) getDrillSubtest(ctx context.Context, _ domain.Actor, req packageRequest) (any, error) {
	return h.quiz.DrillSubtests(ctx, req.PackageID)
}

type getSessionRequest struct {
	SubtestID int64 `json:"subtestId" validate:"required,gt=0"`
}

func (h *RPCHandler) getSession(ctx context.Context, actor domain.Actor, req getSessionRequest) (any, error) {
	return h.quiz.Session(ctx, actor.ID, req.SubtestID)
}

type createSessionRequest struct {
	PackageID int64 `json:"packageId" validate:"required,gt=0"`
	SubtestID int64 `json:"subtestId" validate:"required,gt=0"`
	Duration  int   `json:"duration" validate:"gte=0"`
}

func (h *RPCHandler) createSession(ctx context.Context, actor domain.Actor, req createSessionRequest) (any, error) {
	return h.quiz.CreateSession(ctx, actor.ID, req.PackageID, req.SubtestID, req.Duration)
}

type questionsRequest struct {
	SubtestID int64  `json:"subtestId" validate:"required,gt=0"`
	UserID    string `json:"userId"` // elevated actors may target another user
}

func (h *RPCHandler) getQuestionsBySubtest(ctx context.Context, actor domain.Actor, req questionsRequest) (any, error) {
	return h.quiz.QuestionsBySubtest(ctx, req.SubtestID, actor, req.UserID)
}

type sessionDetailsRequest struct {
	QuizSessionID int64 `json:"quizSessionId" validate:"required,gt=0"`
}

func (h *RPCHandler) getSessionDetails(ctx context.Context, actor domain.Actor, req sessionDetailsRequest) (any, error) {
	return h.quiz.SessionDetails(ctx, req.QuizSessionID, actor)
}

type saveAnswerRequest struct {
	PackageID     int64   `json:"packageId" validate:"required,gt=0"`
	QuizSessionID int64   `json:"quizSessionId" validate:"required,gt=0"`
	QuestionID    int64   `json:"questionId" validate:"required,gt=0"`
	AnswerChoice  *int64  `json:"answerChoice"`
	EssayAnswer   *string `json:"essayAnswer"`
}

func (h *RPCHandler) saveAnswer(ctx context.Context, actor domain.Actor, req saveAnswerRequest) (any, error) {
	return h.quiz.SaveAnswer(ctx, actor.ID, req.PackageID, req.QuizSessionID, req.QuestionID, req.AnswerChoice, req.EssayAnswer)
}

func (h *RPCHandler) submitQuiz(ctx context.Context, actor domain.Actor, req sessionDetailsRequest) (any, error) {
	return h.quiz.SubmitSession(ctx, req.QuizSessionID, actor)
}

type getAnswerRequest struct {
	AnswerID int64 `json:"answerId" validate:"required,gt=0"`
}

func (h *RPCHandler) getAnswer(ctx context.Context, _ domain.Actor, req getAnswerRequest) (any, error) {
	return h.quiz.AnswerByID(ctx, req.AnswerID)
}

type createPackageRequest struct {
	Name    string    `json:"name" validate:"required"`
	Type    string    `json:"type" validate:"omitempty,oneof=tryout drill"`
	ClassID int64     `json:"classId"`
	TOStart time.Time `json:"TOstart" validate:"required"`
	TOEnd   time.Time `json:"TOend" validate:"required,gtfield=TOStart"`
}

func (h *RPCHandler) createPackage(ctx context.Context, _ domain.Actor, req createPackageRequest) (any, error) {
	return h.quiz.CreatePackage(ctx, app.CreatePackageInput{
		Name:    req.Name,
		Type:    domain.PackageType(req.Type),
		ClassID: req.ClassID,
		TOStart: req.TOStart,
		TOEnd:   req.TOEnd,
	})
}

type createSubtestRequest struct {
	PackageID int64  `json:"packageId" validate:"required,gt=0"`
	Type      string `json:"type" validate:"required"`
	Duration  int    `json:"duration" validate:"gte=0"`
}

func (h *RPCHandler) createSubtest(ctx context.Context, _ domain.Actor, req createSubtestRequest) (any, error) {
	return h.quiz.CreateSubtest(ctx, req.PackageID, req.Type, req.Duration)
}

type createQuestionRequest struct {
	SubtestID     int64    `json:"subtestId" validate:"required,gt=0"`
	Index         int      `json:"index" validate:"gte=0"`
	Content       string   `json:"content" validate:"required"`
	ImageURL      string   `json:"imageUrl" validate:"omitempty,url"`
	Type          string   `json:"type" validate:"required,oneof=mulChoice essay"`
	Score         int      `json:"score" validate:"gte=0"`
	Explanation   *string  `json:"explanation"`
	CorrectChoice *int64   `json:"correctAnswerChoice"`
	Choices       []string `json:"choices" validate:"min=1,dive,required"`
}

func (h *RPCHandler) createQuestion(ctx context.Context, _ domain.Actor, req createQuestionRequest) (any, error) {
	return h.quiz.CreateQuestion(ctx, app.CreateQuestionInput{
		SubtestID:     req.SubtestID,
		Index:         req.Index,
		Content:       req.Content,
		ImageURL:      req.ImageURL,
		Type:          domain.QuestionType(req.Type),
		Score:         req.Score,
		Explanation:   req.Explanation,
		CorrectChoice: req.CorrectChoice,
		Choices:       req.Choices,
	})
}

type deleteQuestionRequest struct {
	QuestionID int64 `json:"questionId" validate:"required,gt=0"`
}

func (h *RPCHandler) deleteQuestion(ctx context.Context, _ domain.Actor, req deleteQuestionRequest) (any, error) {
	if err := h.quiz.DeleteQuestion(ctx, req.QuestionID); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}
