// Package handler exposes the question bank and the quiz/exam sessions
// over a JSON HTTP API. One session (quiz or exam) is active at a time;
// starting a new one replaces it.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	appI18n "quizbank/internal/i18n"
	"quizbank/internal/history"
	"quizbank/internal/llm"
	"quizbank/internal/model"
	"quizbank/internal/parser"
	"quizbank/internal/pool"
	"quizbank/internal/session"
	"quizbank/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	ledger *history.Ledger
	llm    *llm.Client // nil when no endpoint is configured
	rand   *rand.Rand  // nil means the global source; tests seed it

	mu   sync.Mutex
	quiz *session.Quiz
	exam *session.Exam
}

// New creates a new Handler. llmClient may be nil.
func New(s *store.Store, l *history.Ledger, llmClient *llm.Client) *Handler {
	return &Handler{store: s, ledger: l, llm: llmClient}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/questions", h.handleListQuestions)
		r.Post("/questions", h.handleCreateQuestion)
		r.Delete("/questions", h.handleDeleteQuestions)
		r.Post("/questions/bulk", h.handleBulkUpload)
		r.Get("/categories", h.handleListCategories)

		r.Post("/quiz/start", h.handleQuizStart)
		r.Get("/quiz", h.handleQuizCurrent)
		r.Post("/quiz/answer", h.handleQuizAnswer)
		r.Post("/quiz/advance", h.handleQuizAdvance)
		r.Post("/quiz/master", h.handleQuizMaster)
		r.Post("/quiz/quit", h.handleQuizQuit)

		r.Post("/exam/start", h.handleExamStart)
		r.Get("/exam", h.handleExamCurrent)
		r.Post("/exam/answer", h.handleExamAnswer)
		r.Post("/exam/prev", h.handleExamPrev)
		r.Post("/exam/next", h.handleExamNext)

		r.Get("/history", h.handleHistory)
		r.Get("/wrong-note", h.handleWrongNote)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// storeError maps a failed store operation to a retryable 500 carrying the
// underlying message for diagnostics.
func storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error("store operation failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError,
		appI18n.Td(r.Context(), "StoreUnavailable", map[string]any{"Reason": err.Error()}))
}

// ---- question management ----

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	var questions []model.Question
	var err error
	if category := r.URL.Query().Get("category"); category != "" {
		questions, err = h.store.ListQuestionsByCategory(r.Context(), category)
	} else {
		questions, err = h.store.ListQuestions(r.Context())
	}
	if err != nil {
		storeError(w, r, "list questions", err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var draft model.QuestionDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}
	if err := draft.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if draft.Category == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	if draft.Explanation == "" && h.llm != nil {
		explanation, err := h.llm.SuggestExplanation(r.Context(), draft)
		if err != nil {
			slog.Warn("explanation suggestion failed", "error", err)
		} else {
			draft.Explanation = explanation
		}
	}

	q, err := h.store.InsertQuestion(r.Context(), draft)
	if err != nil {
		storeError(w, r, "insert question", err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleDeleteQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}
	if err := h.store.DeleteQuestions(r.Context(), req.IDs); err != nil {
		storeError(w, r, "delete questions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": appI18n.Td(r.Context(), "QuestionsDeleted", map[string]any{"Count": len(req.IDs)}),
	})
}

func (h *Handler) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Category == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	drafts, err := parser.Parse(req.Text)
	if err != nil {
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": appI18n.Td(r.Context(), "UploadRejected", map[string]any{
					"Record": perr.Record,
					"Reason": perr.Message,
				}),
				"kind":   string(perr.Kind),
				"record": perr.Record,
			})
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(drafts) == 0 {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}
	for i := range drafts {
		drafts[i].Category = req.Category
	}

	questions, err := h.store.InsertQuestions(r.Context(), drafts)
	if err != nil {
		storeError(w, r, "insert questions", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"imported": len(questions),
		"message":  appI18n.Td(r.Context(), "QuestionsImported", map[string]any{"Count": len(questions)}),
	})
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		storeError(w, r, "list categories", err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// ---- shared session views ----

// promptView shows a question without revealing its answer.
type promptView struct {
	ID       int64    `json:"id"`
	Text     string   `json:"question"`
	Options  []string `json:"options"`
	Index    int      `json:"index"`
	Total    int      `json:"total"`
	Selected string   `json:"selected,omitempty"`
}

func notStarted(w http.ResponseWriter, r *http.Request, msgID string) {
	writeError(w, http.StatusConflict, appI18n.T(r.Context(), msgID))
}

// ---- quiz mode ----

func (h *Handler) handleQuizStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Review   bool   `json:"review"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	questions, err := h.store.ListQuestions(r.Context())
	if err != nil {
		storeError(w, r, "list questions", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var quiz *session.Quiz
	if req.Review {
		quiz, err = session.NewReview(pool.ForReview(h.rand, questions), h.store)
	} else {
		quiz, err = session.NewQuiz(pool.ForQuiz(h.rand, questions, req.Category), h.store)
	}
	if errors.Is(err, session.ErrEmptyPool) {
		writeJSON(w, http.StatusOK, map[string]any{
			"started": false,
			"message": appI18n.T(r.Context(), "EmptyPool"),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.quiz = quiz
	h.exam = nil
	writeJSON(w, http.StatusOK, map[string]any{
		"started": true,
		"review":  quiz.Review(),
		"total":   quiz.Len(),
		"current": h.quizPrompt(),
	})
}

// quizPrompt builds the view of the quiz's current question. Callers hold
// h.mu and have checked the session exists.
func (h *Handler) quizPrompt() *promptView {
	q, ok := h.quiz.Current()
	if !ok {
		return nil
	}
	return &promptView{
		ID:      q.ID,
		Text:    q.Text,
		Options: q.Options,
		Index:   h.quiz.Index(),
		Total:   h.quiz.Len(),
	}
}

func (h *Handler) handleQuizCurrent(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.quiz == nil {
		notStarted(w, r, "NoActiveQuiz")
		return
	}
	if h.quiz.State() == session.QuizFinished {
		writeJSON(w, http.StatusOK, map[string]any{
			"finished": true,
			"message":  appI18n.T(r.Context(), "QuizFinished"),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   h.quiz.State().String(),
		"current": h.quizPrompt(),
	})
}

func (h *Handler) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Option string `json:"option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Option == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.quiz == nil || h.quiz.State() == session.QuizFinished {
		notStarted(w, r, "NoActiveQuiz")
		return
	}

	q, _ := h.quiz.Current()
	correct, err := h.quiz.Select(r.Context(), req.Option)
	resp := map[string]any{
		"state":       h.quiz.State().String(),
		"correct":     correct,
		"answer":      q.Answer,
		"explanation": q.Explanation,
	}
	if err != nil {
		// Flag failures are non-fatal: the reveal stands, the user continues.
		slog.Warn("incorrect-flag update failed", "question_id", q.ID, "error", err)
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleQuizAdvance(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.quiz == nil || h.quiz.State() == session.QuizFinished {
		notStarted(w, r, "NoActiveQuiz")
		return
	}

	h.quiz.Advance()
	if h.quiz.State() == session.QuizFinished {
		writeJSON(w, http.StatusOK, map[string]any{
			"finished": true,
			"message":  appI18n.T(r.Context(), "QuizFinished"),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   h.quiz.State().String(),
		"current": h.quizPrompt(),
	})
}

func (h *Handler) handleQuizMaster(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.quiz == nil || h.quiz.State() == session.QuizFinished {
		notStarted(w, r, "NoActiveQuiz")
		return
	}
	if !h.quiz.Review() {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "MasterUnavailable"))
		return
	}

	resp := map[string]any{}
	if err := h.quiz.Master(r.Context()); err != nil {
		slog.Warn("incorrect-flag clear failed", "error", err)
		resp["warning"] = err.Error()
	}
	if h.quiz.State() == session.QuizFinished {
		resp["finished"] = true
		resp["message"] = appI18n.T(r.Context(), "QuizFinished")
	} else {
		resp["state"] = h.quiz.State().String()
		resp["current"] = h.quizPrompt()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleQuizQuit(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.quiz == nil {
		notStarted(w, r, "NoActiveQuiz")
		return
	}
	h.quiz.Quit()
	h.quiz = nil
	writeJSON(w, http.StatusOK, map[string]any{
		"finished": true,
		"message":  appI18n.T(r.Context(), "QuizFinished"),
	})
}

// ---- exam mode ----

func (h *Handler) handleExamStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	questions, err := h.store.ListQuestions(r.Context())
	if err != nil {
		storeError(w, r, "list questions", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	exam, err := session.NewExam(pool.ForExam(h.rand, questions, req.Category), req.Category)
	if errors.Is(err, session.ErrEmptyPool) {
		// Nothing to do, distinct from a failure: no state machine started.
		writeJSON(w, http.StatusOK, map[string]any{
			"started": false,
			"message": appI18n.T(r.Context(), "EmptyPool"),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.exam = exam
	h.quiz = nil
	writeJSON(w, http.StatusOK, map[string]any{
		"started": true,
		"total":   exam.Len(),
		"current": h.examPrompt(),
	})
}

// examPrompt builds the view of the exam's current question without
// revealing correctness. Callers hold h.mu and have checked the session.
func (h *Handler) examPrompt() *promptView {
	q, a := h.exam.Current()
	return &promptView{
		ID:       q.ID,
		Text:     q.Text,
		Options:  q.Options,
		Index:    h.exam.Index(),
		Total:    h.exam.Len(),
		Selected: a.Selected,
	}
}

func (h *Handler) handleExamCurrent(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exam == nil {
		notStarted(w, r, "NoActiveExam")
		return
	}
	if h.exam.State() == session.ExamGraded {
		result, _ := h.exam.Grade(r.Context(), h.store, h.ledger)
		writeJSON(w, http.StatusOK, map[string]any{"finished": true, "result": result})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": h.examPrompt()})
}

func (h *Handler) handleExamAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Option string `json:"option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Option == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exam == nil || h.exam.State() != session.ExamAnswering {
		notStarted(w, r, "NoActiveExam")
		return
	}

	h.exam.Select(req.Option)
	writeJSON(w, http.StatusOK, map[string]any{"current": h.examPrompt()})
}

func (h *Handler) handleExamPrev(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exam == nil || h.exam.State() != session.ExamAnswering {
		notStarted(w, r, "NoActiveExam")
		return
	}
	h.exam.Prev()
	writeJSON(w, http.StatusOK, map[string]any{"current": h.examPrompt()})
}

func (h *Handler) handleExamNext(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exam == nil || h.exam.State() != session.ExamAnswering {
		notStarted(w, r, "NoActiveExam")
		return
	}

	if h.exam.Next() {
		writeJSON(w, http.StatusOK, map[string]any{"current": h.examPrompt()})
		return
	}

	// Advancing past the last question grades the exam.
	result, err := h.exam.Grade(r.Context(), h.store, h.ledger)
	resp := map[string]any{"finished": true, "result": result}
	if err != nil {
		// Best-effort side effects: report, but the result stands.
		slog.Warn("exam grading side effects failed", "error", err)
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- history ----

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	results := h.ledger.History()
	if results == nil {
		results = []model.SessionResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleWrongNote(w http.ResponseWriter, r *http.Request) {
	ids := h.ledger.Missed()
	if ids == nil {
		ids = []int64{}
	}

	// Resolve the noted ids against the store; deleted questions drop out.
	questions := []model.Question{}
	if len(ids) > 0 {
		all, err := h.store.ListQuestions(r.Context())
		if err != nil {
			storeError(w, r, "list questions", err)
			return
		}
		noted := make(map[int64]bool, len(ids))
		for _, id := range ids {
			noted[id] = true
		}
		for _, q := range all {
			if noted[q.ID] {
				questions = append(questions, q)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ids":       ids,
		"questions": questions,
	})
}
