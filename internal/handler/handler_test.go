package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	appI18n "quizbank/internal/i18n"
	"quizbank/internal/history"
	"quizbank/internal/model"
	"quizbank/internal/store"
)

func newTestServer(t *testing.T) (*Handler, http.Handler, *store.Store) {
	t.Helper()

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ledger, err := history.New(t.TempDir())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}

	h := New(s, ledger, nil)
	h.rand = rand.New(rand.NewPCG(1, 2))

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	return h, r, s
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var m map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, m
}

func seedQuestion(t *testing.T, s *store.Store, text, answer, category string) model.Question {
	t.Helper()
	q, err := s.InsertQuestion(context.Background(), model.QuestionDraft{
		Text:        text,
		Options:     []string{"①a", "②b"},
		Answer:      answer,
		Explanation: "because",
		Category:    category,
	})
	if err != nil {
		t.Fatalf("seedQuestion: %v", err)
	}
	return q
}

func TestBulkUploadAndList(t *testing.T) {
	_, srv, _ := newTestServer(t)

	text := "문제: 첫 번째 ①하나 ②둘 답: ① 해설: one—문제: 두 번째 ①셋 ②넷 답: ② 해설: two"
	code, resp := doJSON(t, srv, http.MethodPost, "/api/questions/bulk",
		map[string]any{"category": "math", "text": text})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	if resp["imported"] != float64(2) {
		t.Fatalf("expected 2 imported, got %v", resp["imported"])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/questions?category=math", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var questions []model.Question
	if err := json.Unmarshal(rec.Body.Bytes(), &questions); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	for _, q := range questions {
		if q.Category != "math" {
			t.Errorf("expected category math, got %q", q.Category)
		}
	}
}

func TestBulkUploadMalformedAbortsBatch(t *testing.T) {
	_, srv, s := newTestServer(t)

	// Second record has no explanation marker: the whole batch is rejected.
	text := "문제: ok ①하나 ②둘 답: ① 해설: one—문제: bad ①셋 ②넷 답: ②"
	code, resp := doJSON(t, srv, http.MethodPost, "/api/questions/bulk",
		map[string]any{"category": "math", "text": text})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", code, resp)
	}
	if resp["kind"] != "malformed_record" {
		t.Errorf("expected kind malformed_record, got %v", resp["kind"])
	}
	if resp["record"] != float64(2) {
		t.Errorf("expected record 2, got %v", resp["record"])
	}

	count, _ := s.QuestionCount(context.Background())
	if count != 0 {
		t.Fatalf("rejected batch must import nothing, got %d questions", count)
	}
}

func TestCreateQuestionValidation(t *testing.T) {
	_, srv, _ := newTestServer(t)

	code, _ := doJSON(t, srv, http.MethodPost, "/api/questions", model.QuestionDraft{
		Text:     "q",
		Options:  []string{"①a", "②b"},
		Answer:   "③c",
		Category: "math",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for answer outside options, got %d", code)
	}

	code, _ = doJSON(t, srv, http.MethodPost, "/api/questions", model.QuestionDraft{
		Text:    "q",
		Options: []string{"①a", "②b"},
		Answer:  "①a",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing category, got %d", code)
	}

	code, _ = doJSON(t, srv, http.MethodPost, "/api/questions", model.QuestionDraft{
		Text:     "q",
		Options:  []string{"①a", "②b"},
		Answer:   "①a",
		Category: "math",
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
}

func TestDeleteQuestions(t *testing.T) {
	_, srv, s := newTestServer(t)
	q1 := seedQuestion(t, s, "q1", "①a", "math")
	seedQuestion(t, s, "q2", "①a", "math")

	code, _ := doJSON(t, srv, http.MethodDelete, "/api/questions",
		map[string]any{"ids": []int64{q1.ID}})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	count, _ := s.QuestionCount(context.Background())
	if count != 1 {
		t.Fatalf("expected 1 question left, got %d", count)
	}
}

func TestQuizFlow(t *testing.T) {
	_, srv, s := newTestServer(t)
	q := seedQuestion(t, s, "only", "①a", "math")

	code, resp := doJSON(t, srv, http.MethodPost, "/api/quiz/start",
		map[string]any{"category": "math"})
	if code != http.StatusOK || resp["started"] != true {
		t.Fatalf("expected started quiz, got %d: %v", code, resp)
	}

	// Wrong answer: revealed with correctness, and the store flag set.
	code, resp = doJSON(t, srv, http.MethodPost, "/api/quiz/answer",
		map[string]any{"option": "②b"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	if resp["correct"] != false {
		t.Errorf("expected incorrect, got %v", resp["correct"])
	}
	if resp["answer"] != "①a" || resp["explanation"] != "because" {
		t.Errorf("expected revealed answer and explanation, got %v", resp)
	}
	if resp["state"] != "revealed" {
		t.Errorf("expected revealed state, got %v", resp["state"])
	}
	flagged, _ := s.ListIncorrectQuestions(context.Background())
	if len(flagged) != 1 || flagged[0].ID != q.ID {
		t.Errorf("expected question %d flagged incorrect, got %v", q.ID, flagged)
	}

	// Advancing past the only question finishes the session.
	code, resp = doJSON(t, srv, http.MethodPost, "/api/quiz/advance", nil)
	if code != http.StatusOK || resp["finished"] != true {
		t.Fatalf("expected finished quiz, got %d: %v", code, resp)
	}
}

func TestQuizStartEmptyPool(t *testing.T) {
	_, srv, _ := newTestServer(t)

	code, resp := doJSON(t, srv, http.MethodPost, "/api/quiz/start",
		map[string]any{"category": "nothing-here"})
	if code != http.StatusOK {
		t.Fatalf("empty pool is not a failure, got %d", code)
	}
	if resp["started"] != false {
		t.Fatalf("expected started=false, got %v", resp)
	}

	// No session was created.
	code, _ = doJSON(t, srv, http.MethodPost, "/api/quiz/answer",
		map[string]any{"option": "①a"})
	if code != http.StatusConflict {
		t.Fatalf("expected 409 without a session, got %d", code)
	}
}

func TestReviewFlow(t *testing.T) {
	_, srv, s := newTestServer(t)
	q := seedQuestion(t, s, "missed before", "①a", "math")
	seedQuestion(t, s, "never missed", "①a", "math")
	if err := s.SetIncorrectFlag(context.Background(), q.ID, true); err != nil {
		t.Fatalf("SetIncorrectFlag: %v", err)
	}

	code, resp := doJSON(t, srv, http.MethodPost, "/api/quiz/start",
		map[string]any{"review": true})
	if code != http.StatusOK || resp["started"] != true {
		t.Fatalf("expected started review, got %d: %v", code, resp)
	}
	if resp["total"] != float64(1) {
		t.Fatalf("review pool must hold only flagged questions, got %v", resp["total"])
	}

	// Mastering clears the flag and finishes the one-question session.
	code, resp = doJSON(t, srv, http.MethodPost, "/api/quiz/master", nil)
	if code != http.StatusOK || resp["finished"] != true {
		t.Fatalf("expected finished review, got %d: %v", code, resp)
	}
	flagged, _ := s.ListIncorrectQuestions(context.Background())
	if len(flagged) != 0 {
		t.Errorf("expected flag cleared, got %v", flagged)
	}
}

func TestMasterRejectedInPlainQuiz(t *testing.T) {
	_, srv, s := newTestServer(t)
	seedQuestion(t, s, "q", "①a", "math")

	doJSON(t, srv, http.MethodPost, "/api/quiz/start", map[string]any{})
	code, _ := doJSON(t, srv, http.MethodPost, "/api/quiz/master", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for master outside review, got %d", code)
	}
}

func TestExamFlow(t *testing.T) {
	h, srv, s := newTestServer(t)

	answers := make(map[int64]string)
	for _, text := range []string{"q1", "q2", "q3"} {
		q := seedQuestion(t, s, text, "①a", "math")
		answers[q.ID] = q.Answer
	}

	code, resp := doJSON(t, srv, http.MethodPost, "/api/exam/start",
		map[string]any{"category": "math"})
	if code != http.StatusOK || resp["started"] != true {
		t.Fatalf("expected started exam, got %d: %v", code, resp)
	}
	if resp["total"] != float64(3) {
		t.Fatalf("expected 3 questions, got %v", resp["total"])
	}

	// Answer the first two correctly and the last one wrong; exam order is
	// shuffled, so read the current question id from each response.
	current := resp["current"].(map[string]any)
	var wrongID int64
	for i := 0; i < 3; i++ {
		id := int64(current["id"].(float64))
		option := answers[id]
		if i == 2 {
			option = "②b"
			wrongID = id
		}
		code, resp = doJSON(t, srv, http.MethodPost, "/api/exam/answer",
			map[string]any{"option": option})
		if code != http.StatusOK {
			t.Fatalf("answer %d: expected 200, got %d: %v", i, code, resp)
		}
		// No correctness is revealed while answering.
		if _, leaked := resp["correct"]; leaked {
			t.Fatal("exam answer must not reveal correctness")
		}

		code, resp = doJSON(t, srv, http.MethodPost, "/api/exam/next", nil)
		if code != http.StatusOK {
			t.Fatalf("next %d: expected 200, got %d: %v", i, code, resp)
		}
		if i < 2 {
			current = resp["current"].(map[string]any)
		}
	}

	if resp["finished"] != true {
		t.Fatalf("expected graded exam, got %v", resp)
	}
	result := resp["result"].(map[string]any)
	if result["total"] != float64(3) || result["correct"] != float64(2) {
		t.Fatalf("expected 2/3, got %v", result)
	}
	wrongIDs := result["wrong_ids"].([]any)
	if len(wrongIDs) != 1 || int64(wrongIDs[0].(float64)) != wrongID {
		t.Fatalf("expected wrong ids [%d], got %v", wrongID, wrongIDs)
	}

	// Grading flagged the missed question and fed the ledger.
	flagged, _ := s.ListIncorrectQuestions(context.Background())
	if len(flagged) != 1 || flagged[0].ID != wrongID {
		t.Errorf("expected question %d flagged, got %v", wrongID, flagged)
	}
	if results := h.ledger.History(); len(results) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(results))
	}

	code, resp = doJSON(t, srv, http.MethodGet, "/api/wrong-note", nil)
	if code != http.StatusOK {
		t.Fatalf("wrong-note: expected 200, got %d", code)
	}
	ids := resp["ids"].([]any)
	if len(ids) != 1 || int64(ids[0].(float64)) != wrongID {
		t.Errorf("expected wrong note [%d], got %v", wrongID, ids)
	}
}

func TestExamStartEmptyPool(t *testing.T) {
	_, srv, _ := newTestServer(t)

	code, resp := doJSON(t, srv, http.MethodPost, "/api/exam/start",
		map[string]any{"category": "empty"})
	if code != http.StatusOK {
		t.Fatalf("empty pool is not a failure, got %d", code)
	}
	if resp["started"] != false {
		t.Fatalf("expected started=false, got %v", resp)
	}

	code, _ = doJSON(t, srv, http.MethodGet, "/api/exam", nil)
	if code != http.StatusConflict {
		t.Fatalf("expected 409 without a session, got %d", code)
	}
}

func TestExamPrevRevisesAnswer(t *testing.T) {
	_, srv, s := newTestServer(t)
	seedQuestion(t, s, "q1", "①a", "math")
	seedQuestion(t, s, "q2", "①a", "math")

	doJSON(t, srv, http.MethodPost, "/api/exam/start", map[string]any{"category": "math"})
	doJSON(t, srv, http.MethodPost, "/api/exam/answer", map[string]any{"option": "②b"})
	doJSON(t, srv, http.MethodPost, "/api/exam/next", nil)

	// Go back and overwrite the first answer.
	code, resp := doJSON(t, srv, http.MethodPost, "/api/exam/prev", nil)
	if code != http.StatusOK {
		t.Fatalf("prev: expected 200, got %d", code)
	}
	current := resp["current"].(map[string]any)
	if current["selected"] != "②b" {
		t.Fatalf("expected recorded selection ②b, got %v", current["selected"])
	}
	_, resp = doJSON(t, srv, http.MethodPost, "/api/exam/answer", map[string]any{"option": "①a"})
	current = resp["current"].(map[string]any)
	if current["selected"] != "①a" {
		t.Fatalf("expected overwritten selection ①a, got %v", current["selected"])
	}
}

func TestHistoryEndpointEmpty(t *testing.T) {
	_, srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var results []model.SessionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty history, got %d", len(results))
	}
}
