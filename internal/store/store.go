package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"quizbank/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME NOT NULL,
		question TEXT NOT NULL,
		options TEXT NOT NULL,
		answer TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		is_incorrect INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionColumns = `id, created_at, question, options, answer, explanation, category, is_incorrect`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var options string
	err := row.Scan(&q.ID, &q.CreatedAt, &q.Text, &options, &q.Answer, &q.Explanation, &q.Category, &q.IsIncorrect)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("decode options for question %d: %w", q.ID, err)
	}
	return q, nil
}

// InsertQuestion validates and stores one draft, returning the stored
// question with its assigned id.
func (s *Store) InsertQuestion(ctx context.Context, d model.QuestionDraft) (model.Question, error) {
	if err := d.Validate(); err != nil {
		return model.Question{}, fmt.Errorf("invalid question: %w", err)
	}
	options, err := json.Marshal(d.Options)
	if err != nil {
		return model.Question{}, fmt.Errorf("encode options: %w", err)
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (created_at, question, options, answer, explanation, category)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		now, d.Text, string(options), d.Answer, d.Explanation, d.Category,
	)
	if err != nil {
		return model.Question{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Question{}, err
	}
	return model.Question{
		ID:          id,
		CreatedAt:   now,
		Text:        d.Text,
		Options:     d.Options,
		Answer:      d.Answer,
		Explanation: d.Explanation,
		Category:    d.Category,
	}, nil
}

// InsertQuestions stores a batch of drafts in one transaction. The batch is
// all-or-nothing: any invalid draft or failed insert rolls back everything.
func (s *Store) InsertQuestions(ctx context.Context, drafts []model.QuestionDraft) ([]model.Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	questions := make([]model.Question, 0, len(drafts))
	for i, d := range drafts {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("invalid question %d: %w", i+1, err)
		}
		options, err := json.Marshal(d.Options)
		if err != nil {
			return nil, fmt.Errorf("encode options for question %d: %w", i+1, err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO questions (created_at, question, options, answer, explanation, category)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			now, d.Text, string(options), d.Answer, d.Explanation, d.Category,
		)
		if err != nil {
			return nil, fmt.Errorf("insert question %d: %w", i+1, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		questions = append(questions, model.Question{
			ID:          id,
			CreatedAt:   now,
			Text:        d.Text,
			Options:     d.Options,
			Answer:      d.Answer,
			Explanation: d.Explanation,
			Category:    d.Category,
		})
	}
	return questions, tx.Commit()
}

// ListQuestions returns all questions, newest first.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	return s.listWhere(ctx, ``)
}

// ListQuestionsByCategory returns the questions in one category, newest first.
func (s *Store) ListQuestionsByCategory(ctx context.Context, category string) ([]model.Question, error) {
	return s.listWhere(ctx, `WHERE category = ?`, category)
}

// ListIncorrectQuestions returns the questions flagged incorrect.
func (s *Store) ListIncorrectQuestions(ctx context.Context) ([]model.Question, error) {
	return s.listWhere(ctx, `WHERE is_incorrect = 1`)
}

func (s *Store) listWhere(ctx context.Context, where string, args ...any) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	return scanQuestion(row)
}

// SetIncorrectFlag marks a question as missed (or mastered) by quiz and
// exam sessions.
func (s *Store) SetIncorrectFlag(ctx context.Context, id int64, incorrect bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE questions SET is_incorrect = ? WHERE id = ?`, incorrect, id)
	return err
}

// DeleteQuestions removes the given questions. Missing ids are ignored.
func (s *Store) DeleteQuestions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// ListCategories returns the distinct categories in alphabetical order.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM questions ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// QuestionCount returns the number of stored questions.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
