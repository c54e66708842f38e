package repository

import (
	"context"
	"database/sql"
	"fmt"

	"onetrivia/game-service/internal/models"
)

type QuestionRepository interface {
	// GetRandomQuestions returns count random questions in the given
	// language. Question authoring lives outside this service; the repo
	// only reads.
	GetRandomQuestions(ctx context.Context, language string, count int) ([]*models.Question, error)
	FindByID(ctx context.Context, id uint64) (*models.Question, error)
}

type questionRepository struct {
	db *sql.DB
}

func NewQuestionRepository(db *sql.DB) QuestionRepository {
	return &questionRepository{db: db}
}

const questionColumns = `id, text, options, correct_option, language, category, difficulty, created_at`

func (r *questionRepository) GetRandomQuestions(ctx context.Context, language string, count int) ([]*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE language = ? ORDER BY RAND() LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, language, count)
	if err != nil {
		return nil, fmt.Errorf("failed to query random questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, question)
	}

	return questions, nil
}

func (r *questionRepository) FindByID(ctx context.Context, id uint64) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = ?`

	question, err := scanQuestion(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find question: %w", err)
	}
	return question, nil
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	question := &models.Question{}
	err := row.Scan(
		&question.ID, &question.Text, &question.Options, &question.CorrectOption,
		&question.Language, &question.Category, &question.Difficulty, &question.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return question, nil
}
