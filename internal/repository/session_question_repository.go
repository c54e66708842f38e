package repository

import (
	"context"
	"database/sql"
	"fmt"

	"onetrivia/game-service/internal/models"
)

type SessionQuestionRepository interface {
	// ListUnanswered returns the session's assignments that do not yet have
	// an answer, in assignment order, joined with question content.
	ListUnanswered(ctx context.Context, sessionID string, limit int) ([]*models.AssignedQuestion, error)
	FindBySessionAndQuestion(ctx context.Context, sessionID string, questionID uint64) (*models.SessionQuestion, error)
}

type sessionQuestionRepository struct {
	db *sql.DB
}

func NewSessionQuestionRepository(db *sql.DB) SessionQuestionRepository {
	return &sessionQuestionRepository{db: db}
}

func (r *sessionQuestionRepository) ListUnanswered(ctx context.Context, sessionID string, limit int) ([]*models.AssignedQuestion, error) {
	query := `
		SELECT sq.id, sq.session_id, sq.question_id, sq.position, sq.option_order, sq.created_at,
		       q.id, q.text, q.options, q.correct_option, q.language, q.category, q.difficulty, q.created_at
		FROM session_questions sq
		JOIN questions q ON q.id = sq.question_id
		LEFT JOIN answers a ON a.session_id = sq.session_id AND a.question_id = sq.question_id
		WHERE sq.session_id = ? AND a.id IS NULL
		ORDER BY sq.position
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unanswered questions: %w", err)
	}
	defer rows.Close()

	var assigned []*models.AssignedQuestion
	for rows.Next() {
		aq := &models.AssignedQuestion{}
		err := rows.Scan(
			&aq.Assignment.ID, &aq.Assignment.SessionID, &aq.Assignment.QuestionID,
			&aq.Assignment.Position, &aq.Assignment.OptionOrder, &aq.Assignment.CreatedAt,
			&aq.Question.ID, &aq.Question.Text, &aq.Question.Options, &aq.Question.CorrectOption,
			&aq.Question.Language, &aq.Question.Category, &aq.Question.Difficulty, &aq.Question.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assigned question: %w", err)
		}
		assigned = append(assigned, aq)
	}

	return assigned, nil
}

func (r *sessionQuestionRepository) FindBySessionAndQuestion(ctx context.Context, sessionID string, questionID uint64) (*models.SessionQuestion, error) {
	query := `
		SELECT id, session_id, question_id, position, option_order, created_at
		FROM session_questions
		WHERE session_id = ? AND question_id = ?
	`
	sq := &models.SessionQuestion{}
	err := r.db.QueryRowContext(ctx, query, sessionID, questionID).Scan(
		&sq.ID, &sq.SessionID, &sq.QuestionID, &sq.Position, &sq.OptionOrder, &sq.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session question: %w", err)
	}
	return sq, nil
}
