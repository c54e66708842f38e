package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"onetrivia/game-service/internal/models"
)

var (
	ErrDuplicateAnswer  = errors.New("answer already recorded for this question")
	ErrSessionNotActive = errors.New("session is not active")
)

// AggregateDelta carries the session aggregate changes produced by one
// answer submission.
type AggregateDelta struct {
	ScoreDelta          int64
	CorrectDelta        int
	ResponseTimeSeconds float64
}

type AnswerRepository interface {
	// Record inserts the answer and applies the session aggregate update in
	// one transaction, returning the post-update answered count read inside
	// that transaction. The unique (session_id, question_id) key rejects
	// duplicate submissions; the aggregate update is conditional on the
	// session still being ACTIVE. A failure of either statement leaves both
	// untouched.
	Record(ctx context.Context, answer *models.Answer, delta AggregateDelta) (int, error)
	ListResponseTimes(ctx context.Context, sessionID string) ([]float64, error)
}

type answerRepository struct {
	db *sql.DB
}

func NewAnswerRepository(db *sql.DB) AnswerRepository {
	return &answerRepository{db: db}
}

const mysqlErrDuplicateEntry = 1062

func (r *answerRepository) Record(ctx context.Context, answer *models.Answer, delta AggregateDelta) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO answers (session_id, question_id, selected_option, is_skipped, is_correct, response_time_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insertQuery,
		answer.SessionID, answer.QuestionID, answer.SelectedOption,
		answer.IsSkipped, answer.IsCorrect, answer.ResponseTimeSeconds, time.Now())
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return 0, ErrDuplicateAnswer
		}
		return 0, fmt.Errorf("failed to insert answer: %w", err)
	}

	updateQuery := `
		UPDATE game_sessions
		SET answered_questions = answered_questions + 1,
		    correct_answers = correct_answers + ?,
		    score = score + ?,
		    total_time_seconds = total_time_seconds + ?,
		    last_activity_at = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`
	now := time.Now()
	result, err := tx.ExecContext(ctx, updateQuery,
		delta.CorrectDelta, delta.ScoreDelta, delta.ResponseTimeSeconds,
		now, now, answer.SessionID, models.SessionStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to update session aggregates: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrSessionNotActive
	}

	// The count must come from the same transaction that incremented it;
	// a pre-transaction read can be stale under concurrent submissions for
	// the same session.
	var answeredCount int
	err = tx.QueryRowContext(ctx,
		`SELECT answered_questions FROM game_sessions WHERE id = ?`,
		answer.SessionID).Scan(&answeredCount)
	if err != nil {
		return 0, fmt.Errorf("failed to read answered count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit answer: %w", err)
	}

	return answeredCount, nil
}

func (r *answerRepository) ListResponseTimes(ctx context.Context, sessionID string) ([]float64, error) {
	query := `
		SELECT response_time_seconds
		FROM answers
		WHERE session_id = ?
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query response times: %w", err)
	}
	defer rows.Close()

	var times []float64
	for rows.Next() {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan response time: %w", err)
		}
		times = append(times, t)
	}

	return times, nil
}
