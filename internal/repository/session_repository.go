package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"onetrivia/game-service/internal/models"
)

type SessionRepository interface {
	// Create inserts the session and its question assignments in one
	// transaction; a failed assignment leaves no session behind.
	Create(ctx context.Context, session *models.GameSession, assignments []*models.SessionQuestion) error
	FindByID(ctx context.Context, id string) (*models.GameSession, error)
	// FindOpenByUserAndPeriod returns the user's ACTIVE or PAUSED session for
	// the period, if any.
	FindOpenByUserAndPeriod(ctx context.Context, userID, periodID uint64) (*models.GameSession, error)
	FindCompletedByUserAndPeriod(ctx context.Context, userID, periodID uint64) (*models.GameSession, error)
	// TransitionStatus flips the session status only when the current status
	// is one of from. Returns false when no row matched.
	TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// CompleteIfAllAnswered marks the session COMPLETED only when it is still
	// ACTIVE and every assigned question has an answer. The conditional
	// update makes completion happen exactly once.
	CompleteIfAllAnswered(ctx context.Context, id string, completedAt time.Time) (bool, error)
	CountUsersSharingIP(ctx context.Context, periodID uint64, ip string, excludeUserID uint64) (int, error)
	CountUsersSharingDevice(ctx context.Context, periodID uint64, fingerprint string) (int, error)
}

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

const sessionColumns = `id, user_id, period_id, status, total_questions, answered_questions, correct_answers, score, total_time_seconds, device_fingerprint, ip_address, last_activity_at, completed_at, created_at, updated_at`

func (r *sessionRepository) Create(ctx context.Context, session *models.GameSession, assignments []*models.SessionQuestion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO game_sessions (id, user_id, period_id, status, total_questions, answered_questions, correct_answers, score, total_time_seconds, device_fingerprint, ip_address, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	_, err = tx.ExecContext(ctx, query,
		session.ID, session.UserID, session.PeriodID, session.Status, session.TotalQuestions,
		session.DeviceFingerprint, session.IPAddress, session.LastActivityAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	assignQuery := `
		INSERT INTO session_questions (session_id, question_id, position, option_order, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, assignment := range assignments {
		_, err = tx.ExecContext(ctx, assignQuery,
			assignment.SessionID, assignment.QuestionID, assignment.Position,
			assignment.OptionOrder, now)
		if err != nil {
			return fmt.Errorf("failed to assign question: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session creation: %w", err)
	}

	return nil
}

func (r *sessionRepository) FindByID(ctx context.Context, id string) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE id = ?`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) FindOpenByUserAndPeriod(ctx context.Context, userID, periodID uint64) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE user_id = ? AND period_id = ? AND status IN (?, ?) LIMIT 1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, userID, periodID,
		models.SessionStatusActive, models.SessionStatusPaused))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open session: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) FindCompletedByUserAndPeriod(ctx context.Context, userID, periodID uint64) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE user_id = ? AND period_id = ? AND status = ? ORDER BY completed_at DESC LIMIT 1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, userID, periodID, models.SessionStatusCompleted))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find completed session: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	query := fmt.Sprintf(`
		UPDATE game_sessions
		SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (%s)
	`, placeholders)

	args := []interface{}{to, time.Now(), id}
	for _, s := range from {
		args = append(args, s)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition session status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *sessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE game_sessions
		SET last_activity_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *sessionRepository) CompleteIfAllAnswered(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	query := `
		UPDATE game_sessions
		SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND answered_questions = total_questions
	`
	result, err := r.db.ExecContext(ctx, query,
		models.SessionStatusCompleted, completedAt, time.Now(), id, models.SessionStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *sessionRepository) CountUsersSharingIP(ctx context.Context, periodID uint64, ip string, excludeUserID uint64) (int, error) {
	query := `
		SELECT COUNT(DISTINCT user_id)
		FROM game_sessions
		WHERE period_id = ? AND ip_address = ? AND user_id != ?
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, periodID, ip, excludeUserID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users sharing ip: %w", err)
	}
	return count, nil
}

func (r *sessionRepository) CountUsersSharingDevice(ctx context.Context, periodID uint64, fingerprint string) (int, error) {
	query := `
		SELECT COUNT(DISTINCT user_id)
		FROM game_sessions
		WHERE period_id = ? AND device_fingerprint = ?
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, periodID, fingerprint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users sharing device: %w", err)
	}
	return count, nil
}

func scanSession(row rowScanner) (*models.GameSession, error) {
	session := &models.GameSession{}
	var completedAt sql.NullTime

	err := row.Scan(
		&session.ID, &session.UserID, &session.PeriodID, &session.Status,
		&session.TotalQuestions, &session.AnsweredQuestions, &session.CorrectAnswers,
		&session.Score, &session.TotalTimeSeconds, &session.DeviceFingerprint,
		&session.IPAddress, &session.LastActivityAt, &completedAt,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	return session, nil
}
