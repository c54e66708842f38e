package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Game mode types
const (
	ModeTypeFree       = "FREE"
	ModeTypePaid       = "PAID"
	ModeTypeTournament = "TOURNAMENT"
)

type GameMode struct {
	ID              uint64          `db:"id"`
	Name            string          `db:"name"`
	Type            string          `db:"type"`
	EntryFeeCredits decimal.Decimal `db:"entry_fee_credits"`
	EntryFeeMoney   decimal.Decimal `db:"entry_fee_money"`
	QuestionCount   int             `db:"question_count"`
	Language        string          `db:"language"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// Period statuses
const (
	PeriodStatusUpcoming  = "UPCOMING"
	PeriodStatusActive    = "ACTIVE"
	PeriodStatusCompleted = "COMPLETED"
)

type Period struct {
	ID                  uint64          `db:"id"`
	ModeID              uint64          `db:"mode_id"`
	Status              string          `db:"status"`
	StartsAt            time.Time       `db:"starts_at"`
	EndsAt              time.Time       `db:"ends_at"`
	MinAnswersToQualify int             `db:"min_answers_to_qualify"`
	MaxWinners          int             `db:"max_winners"`
	PayoutAmount        decimal.Decimal `db:"payout_amount"`
	PayoutCurrency      string          `db:"payout_currency"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

// Session statuses. ACTIVE may move to any other status; PAUSED may move back
// to ACTIVE or on to EXPIRED; the remaining three are terminal.
const (
	SessionStatusActive    = "ACTIVE"
	SessionStatusPaused    = "PAUSED"
	SessionStatusCompleted = "COMPLETED"
	SessionStatusCancelled = "CANCELLED"
	SessionStatusExpired   = "EXPIRED"
)

type GameSession struct {
	ID                string     `db:"id"` // uuid
	UserID            uint64     `db:"user_id"`
	PeriodID          uint64     `db:"period_id"`
	Status            string     `db:"status"`
	TotalQuestions    int        `db:"total_questions"`
	AnsweredQuestions int        `db:"answered_questions"`
	CorrectAnswers    int        `db:"correct_answers"`
	Score             int64      `db:"score"`
	TotalTimeSeconds  float64    `db:"total_time_seconds"`
	DeviceFingerprint string     `db:"device_fingerprint"`
	IPAddress         string     `db:"ip_address"`
	LastActivityAt    time.Time  `db:"last_activity_at"`
	CompletedAt       *time.Time `db:"completed_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// SessionQuestion assigns a question to a session at a fixed position with a
// fixed option order. The order never changes after assignment so repeated
// fetches return the same presentation.
type SessionQuestion struct {
	ID          uint64    `db:"id"`
	SessionID   string    `db:"session_id"`
	QuestionID  uint64    `db:"question_id"`
	Position    int       `db:"position"`
	OptionOrder string    `db:"option_order"` // JSON array of original option indexes
	CreatedAt   time.Time `db:"created_at"`
}

type Answer struct {
	ID                  uint64    `db:"id"`
	SessionID           string    `db:"session_id"`
	QuestionID          uint64    `db:"question_id"`
	SelectedOption      *int      `db:"selected_option"` // nil when skipped
	IsSkipped           bool      `db:"is_skipped"`
	IsCorrect           bool      `db:"is_correct"`
	ResponseTimeSeconds float64   `db:"response_time_seconds"`
	CreatedAt           time.Time `db:"created_at"`
}

// AssignedQuestion pairs a session assignment with its question content.
type AssignedQuestion struct {
	Assignment SessionQuestion
	Question   Question
}

// DeliveredQuestion is the client-facing form of an assigned question: the
// options are permuted by the assignment's fixed order and the correct
// option is withheld.
type DeliveredQuestion struct {
	QuestionID uint64   `json:"question_id"`
	Position   int      `json:"position"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Category   string   `json:"category"`
}

// Question content is authored externally; this service only reads it.
type Question struct {
	ID            uint64    `db:"id"`
	Text          string    `db:"text"`
	Options       string    `db:"options"` // JSON array of option strings
	CorrectOption int       `db:"correct_option"`
	Language      string    `db:"language"`
	Category      string    `db:"category"`
	Difficulty    int       `db:"difficulty"`
	CreatedAt     time.Time `db:"created_at"`
}
