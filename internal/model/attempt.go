package model

import (
	"encoding/json"
	"time"
)

// Attempt statuses reported by the server. Only StatusInProgress accepts
// writes; every other status is terminal for the session.
const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusExpired    = "expired"
	StatusFinal      = "final"
)

// Attempt is the record returned when an attempt is started.
type Attempt struct {
	ID        int64     `json:"id"`
	ExamID    int64     `json:"exam_id"`
	StudentID int64     `json:"student_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AttemptSummary is the server-reported attempt snapshot.
type AttemptSummary struct {
	ID              int64      `json:"id"`
	ExamID          int64      `json:"exam_id"`
	StudentID       int64      `json:"student_id"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	RemainingSecs   int64      `json:"remaining_secs"`
	TotalQuestions  int        `json:"total_questions"`
	Answered        int        `json:"answered"`
	Doubt           int        `json:"doubt"`
	TotalCorrect    int        `json:"total_correct"`
	TotalWrong      int        `json:"total_wrong"`
	TotalUnanswered int        `json:"total_unanswered"`
	Score           float64    `json:"score"`
}

// Editable reports whether the attempt still accepts writes.
func (s *AttemptSummary) Editable() bool {
	return s.Status == StatusInProgress
}

// SaveAnswerRequest is the payload for PUT /attempts/{id}/answers/{questionID}.
type SaveAnswerRequest struct {
	AnswerPayload json.RawMessage `json:"answer_payload"`
	IsDoubt       bool            `json:"is_doubt"`
}

// AttemptResult is the graded outcome returned after submit, per the exam's
// review policy.
type AttemptResult struct {
	Summary AttemptSummary      `json:"summary"`
	Items   []AttemptResultItem `json:"items"`
}

// AttemptResultItem is the per-question grading detail.
type AttemptResultItem struct {
	QuestionID  int64            `json:"question_id"`
	Selected    []string         `json:"selected"`
	Correct     []string         `json:"correct"`
	IsCorrect   *bool            `json:"is_correct,omitempty"`
	EarnedScore float64          `json:"earned_score"`
	Reason      string           `json:"reason,omitempty"`
	Breakdown   []StatementScore `json:"breakdown,omitempty"`
}

// StatementScore is the per-statement grading detail for statement-set
// questions. Answer is nil when the statement was left blank.
type StatementScore struct {
	ID      string `json:"id"`
	Correct bool   `json:"correct"`
	Answer  *bool  `json:"answer,omitempty"`
}
