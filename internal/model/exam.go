package model

import "time"

// Subject is a subject option shown during exam selection.
type Subject struct {
	ID             int64  `json:"id"`
	EducationLevel string `json:"education_level"`
	SubjectType    string `json:"subject_type"`
	Name           string `json:"name"`
}

// Exam is an exam option available to the student for a subject.
type Exam struct {
	ID           int64      `json:"id"`
	Code         string     `json:"code"`
	Title        string     `json:"title"`
	SubjectID    int64      `json:"subject_id"`
	EndAt        *time.Time `json:"end_at,omitempty"`
	ReviewPolicy string     `json:"review_policy"`
}

// StartAttemptRequest is the payload for POST /attempts/start.
// ExamToken is required only when the exam is token-gated.
type StartAttemptRequest struct {
	ExamID    int64  `json:"exam_id" validate:"required,min=1"`
	ExamToken string `json:"exam_token,omitempty"`
}
