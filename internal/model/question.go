package model

import "encoding/json"

// Question types used on the wire.
const (
	QuestionTypeSingleChoice = "pg_tunggal"
	QuestionTypeMultiChoice  = "multi_jawaban"
	QuestionTypeStatementSet = "benar_salah_pernyataan"
)

// AttemptQuestion is the question currently displayed, scoped to one attempt.
// AnswerPayload carries the stored answer; AnswerKey carries the statement
// rows needed to render statement-set questions (never the correct answers).
type AttemptQuestion struct {
	AttemptID     int64            `json:"attempt_id"`
	QuestionID    int64            `json:"question_id"`
	SeqNo         int              `json:"seq_no"`
	QuestionType  string           `json:"question_type"`
	StemHTML      string           `json:"stem_html"`
	StimulusHTML  *string          `json:"stimulus_html,omitempty"`
	AnswerKey     json.RawMessage  `json:"answer_key"`
	AnswerPayload json.RawMessage  `json:"answer_payload"`
	IsDoubt       bool             `json:"is_doubt"`
	Options       []QuestionOption `json:"options,omitempty"`
}

// QuestionOption is one selectable option of a choice question.
type QuestionOption struct {
	OptionKey  string `json:"option_key"`
	OptionHTML string `json:"option_html"`
}
