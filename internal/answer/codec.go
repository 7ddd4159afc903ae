package answer

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-client/internal/model"
)

// Payload is the in-memory answer model for one question. Exactly one of the
// variant fields is meaningful, selected by Type. Constructing a payload
// whose variant does not match its question type is a programming error, not
// a runtime condition.
type Payload struct {
	Type string

	// Selected holds the single-choice selection ("" = unanswered).
	Selected string

	// SelectedSet holds the multi-choice selection set.
	SelectedSet map[string]bool

	// Statements holds the committed statement answers, in commit order.
	// Statements the student has not decided are absent.
	Statements []StatementAnswer
}

// StatementAnswer is one committed true/false choice.
type StatementAnswer struct {
	ID    string `json:"id"`
	Value bool   `json:"value"`
}

// Statement is one row of a statement-set question, extracted from the
// question's answer key for rendering.
type Statement struct {
	ID   string
	Text string
}

// Empty returns the unanswered payload for a question type.
func Empty(questionType string) Payload {
	p := Payload{Type: strings.ToLower(questionType)}
	if p.Type == model.QuestionTypeMultiChoice {
		p.SelectedSet = map[string]bool{}
	}
	return p
}

// wirePayload covers all three wire shapes at once; json.RawMessage keeps
// "selected" undecided between string and array until the type tag is known.
type wirePayload struct {
	Selected json.RawMessage   `json:"selected"`
	Answers  []json.RawMessage `json:"answers"`
}

// Decode maps a stored wire payload into the in-memory model. It is total
// and lenient: malformed input (including payloads that are not JSON at all,
// or JSON double-encoded as a string) yields the empty payload for the type,
// never an error. Unrecognized statement entries are dropped silently.
func Decode(questionType string, raw json.RawMessage) Payload {
	p := Empty(questionType)

	var wire wirePayload
	if err := json.Unmarshal(looseJSON(raw), &wire); err != nil {
		return p
	}

	switch p.Type {
	case model.QuestionTypeSingleChoice:
		var s string
		if err := json.Unmarshal(wire.Selected, &s); err == nil {
			p.Selected = strings.TrimSpace(s)
		}
	case model.QuestionTypeMultiChoice:
		var keys []string
		if err := json.Unmarshal(wire.Selected, &keys); err == nil {
			for _, k := range keys {
				if k = strings.TrimSpace(k); k != "" {
					p.SelectedSet[k] = true
				}
			}
		}
	case model.QuestionTypeStatementSet:
		for _, entry := range wire.Answers {
			// Value must be strictly boolean; anything else drops the entry.
			var sa struct {
				ID    string          `json:"id"`
				Value json.RawMessage `json:"value"`
			}
			if err := json.Unmarshal(entry, &sa); err != nil || sa.ID == "" {
				continue
			}
			var v bool
			if err := json.Unmarshal(sa.Value, &v); err != nil {
				continue
			}
			p.Statements = append(p.Statements, StatementAnswer{ID: sa.ID, Value: v})
		}
	}
	return p
}

// looseJSON unwraps payloads that arrive JSON-encoded inside a JSON string
// and maps empty or non-object input to {}.
func looseJSON(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}")
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
			inner = strings.TrimSpace(inner)
			if strings.HasPrefix(inner, "{") {
				return json.RawMessage(inner)
			}
		}
		return json.RawMessage("{}")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}

// Encode produces the minimal canonical wire form of a payload.
// Multi-choice keys are emitted sorted so identical selections always encode
// identically; statement-set includes only committed statements.
func Encode(p Payload) json.RawMessage {
	switch p.Type {
	case model.QuestionTypeSingleChoice:
		raw, _ := json.Marshal(map[string]string{"selected": strings.TrimSpace(p.Selected)})
		return raw
	case model.QuestionTypeMultiChoice:
		keys := make([]string, 0, len(p.SelectedSet))
		for k, on := range p.SelectedSet {
			if on && strings.TrimSpace(k) != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		raw, _ := json.Marshal(map[string][]string{"selected": keys})
		return raw
	case model.QuestionTypeStatementSet:
		answers := p.Statements
		if answers == nil {
			answers = []StatementAnswer{}
		}
		raw, _ := json.Marshal(map[string][]StatementAnswer{"answers": answers})
		return raw
	}
	return json.RawMessage("{}")
}

// IsAnswered reports whether the payload counts as answered for the
// question-index panel. Empty answers are still valid saves; this predicate
// drives rendering only.
func IsAnswered(p Payload) bool {
	switch p.Type {
	case model.QuestionTypeSingleChoice:
		return strings.TrimSpace(p.Selected) != ""
	case model.QuestionTypeMultiChoice:
		for _, on := range p.SelectedSet {
			if on {
				return true
			}
		}
		return false
	case model.QuestionTypeStatementSet:
		return len(p.Statements) > 0
	}
	return false
}

// ─── Selection mutators ─────────────────────────────────────────────────────
//
// The UI mutates the payload through these; the payload, not any widget
// state, is what gets serialized and saved.

// Select sets the single-choice selection.
func (p *Payload) Select(key string) {
	p.Selected = strings.TrimSpace(key)
}

// Toggle flips one key in the multi-choice selection set.
func (p *Payload) Toggle(key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if p.SelectedSet == nil {
		p.SelectedSet = map[string]bool{}
	}
	if p.SelectedSet[key] {
		delete(p.SelectedSet, key)
		return
	}
	p.SelectedSet[key] = true
}

// SetStatement commits a true/false choice for one statement, replacing any
// earlier commitment for the same statement.
func (p *Payload) SetStatement(id string, value bool) {
	for i := range p.Statements {
		if p.Statements[i].ID == id {
			p.Statements[i].Value = value
			return
		}
	}
	p.Statements = append(p.Statements, StatementAnswer{ID: id, Value: value})
}

// ClearStatement removes the commitment for one statement.
func (p *Payload) ClearStatement(id string) {
	for i := range p.Statements {
		if p.Statements[i].ID == id {
			p.Statements = append(p.Statements[:i], p.Statements[i+1:]...)
			return
		}
	}
}

// StatementValue returns the committed value for a statement, if any.
func (p *Payload) StatementValue(id string) (value, committed bool) {
	for _, sa := range p.Statements {
		if sa.ID == id {
			return sa.Value, true
		}
	}
	return false, false
}

// Statements extracts the renderable statement rows from a statement-set
// question's answer key. Missing IDs default to "S<n>" and missing labels
// fall back to the ID.
func Statements(answerKey json.RawMessage) []Statement {
	var key struct {
		Statements []map[string]interface{} `json:"statements"`
	}
	if err := json.Unmarshal(looseJSON(answerKey), &key); err != nil || len(key.Statements) == 0 {
		return nil
	}
	out := make([]Statement, 0, len(key.Statements))
	for idx, s := range key.Statements {
		id, _ := s["id"].(string)
		if id == "" {
			id = "S" + strconv.Itoa(idx+1)
		}
		text := firstString(s, "text", "statement", "label", "statement_html")
		if text == "" {
			text = id
		}
		out = append(out, Statement{ID: id, Text: text})
	}
	return out
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
