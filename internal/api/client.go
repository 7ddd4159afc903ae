package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
)

const (
	sessionCookieName = "cbtlms_session"
	csrfCookieName    = "cbtlms_csrf"
	csrfHeaderName    = "X-CSRF-Token"
	requestIDHeader   = "X-Request-ID"
)

// Client is the typed REST client for the CBT backend. It owns the session
// cookie jar and echoes the CSRF cookie on every mutating request.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a Client for the given base URL ("https://host[:port]").
func New(baseURL string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		log: log.With().Str("component", "api_client").Logger(),
	}, nil
}

// envelope is the server's uniform response wrapper. Error is either a bare
// string or an object carrying code and message.
type envelope struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// extractError resolves the error message and code of a failed envelope,
// trying in order: error as string, error.message, message, HTTP status text.
func extractError(env *envelope, status int) (code, message string) {
	if len(env.Error) > 0 {
		var s string
		if err := json.Unmarshal(env.Error, &s); err == nil && s != "" {
			return "", s
		}
		var obj errorPayload
		if err := json.Unmarshal(env.Error, &obj); err == nil && obj.Message != "" {
			return obj.Code, obj.Message
		}
	}
	if env.Message != "" {
		return "", env.Message
	}
	text := http.StatusText(status)
	if text == "" {
		text = "request failed"
	}
	return "", text
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// csrfToken reads the current CSRF cookie from the jar, if any.
func (c *Client) csrfToken() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	return ""
}

// do performs one API round-trip and decodes the envelope's data into out
// (out may be nil for calls whose data is irrelevant).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.New().String())
	if isMutating(method) {
		if csrf := c.csrfToken(); csrf != "" {
			req.Header.Set(csrfHeaderName, csrf)
		}
	}

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		// Non-JSON body: report by status alone.
		env = envelope{}
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("api call")

	if res.StatusCode < 200 || res.StatusCode >= 300 || !env.OK {
		code, message := extractError(&env, res.StatusCode)
		return &Error{Status: res.StatusCode, Code: code, Message: message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}


// LoginPassword authenticates with a username/email and password. The session
// and CSRF cookies land in the jar.
func (c *Client) LoginPassword(ctx context.Context, req model.LoginPasswordRequest) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login-password", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the authenticated account, or an unauthorized error.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes the server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}


// ListSubjects returns subject options, optionally filtered by education
// level and subject type.
func (c *Client) ListSubjects(ctx context.Context, level, subjectType string) ([]model.Subject, error) {
	q := url.Values{}
	if level != "" {
		q.Set("level", level)
	}
	if subjectType != "" {
		q.Set("type", subjectType)
	}
	path := "/api/v1/subjects"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var subjects []model.Subject
	if err := c.do(ctx, http.MethodGet, path, nil, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// ListExams returns the exams available for a subject.
func (c *Client) ListExams(ctx context.Context, subjectID int64) ([]model.Exam, error) {
	path := fmt.Sprintf("/api/v1/exams?subject_id=%d", subjectID)
	var exams []model.Exam
	if err := c.do(ctx, http.MethodGet, path, nil, &exams); err != nil {
		return nil, err
	}
	return exams, nil
}


// StartAttempt opens (or resumes) the student's attempt for an exam.
func (c *Client) StartAttempt(ctx context.Context, req model.StartAttemptRequest) (*model.Attempt, error) {
	var attempt model.Attempt
	if err := c.do(ctx, http.MethodPost, "/api/v1/attempts/start", req, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// GetAttemptSummary fetches the server-authoritative attempt snapshot.
func (c *Client) GetAttemptSummary(ctx context.Context, attemptID int64) (*model.AttemptSummary, error) {
	var sum model.AttemptSummary
	path := fmt.Sprintf("/api/v1/attempts/%d", attemptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// GetAttemptQuestion fetches the question at ordinal no (1..N).
func (c *Client) GetAttemptQuestion(ctx context.Context, attemptID int64, no int) (*model.AttemptQuestion, error) {
	var q model.AttemptQuestion
	path := fmt.Sprintf("/api/v1/attempts/%d/questions/%d", attemptID, no)
	if err := c.do(ctx, http.MethodGet, path, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// SaveAnswer upserts the stored answer and doubt flag for one question.
func (c *Client) SaveAnswer(ctx context.Context, attemptID, questionID int64, req model.SaveAnswerRequest) error {
	path := fmt.Sprintf("/api/v1/attempts/%d/answers/%d", attemptID, questionID)
	return c.do(ctx, http.MethodPut, path, req, nil)
}

// SubmitAttempt finalizes the attempt. Irreversible.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID int64) (*model.AttemptSummary, error) {
	var sum model.AttemptSummary
	path := fmt.Sprintf("/api/v1/attempts/%d/submit", attemptID)
	if err := c.do(ctx, http.MethodPost, path, nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// GetAttemptResult fetches the graded result, subject to the exam's review
// policy.
func (c *Client) GetAttemptResult(ctx context.Context, attemptID int64) (*model.AttemptResult, error) {
	var result model.AttemptResult
	path := fmt.Sprintf("/api/v1/attempts/%d/result", attemptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PostAttemptEvent reports one proctoring event. Callers treat failures as
// non-fatal.
func (c *Client) PostAttemptEvent(ctx context.Context, attemptID int64, req model.AttemptEventRequest) error {
	path := fmt.Sprintf("/api/v1/attempts/%d/events", attemptID)
	return c.do(ctx, http.MethodPost, path, req, nil)
}
