package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) (*api.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := api.New(srv.URL, 5*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestEnvelopeDataDecoding(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/attempts/42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, 200, `{"ok":true,"data":{"id":42,"status":"in_progress","remaining_secs":300,"total_questions":10}}`)
	}))

	sum, err := client.GetAttemptSummary(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetAttemptSummary: %v", err)
	}
	if sum.ID != 42 || sum.Status != model.StatusInProgress || sum.RemainingSecs != 300 || sum.TotalQuestions != 10 {
		t.Errorf("summary = %+v", sum)
	}
	if !sum.Editable() {
		t.Error("in_progress must be editable")
	}
}

func TestErrorMessagePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCode string
	}{
		{
			name:    "error as string wins",
			status:  400,
			body:    `{"ok":false,"error":"token ujian salah","message":"ignored"}`,
			wantMsg: "token ujian salah",
		},
		{
			name:     "error object message second",
			status:   409,
			body:     `{"ok":false,"error":{"code":"attempt_not_editable","message":"attempt closed"},"message":"ignored"}`,
			wantMsg:  "attempt closed",
			wantCode: "attempt_not_editable",
		},
		{
			name:    "top level message third",
			status:  403,
			body:    `{"ok":false,"message":"akses ditolak"}`,
			wantMsg: "akses ditolak",
		},
		{
			name:    "status text last",
			status:  502,
			body:    `{"ok":false}`,
			wantMsg: "Bad Gateway",
		},
		{
			name:    "non json body",
			status:  500,
			body:    `<html>boom</html>`,
			wantMsg: "Internal Server Error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))

			_, err := client.Me(context.Background())
			var apiErr *api.Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *api.Error", err)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if apiErr.Status != tt.status {
				t.Errorf("status = %d, want %d", apiErr.Status, tt.status)
			}
		})
	}
}

func TestOKFalseWithSuccessStatusIsError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"ok":false,"message":"sesi berakhir"}`)
	}))

	_, err := client.Me(context.Background())
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *api.Error", err)
	}
	if apiErr.Message != "sesi berakhir" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestCSRFCookieEchoedOnMutatingRequests(t *testing.T) {
	var gotToken string
	var gotGetToken string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login-password":
			http.SetCookie(w, &http.Cookie{Name: "cbtlms_session", Value: "sess-1", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "cbtlms_csrf", Value: "csrf-xyz", Path: "/"})
			writeJSON(w, 200, `{"ok":true,"data":{"id":1,"username":"siswa1","full_name":"Siswa Satu","role":"student","account_status":"active"}}`)
		case "/api/v1/attempts/7/answers/100":
			gotToken = r.Header.Get("X-CSRF-Token")
			writeJSON(w, 200, `{"ok":true}`)
		case "/api/v1/attempts/7":
			gotGetToken = r.Header.Get("X-CSRF-Token")
			writeJSON(w, 200, `{"ok":true,"data":{"id":7,"status":"in_progress"}}`)
		default:
			writeJSON(w, 404, `{"ok":false,"message":"not found"}`)
		}
	}))

	user, err := client.LoginPassword(context.Background(), model.LoginPasswordRequest{
		Identifier: "siswa1", Password: "rahasia",
	})
	if err != nil {
		t.Fatalf("LoginPassword: %v", err)
	}
	if user.Username != "siswa1" {
		t.Errorf("username = %q", user.Username)
	}

	err = client.SaveAnswer(context.Background(), 7, 100, model.SaveAnswerRequest{
		AnswerPayload: json.RawMessage(`{"selected":"A"}`),
	})
	if err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if gotToken != "csrf-xyz" {
		t.Errorf("csrf header = %q, want csrf-xyz", gotToken)
	}

	if _, err := client.GetAttemptSummary(context.Background(), 7); err != nil {
		t.Fatalf("GetAttemptSummary: %v", err)
	}
	if gotGetToken != "" {
		t.Errorf("GET carried csrf header %q, want none", gotGetToken)
	}
}

func TestSessionCookiePersistsAcrossCalls(t *testing.T) {
	var gotSession string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login-password":
			http.SetCookie(w, &http.Cookie{Name: "cbtlms_session", Value: "sess-2", Path: "/"})
			writeJSON(w, 200, `{"ok":true,"data":{"id":1,"username":"siswa1","full_name":"S","role":"student","account_status":"active"}}`)
		case "/api/v1/auth/me":
			if ck, err := r.Cookie("cbtlms_session"); err == nil {
				gotSession = ck.Value
			}
			writeJSON(w, 200, `{"ok":true,"data":{"id":1,"username":"siswa1","full_name":"S","role":"student","account_status":"active"}}`)
		}
	}))

	if _, err := client.LoginPassword(context.Background(), model.LoginPasswordRequest{Identifier: "siswa1", Password: "x"}); err != nil {
		t.Fatalf("LoginPassword: %v", err)
	}
	if _, err := client.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if gotSession != "sess-2" {
		t.Errorf("session cookie = %q, want sess-2", gotSession)
	}
}

func TestIsNotEditableFromWire(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"structured code", `{"ok":false,"error":{"code":"attempt_not_editable","message":"attempt closed"}}`},
		{"legacy message", `{"ok":false,"message":"attempt is not editable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 409, tt.body)
			}))

			err := client.SaveAnswer(context.Background(), 7, 100, model.SaveAnswerRequest{
				AnswerPayload: json.RawMessage(`{"selected":"A"}`),
			})
			if !api.IsNotEditable(err) {
				t.Errorf("IsNotEditable(%v) = false, want true", err)
			}
		})
	}
}

func TestIsNotEditableIgnoresOtherErrors(t *testing.T) {
	if api.IsNotEditable(errors.New("attempt is not editable")) {
		t.Error("plain errors must not match")
	}
	if api.IsNotEditable(&api.Error{Status: 500, Message: "internal error"}) {
		t.Error("unrelated api errors must not match")
	}
	if api.IsNotEditable(nil) {
		t.Error("nil must not match")
	}
}

func TestIsUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, `{"ok":false,"message":"sesi tidak valid"}`)
	}))

	_, err := client.Me(context.Background())
	if !api.IsUnauthorized(err) {
		t.Errorf("IsUnauthorized(%v) = false, want true", err)
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	var gotID string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		writeJSON(w, 200, `{"ok":true,"data":{"id":1,"username":"u","full_name":"U","role":"student","account_status":"active"}}`)
	}))

	if _, err := client.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if gotID == "" {
		t.Error("every request must carry a request id")
	}
}

func TestListExamsQuery(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("subject_id"); got != "3" {
			t.Errorf("subject_id = %q", got)
		}
		writeJSON(w, 200, `{"ok":true,"data":[{"id":9,"title":"Matematika Dasar","duration_minutes":90}]}`)
	}))

	exams, err := client.ListExams(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 1 || exams[0].Title != "Matematika Dasar" {
		t.Errorf("exams = %+v", exams)
	}
}
