package model

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// User is the authenticated account as reported by /auth/me.
type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         *string    `json:"email,omitempty"`
	FullName      string     `json:"full_name"`
	Role          string     `json:"role"`
	AccountStatus string     `json:"account_status"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
}

// LoginPasswordRequest is the payload for password login.
// Identifier accepts either a username or an email address.
type LoginPasswordRequest struct {
	Identifier string `json:"identifier" validate:"required,min=3,max=120"`
	Password   string `json:"password" validate:"required,min=6,max=128"`
}

// NormalizeCredential cleans pasted credentials: NFKC normalization,
// zero-width characters removed, non-breaking spaces flattened, then trimmed.
// Students copy credentials out of chat apps and PDFs; this undoes the damage.
func NormalizeCredential(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		case '\u00a0':
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
