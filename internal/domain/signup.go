package domain

import (
	"time"
	"unicode/utf16"
)

// ============================================================
// Signup: Request / Response types (matches frontend API contract)
// ============================================================

// Trial periods granted to new accounts, in days.
const (
	TrialExtended     = "extended"
	DefaultTrialDays  = 7
	ExtendedTrialDays = 14
)

// TextLength counts characters the way the frontend does (UTF-16 code
// units), so length rules agree on both sides.
func TextLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// RoleUser is the role every self-service signup receives.
const RoleUser = "user"

// SignupPayload is the raw body for POST /signup.
// Fields are untyped so non-string values can be rejected field by field.
type SignupPayload struct {
	Email    any `json:"email"`
	FullName any `json:"fullName"`
	Password any `json:"password"`
	Trial    any `json:"trial,omitempty"`
}

// SignupRequest is a validated, normalized signup.
type SignupRequest struct {
	Email     string
	FullName  string
	Password  string
	TrialDays int
}

// NewUser is what the directory needs to create an account.
type NewUser struct {
	Email       string
	Password    string
	DisplayName string
}

// UserAccount is the public view of a directory account. The password is
// never part of it.
type UserAccount struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// UserProfileRecord is the store document keyed by uid.
type UserProfileRecord struct {
	FullName    string    `json:"fullName"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLogin   time.Time `json:"lastLogin"`
	Role        string    `json:"role"`
	AutoBilling bool      `json:"autoBilling"`
	TrialPeriod int       `json:"trialPeriod"`
}

// SignupResult is the outcome of a completed signup workflow.
type SignupResult struct {
	Token   string
	Account UserAccount
}

// SignupResponse is the body for 201 from POST /signup.
type SignupResponse struct {
	Message     string      `json:"message"`
	CustomToken string      `json:"customToken"`
	User        UserAccount `json:"user"`
}

// SignupStage names the workflow step a partial signup stopped at.
type SignupStage string

const (
	StagePersistProfile SignupStage = "persist_profile"
	StageIssueToken     SignupStage = "issue_token"
)

// OrphanedSignup is a journal entry for an account whose profile write failed.
type OrphanedSignup struct {
	UID        string            `json:"uid"`
	Email      string            `json:"email"`
	Profile    UserProfileRecord `json:"profile"`
	Stage      SignupStage       `json:"stage"`
	RecordedAt time.Time         `json:"recordedAt"`
	Attempts   int               `json:"attempts"`
}

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Deleted   int `json:"deleted"`
	Pending   int `json:"pending"`
}
