package entities

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Haleralex/jobboard/internal/domain/errors"
)

// emailRegex is a loose address check.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ApplicationKey is the idempotency key of an application.
// At most one Application exists per distinct key; the store enforces this
// with a unique constraint.
type ApplicationKey struct {
	JobID          int64
	ApplicantEmail string
	AppliedAt      time.Time
}

// String renders the key for logs.
func (k ApplicationKey) String() string {
	return fmt.Sprintf("%d|%s|%s", k.JobID, k.ApplicantEmail, k.AppliedAt.UTC().Format(time.RFC3339Nano))
}

// Application is a durable record that an applicant applied to a job.
// It is created only by the consumer while processing a not-yet-seen event.
type Application struct {
	id             int64
	jobID          int64
	applicantName  string
	applicantEmail string
	appliedAt      time.Time
}

// NormalizeEmail trims and lowercases an address so that the idempotency key
// does not depend on how the applicant typed it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewApplication creates a new Application with validation.
//
// id may be zero, in which case the store assigns one on insert.
func NewApplication(id, jobID int64, applicantName, applicantEmail string, appliedAt time.Time) (*Application, error) {
	var verrs errors.ValidationErrors

	if jobID <= 0 {
		verrs.Add("jobId", "must be positive")
	}

	applicantName = strings.TrimSpace(applicantName)
	switch {
	case applicantName == "":
		verrs.Add("applicantName", errors.ErrInvalidApplicant.Error())
	case utf8.RuneCountInString(applicantName) > MaxApplicantNameLength:
		verrs.Add("applicantName", fmt.Sprintf("must be at most %d characters", MaxApplicantNameLength))
	}

	applicantEmail = NormalizeEmail(applicantEmail)
	switch {
	case utf8.RuneCountInString(applicantEmail) > MaxApplicantEmailLength:
		verrs.Add("applicantEmail", fmt.Sprintf("must be at most %d characters", MaxApplicantEmailLength))
	case !emailRegex.MatchString(applicantEmail):
		verrs.Add("applicantEmail", errors.ErrInvalidEmail.Error())
	}

	if appliedAt.IsZero() {
		verrs.Add("appliedAt", "is required")
	}

	if verrs.HasErrors() {
		return nil, verrs
	}

	return &Application{
		id:             id,
		jobID:          jobID,
		applicantName:  applicantName,
		applicantEmail: applicantEmail,
		appliedAt:      appliedAt.UTC(),
	}, nil
}

// ReconstructApplication reconstructs an Application from stored data.
func ReconstructApplication(id, jobID int64, applicantName, applicantEmail string, appliedAt time.Time) *Application {
	return &Application{
		id:             id,
		jobID:          jobID,
		applicantName:  applicantName,
		applicantEmail: applicantEmail,
		appliedAt:      appliedAt,
	}
}

// Key returns the idempotency key of the application.
func (a *Application) Key() ApplicationKey {
	return ApplicationKey{
		JobID:          a.jobID,
		ApplicantEmail: a.applicantEmail,
		AppliedAt:      a.appliedAt,
	}
}

// ID returns the store-assigned identifier.
func (a *Application) ID() int64 {
	return a.id
}

// AssignID is called by the repository once the store has assigned an identity.
func (a *Application) AssignID(id int64) {
	a.id = id
}

// JobID returns the job the application belongs to.
func (a *Application) JobID() int64 {
	return a.jobID
}

// ApplicantName returns the applicant's name.
func (a *Application) ApplicantName() string {
	return a.applicantName
}

// ApplicantEmail returns the normalized applicant email.
func (a *Application) ApplicantEmail() string {
	return a.applicantEmail
}

// AppliedAt returns the submission timestamp.
func (a *Application) AppliedAt() time.Time {
	return a.appliedAt
}
