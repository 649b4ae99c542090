package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Haleralex/jobboard/internal/domain/entities"
	"github.com/Haleralex/jobboard/internal/domain/errors"
)

// ApplicationSubmitted is raised when an applicant applies to a job.
//
// MessageID is assigned once per logical submission. A redelivery of the
// same broker message carries the same MessageID.
type ApplicationSubmitted struct {
	Type           string    `json:"type"`
	JobID          int64     `json:"jobId"`
	ApplicationID  int64     `json:"applicationId"`
	ApplicantName  string    `json:"applicantName"`
	ApplicantEmail string    `json:"applicantEmail"`
	AppliedAt      time.Time `json:"appliedAt"`
	MessageID      string    `json:"messageId"`
}

var _ DomainEvent = (*ApplicationSubmitted)(nil)

// NewApplicationSubmitted builds a fully populated event with a fresh message id.
func NewApplicationSubmitted(applicationID, jobID int64, applicantName, applicantEmail string, appliedAt time.Time) *ApplicationSubmitted {
	return &ApplicationSubmitted{
		Type:           EventTypeApplicationSubmitted,
		JobID:          jobID,
		ApplicationID:  applicationID,
		ApplicantName:  strings.TrimSpace(applicantName),
		ApplicantEmail: entities.NormalizeEmail(applicantEmail),
		AppliedAt:      appliedAt.UTC(),
		MessageID:      NewMessageID(),
	}
}

func (e *ApplicationSubmitted) EventID() string       { return e.MessageID }
func (e *ApplicationSubmitted) EventType() string     { return e.Type }
func (e *ApplicationSubmitted) OccurredAt() time.Time { return e.AppliedAt }

// EnsureMessageID stamps a message id if none is present and returns it.
func (e *ApplicationSubmitted) EnsureMessageID() string {
	if e.MessageID == "" {
		e.MessageID = NewMessageID()
	}
	return e.MessageID
}

// Validate checks that the event is fully populated.
func (e *ApplicationSubmitted) Validate() error {
	var verrs errors.ValidationErrors

	if e.Type != EventTypeApplicationSubmitted {
		verrs.Add("type", fmt.Sprintf("must be %q", EventTypeApplicationSubmitted))
	}
	if e.JobID <= 0 {
		verrs.Add("jobId", "must be positive")
	}
	if e.ApplicationID < 0 {
		verrs.Add("applicationId", "must not be negative")
	}
	switch name := strings.TrimSpace(e.ApplicantName); {
	case name == "":
		verrs.Add("applicantName", "is required")
	case utf8.RuneCountInString(name) > entities.MaxApplicantNameLength:
		verrs.Add("applicantName", fmt.Sprintf("must be at most %d characters", entities.MaxApplicantNameLength))
	}
	switch email := strings.TrimSpace(e.ApplicantEmail); {
	case email == "":
		verrs.Add("applicantEmail", "is required")
	case utf8.RuneCountInString(email) > entities.MaxApplicantEmailLength:
		verrs.Add("applicantEmail", fmt.Sprintf("must be at most %d characters", entities.MaxApplicantEmailLength))
	}
	if e.AppliedAt.IsZero() {
		verrs.Add("appliedAt", "is required")
	}

	if verrs.HasErrors() {
		return verrs
	}
	return nil
}

// Key returns the idempotency key carried by the event.
func (e *ApplicationSubmitted) Key() entities.ApplicationKey {
	return entities.ApplicationKey{
		JobID:          e.JobID,
		ApplicantEmail: entities.NormalizeEmail(e.ApplicantEmail),
		AppliedAt:      e.AppliedAt.UTC(),
	}
}

// ToApplication converts the event into a new Application record.
func (e *ApplicationSubmitted) ToApplication() (*entities.Application, error) {
	return entities.NewApplication(e.ApplicationID, e.JobID, e.ApplicantName, e.ApplicantEmail, e.AppliedAt)
}

// Encode serializes the event into its wire body.
func (e *ApplicationSubmitted) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeApplicationSubmitted parses a wire body.
// Invalid JSON, a foreign discriminator, or missing fields yield ErrMalformedEvent.
func DecodeApplicationSubmitted(body []byte) (*ApplicationSubmitted, error) {
	var e ApplicationSubmitted
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}
	if e.Type != EventTypeApplicationSubmitted {
		return nil, fmt.Errorf("%w: unexpected type %q", errors.ErrMalformedEvent, e.Type)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}
	return &e, nil
}
