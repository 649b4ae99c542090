// Package entities contains domain entities with identity and lifecycle.
// Entities are compared by their ID, not by their attributes.
//
// Identifiers are assigned by the store (bigserial), so a freshly
// created entity has ID 0 until the repository persists it.
package entities

import (
	"strings"
	"time"

	"github.com/Haleralex/jobboard/internal/domain/errors"
)

const (
	// MaxJobTitleLength is the longest title a posting may carry.
	MaxJobTitleLength = 200

	// Column widths of job_applications.
	MaxApplicantNameLength  = 200
	MaxApplicantEmailLength = 320
)

// Job represents a job posting that applicants can apply to.
type Job struct {
	id          int64
	title       string
	description string
	postedAt    time.Time
}

// NewJob creates a new Job with validation.
//
// Business Rules:
// - Title is required and at most MaxJobTitleLength characters
// - PostedAt is set to the current UTC time
func NewJob(title, description string) (*Job, error) {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) > MaxJobTitleLength {
		return nil, errors.ValidationError{
			Field:   "title",
			Message: errors.ErrInvalidJobTitle.Error(),
		}
	}

	return &Job{
		title:       title,
		description: strings.TrimSpace(description),
		postedAt:    time.Now().UTC(),
	}, nil
}

// ReconstructJob reconstructs a Job from stored data.
// No validation - assumes data is already valid.
func ReconstructJob(id int64, title, description string, postedAt time.Time) *Job {
	return &Job{
		id:          id,
		title:       title,
		description: description,
		postedAt:    postedAt,
	}
}

// ID returns the job identifier (0 before persistence).
func (j *Job) ID() int64 {
	return j.id
}

// AssignID is called by the repository once the store has assigned an identity.
func (j *Job) AssignID(id int64) {
	j.id = id
}

// Title returns the job title.
func (j *Job) Title() string {
	return j.title
}

// Description returns the job description.
func (j *Job) Description() string {
	return j.description
}

// PostedAt returns when the job was posted.
func (j *Job) PostedAt() time.Time {
	return j.postedAt
}
